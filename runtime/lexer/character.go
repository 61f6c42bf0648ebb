package lexer

// ASCII classification tables. Use with an inline bounds check:
//
//	if ch < 128 && isDigit[ch] { ... }
//
// Bytes >= 128 are only legal inside strings and comments.
var (
	isWhitespace [128]bool // space, tab, CR, LF, FF
	isLetter     [128]bool // a-z, A-Z, _
	isDigit      [128]bool // 0-9
	isIdentStart [128]bool // letter or _
	isIdentPart  [128]bool // letter, digit or _
	isHexDigit   [128]bool // 0-9, a-f, A-F
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)

		// Newlines carry no meaning in pipeline source
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f'

		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'

		isIdentStart[i] = isLetter[i]
		isIdentPart[i] = isLetter[i] || isDigit[i]

		isHexDigit[i] = isDigit[i] || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
	}
}

// IsIdentifier reports whether s is a valid ASCII identifier:
// [a-zA-Z_][a-zA-Z0-9_]*
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= 128 || !isIdentStart[s[0]] {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] >= 128 || !isIdentPart[s[i]] {
			return false
		}
	}
	return true
}
