package parser

// ParserOpt represents a parser configuration option
type ParserOpt func(*ParserConfig)

// ParserConfig holds parser configuration
type ParserConfig struct {
	sourceName string
}

// WithSourceName sets the file name shown in error snippets
func WithSourceName(name string) ParserOpt {
	return func(c *ParserConfig) {
		c.sourceName = name
	}
}
