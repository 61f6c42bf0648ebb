package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	lerrors "github.com/dozer-project/lucius/core/errors"
)

// FormatError writes err for a terminal. Compile errors keep their source
// snippet; the headline is colored when useColor is set.
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	var ce *lerrors.CompileError
	var re *lerrors.RuntimeError
	switch {
	case errors.As(err, &ce):
		formatCompileError(w, ce, useColor)
	case errors.As(err, &re):
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("error: ", ColorRed, useColor), re.Error())
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())
	}
}

func formatCompileError(w io.Writer, err *lerrors.CompileError, useColor bool) {
	headline, snippet, _ := strings.Cut(err.Error(), "\n")
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("error", ColorRed, useColor), headline)
	if snippet != "" {
		_, _ = fmt.Fprintf(w, "%s\n", Colorize(snippet, ColorGray, useColor))
	}
}
