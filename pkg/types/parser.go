package types

import "fmt"

// ParseResult holds the outcome of parsing one source file. A file that
// fails to parse produces an Err and no symbols; the pipeline records the
// failure and moves on.
type ParseResult struct {
	FilePath string
	Language string
	Symbols  []Symbol
	Err      error
}

// ParseError describes a file the parser could not process. It is a
// recorded per-file outcome, not a pipeline-stopping condition.
type ParseError struct {
	FilePath string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.FilePath, e.Reason)
}
