package diag

import "fmt"

// Span is a source location, supplied by the external lexer/parser and
// threaded through inference, lowering, and runtime errors so every
// diagnostic can point back at source text (spec.md §3 Constraint,
// "annotated with a source span").
type Span struct {
	File        string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

func (s Span) String() string {
	if s.File == "" && s.StartLine == 0 {
		return ""
	}
	if s.StartLine == s.EndLine {
		return fmt.Sprintf("%s:%d:%d-%d", s.File, s.StartLine, s.StartColumn, s.EndColumn)
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.StartLine, s.StartColumn, s.EndLine, s.EndColumn)
}
