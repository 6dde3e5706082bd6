// Package diag defines the diagnostic model shared by every stage of the
// pipeline. Errors are accumulated across a batch rather than failing fast,
// so a user sees every problem per invocation.
package diag

import (
	"sort"
	"strings"

	"github.com/ooze-lang/ooze/internal/src"
)

// Kind is a stable identifier for a class of diagnostic.
type Kind string

const (
	KindParse              Kind = "PARSE"
	KindUndefinedType      Kind = "UNDEFINED_TYPE"
	KindUndefinedBinding   Kind = "UNDEFINED_BINDING"
	KindTypeMismatch       Kind = "TYPE_MISMATCH"
	KindAmbiguousOverload  Kind = "AMBIGUOUS_OVERLOAD"
	KindNoMatchingOverload Kind = "NO_MATCHING_OVERLOAD"
	KindBadPattern         Kind = "BAD_PATTERN"
	KindInvalidBorrow      Kind = "INVALID_BORROW"
	KindUsedAfterMove      Kind = "USED_AFTER_MOVE"
	KindIO                 Kind = "IO"
)

// Error is one diagnostic anchored to a source span. Notes render as extra
// unanchored lines beneath the primary message.
type Error struct {
	Kind  Kind
	Ref   src.Ref
	Msg   string
	Notes []string
}

// WithNote returns a copy of the error with a note appended.
func (e Error) WithNote(note string) Error {
	e.Notes = append(append([]string(nil), e.Notes...), note)
	return e
}

// Errors is an accumulated batch of diagnostics. It implements error so
// pipeline stages can return it directly.
type Errors []Error

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Msg
	}
	return strings.Join(msgs, "; ")
}

// Sort orders errors by buffer then position, giving deterministic output
// independent of discovery order.
func (es Errors) Sort() {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Ref.Src != es[j].Ref.Src {
			return es[i].Ref.Src < es[j].Ref.Src
		}
		if es[i].Ref.Start != es[j].Ref.Start {
			return es[i].Ref.Start < es[j].Ref.Start
		}
		return es[i].Ref.End < es[j].Ref.End
	})
}

// OrNil returns the batch as an error, or nil when empty.
func (es Errors) OrNil() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
