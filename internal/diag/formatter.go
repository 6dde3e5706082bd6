package diag

import (
	"fmt"
	"strings"

	"github.com/ooze-lang/ooze/internal/src"
)

// Render formats a batch of diagnostics against the source map. Each error
// emits three lines:
//
//	LINE:COL error: message
//	 | <source line>
//	 |      ^~~~
//
// followed by one plain line per note.
func Render(sm *src.Map, es Errors) []string {
	es.Sort()

	var out []string
	for _, e := range es {
		out = append(out, renderOne(sm, e)...)
	}
	return out
}

func renderOne(sm *src.Map, e Error) []string {
	if !e.Ref.Valid() {
		out := []string{fmt.Sprintf("error: %s", e.Msg)}
		return append(out, e.Notes...)
	}

	pos := sm.Pos(e.Ref)

	width := e.Ref.Len()
	if max := len(pos.Text) - pos.Col; width > max {
		width = max
	}
	if width < 1 {
		width = 1
	}

	underline := "^"
	if width > 1 {
		underline += strings.Repeat("~", width-1)
	}

	out := []string{
		fmt.Sprintf("%d:%d error: %s", pos.Line, pos.Col, e.Msg),
		fmt.Sprintf(" | %s", pos.Text),
		fmt.Sprintf(" | %s%s", strings.Repeat(" ", pos.Col), underline),
	}
	return append(out, e.Notes...)
}
