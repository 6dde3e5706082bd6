// Package src holds the append-only source map shared by every stage of the
// pipeline. Text is never moved or rewritten once added; positions are stable
// slices into a buffer, so diagnostics produced during one REPL step remain
// valid for the lifetime of the session.
package src

import "strings"

// ID names one source buffer in a Map.
type ID int32

// Ref is a half-open slice [Start, End) into one source buffer.
type Ref struct {
	Src   ID
	Start int32
	End   int32
}

// Valid reports whether the ref points at actual text.
func (r Ref) Valid() bool { return r.End > r.Start || (r.Src != 0 && r.End == r.Start) }

// Len returns the number of bytes covered by the ref.
func (r Ref) Len() int { return int(r.End - r.Start) }

// Map is the process-wide collection of source buffers. Buffer 0 is reserved
// for interned driver text (#builtins); scripts and REPL inputs each get
// their own buffer.
type Map struct {
	names []string
	texts []string
}

// NewMap returns an empty map; buffers are registered with Add.
func NewMap() *Map {
	return &Map{}
}

// Add registers a new source buffer and returns its ID.
func (m *Map) Add(name, text string) ID {
	m.names = append(m.names, name)
	m.texts = append(m.texts, text)
	return ID(len(m.texts) - 1)
}

// Append extends an existing buffer and returns a ref covering the new text.
// Existing refs into the buffer are unaffected.
func (m *Map) Append(id ID, text string) Ref {
	start := len(m.texts[id])
	m.texts[id] += text
	return Ref{Src: id, Start: int32(start), End: int32(start + len(text))}
}

// Name returns the registered name of a buffer.
func (m *Map) Name(id ID) string { return m.names[id] }

// Len returns the current length of a buffer.
func (m *Map) Len(id ID) int { return len(m.texts[id]) }

// Truncate rolls a buffer back to a previously observed length. Used to make
// failed elaboration idempotent.
func (m *Map) Truncate(id ID, n int) { m.texts[id] = m.texts[id][:n] }

// TruncateBuffers drops buffers added after the first n.
func (m *Map) TruncateBuffers(n int) {
	m.names = m.names[:n]
	m.texts = m.texts[:n]
}

// Buffers returns the number of registered buffers.
func (m *Map) Buffers() int { return len(m.texts) }

// Text resolves a ref to the text it covers.
func (m *Map) Text(r Ref) string {
	if int(r.Src) >= len(m.texts) {
		return ""
	}
	buf := m.texts[r.Src]
	if int(r.End) > len(buf) || r.Start > r.End {
		return ""
	}
	return buf[r.Start:r.End]
}

// Position describes a ref for rendering: 1-based line, 0-based column and
// the full text of the line the ref starts on.
type Position struct {
	Line   int
	Col    int
	Text   string
	Offset int // byte offset of the line start within the buffer
}

// Pos computes the position of the start of a ref.
func (m *Map) Pos(r Ref) Position {
	buf := m.texts[r.Src]
	line := 1
	lineStart := 0
	for i := 0; i < int(r.Start) && i < len(buf); i++ {
		if buf[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	lineEnd := strings.IndexByte(buf[lineStart:], '\n')
	if lineEnd < 0 {
		lineEnd = len(buf)
	} else {
		lineEnd += lineStart
	}
	return Position{
		Line:   line,
		Col:    int(r.Start) - lineStart,
		Text:   buf[lineStart:lineEnd],
		Offset: lineStart,
	}
}
