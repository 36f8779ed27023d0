// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"fmt"
	"os"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/model"
)

// Source is a file's text indexed by line, addressed with LSP positions
// whose character offsets count UTF-16 code units.
type Source struct {
	text  []byte
	lines []int // byte offset of each line start
}

// NewSource indexes text.
func NewSource(text []byte) *Source {
	lines := []int{0}
	for i, b := range text {
		if b == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &Source{text: text, lines: lines}
}

// Text returns the raw bytes.
func (s *Source) Text() []byte {
	return s.text
}

// LineCount returns the number of lines. A trailing newline starts an
// empty final line.
func (s *Source) LineCount() int {
	return len(s.lines)
}

// line returns the content of line n without its terminator.
func (s *Source) line(n int) []byte {
	start := s.lines[n]
	end := len(s.text)
	if n+1 < len(s.lines) {
		end = s.lines[n+1] - 1
	}
	if end > start && s.text[end-1] == '\r' {
		end--
	}
	return s.text[start:end]
}

// LineLength returns the UTF-16 length of line n.
func (s *Source) LineLength(n int) int {
	return units(s.line(n))
}

// ValidPosition reports whether p addresses a character in the file or
// the end of a line.
func (s *Source) ValidPosition(p model.Position) bool {
	if !p.Valid() || p.Line >= len(s.lines) {
		return false
	}
	return p.Character <= s.LineLength(p.Line)
}

// Offset converts p to a byte offset, clipping to the line and file.
func (s *Source) Offset(p model.Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(s.lines) {
		return len(s.text)
	}
	start := s.lines[p.Line]
	content := s.line(p.Line)
	count := 0
	for i := 0; i < len(content); {
		if count >= p.Character {
			return start + i
		}
		r, size := utf8.DecodeRune(content[i:])
		count += runeUnits(r)
		i += size
	}
	return start + len(content)
}

// PositionAt converts a byte offset to a position.
func (s *Source) PositionAt(offset int) model.Position {
	offset = max(0, min(offset, len(s.text)))
	line := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset }) - 1
	return model.Position{Line: line, Character: units(s.text[s.lines[line]:offset])}
}

// Slice returns the text spanned by r, clipped to the file.
func (s *Source) Slice(r model.Range) string {
	start, end := s.Offset(r.Start), s.Offset(r.End)
	if end < start {
		return ""
	}
	return string(s.text[start:end])
}

// Window returns the whole lines from startLine-n through endLine+n,
// clipped to the file, and the range they span.
func (s *Source) Window(startLine, endLine, n int) (model.Range, string) {
	n = max(n, 0)
	first := max(0, startLine-n)
	last := min(len(s.lines)-1, endLine+n)
	if first > last {
		first = last
	}
	r := model.Range{
		Start: model.Position{Line: first},
		End:   model.Position{Line: last, Character: s.LineLength(last)},
	}
	return r, s.Slice(r)
}

func units(b []byte) int {
	n := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		n += runeUnits(r)
		i += size
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// =============================================================================
// FRESH READS
// =============================================================================

// Load routes path and reads its current content.
func (w *Workspace) Load(path string) (File, *Source, error) {
	f, err := w.Route(path)
	if err != nil {
		return File{}, nil, err
	}
	src, err := readSource(f)
	if err != nil {
		return File{}, nil, err
	}
	return f, src, nil
}

// ReadSource returns a file's text, or the part of it spanned by r.
//
// Description:
//
//	The file is read from disk on every call. Any file inside the
//	workspace may be read, claimed by a language or not. A range
//	overrunning the file is clipped rather than rejected.
//
// Errors:
//
//	model.ErrInvalidPosition - r has negative coordinates or ends before it starts
//	model.ErrPathNotFound, model.ErrPathOutsideWorkspace - from routing
func (w *Workspace) ReadSource(path string, r *model.Range) (string, error) {
	f, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if r != nil {
		if _, err := model.NewFileRange(f.Path, r.Start, r.End); err != nil {
			return "", err
		}
	}
	src, err := readSource(f)
	if err != nil {
		return "", err
	}
	if r == nil {
		return string(src.Text()), nil
	}
	return src.Slice(*r), nil
}

// CodeContext reads the text spanned by fr.
func (w *Workspace) CodeContext(fr model.FileRange) (model.CodeContext, error) {
	f, err := w.Resolve(fr.Path)
	if err != nil {
		return model.CodeContext{}, err
	}
	src, err := readSource(f)
	if err != nil {
		return model.CodeContext{}, err
	}
	return model.CodeContext{Range: fr, SourceCode: src.Slice(fr.Range())}, nil
}

// ContextLines reads n whole lines either side of pos.
func (w *Workspace) ContextLines(pos model.FilePosition, n int) (model.CodeContext, error) {
	f, err := w.Resolve(pos.Path)
	if err != nil {
		return model.CodeContext{}, err
	}
	src, err := readSource(f)
	if err != nil {
		return model.CodeContext{}, err
	}
	r, text := src.Window(pos.Position.Line, pos.Position.Line, n)
	return model.CodeContext{
		Range:      model.FileRange{Path: f.Path, Start: r.Start, End: r.End},
		SourceCode: text,
	}, nil
}

func readSource(f File) (*Source, error) {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is unreadable", model.ErrPathNotFound, f.Path)
	}
	return NewSource(data), nil
}
