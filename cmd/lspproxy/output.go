// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianLSP/services/lsproxy/config"
	"github.com/AleutianAI/AleutianLSP/services/lsproxy/lsp"
)

// Aleutian palette.
var (
	colorTealBright  = lipgloss.Color("#2CD7C7")
	colorTealPrimary = lipgloss.Color("#20B9B4")
	colorSlate       = lipgloss.Color("#2C4A54")
	colorError       = lipgloss.Color("#E74C3C")
)

// styles are bound to one writer's renderer, so piped output carries no
// escape sequences.
type styles struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Muted       lipgloss.Style
	Cell        lipgloss.Style
	StatusOK    lipgloss.Style
	StatusError lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		Title:       r.NewStyle().Bold(true).Foreground(colorTealBright),
		Subtitle:    r.NewStyle().Foreground(colorTealPrimary),
		Muted:       r.NewStyle().Foreground(colorSlate),
		Cell:        r.NewStyle(),
		StatusOK:    r.NewStyle().SetString("✓").Foreground(colorTealBright),
		StatusError: r.NewStyle().SetString("✗").Foreground(colorError),
	}
}

// printVersion writes the version line.
func printVersion(w io.Writer) {
	st := newStyles(w)
	fmt.Fprintf(w, "%s %s\n", st.Title.Render("lspproxy"), st.Subtitle.Render(Version))
}

// printLanguages writes the language table without starting any server.
func printLanguages(w io.Writer, cfg config.Config) error {
	registry := lsp.NewConfigRegistry()
	registry.Apply(cfg.Languages)
	st := newStyles(w)

	header := []string{"LANGUAGE", "COMMAND", "EXTENSIONS", "INSTALLED"}
	var rows [][]string
	var installed []bool
	for _, lang := range registry.Languages() {
		lc, ok := registry.Get(lang)
		if !ok {
			continue
		}
		rows = append(rows, []string{lang, lc.Command, strings.Join(lc.Extensions, " ")})
		installed = append(installed, registry.IsInstalled(lang))
	}

	widths := make([]int, len(header)-1)
	for i := range widths {
		widths[i] = lipgloss.Width(header[i])
		for _, row := range rows {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	for i, h := range header[:len(widths)] {
		b.WriteString(st.Title.Width(widths[i] + 2).Render(h))
	}
	b.WriteString(st.Title.Render(header[len(widths)]))
	b.WriteByte('\n')

	for n, row := range rows {
		b.WriteString(st.Cell.Width(widths[0] + 2).Render(row[0]))
		b.WriteString(st.Subtitle.Width(widths[1] + 2).Render(row[1]))
		b.WriteString(st.Muted.Width(widths[2] + 2).Render(row[2]))
		if installed[n] {
			b.WriteString(st.StatusOK.Render("yes"))
		} else {
			b.WriteString(st.StatusError.Render("no"))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
