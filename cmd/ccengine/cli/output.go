// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// WriteJSON writes value to w as indented JSON. A nil slice is written
// as [] rather than null.
func WriteJSON(w io.Writer, value any) error {
	if v := reflect.ValueOf(value); v.Kind() == reflect.Slice && v.IsNil() {
		value = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// Table writes tab-aligned rows.
type Table struct {
	writer *tabwriter.Writer
}

// NewTable starts a table on w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	table := &Table{writer: tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)}
	if len(headers) > 0 {
		table.Row(toAny(headers)...)
	}
	return table
}

// Row adds one row.
func (t *Table) Row(cells ...any) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprint(cell)
	}
	fmt.Fprintln(t.writer, strings.Join(parts, "\t"))
}

// Flush writes the aligned table.
func (t *Table) Flush() error { return t.writer.Flush() }

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}

// ParseLevel maps a level name to a slog level. Unknown names are
// info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewCommandLogger returns a logger writing to stderr. format "text"
// or "json" forces a handler; anything else uses text on a terminal
// and JSON when stderr is piped.
func NewCommandLogger(level slog.Level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	useText := term.IsTerminal(int(os.Stderr.Fd()))
	switch format {
	case "text":
		useText = true
	case "json":
		useText = false
	}
	if useText {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}
