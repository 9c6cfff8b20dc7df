// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats provides a write-only sink receiving named numeric
// columns per solver iteration.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

type column struct {
	name  string
	order int
}

// Statistics collects one row of named values per iteration and writes
// a fixed-width table to an io.Writer. A nil writer discards all
// output; collection itself never fails.
type Statistics struct {
	w       io.Writer
	cols    []column
	row     map[string]string
	started bool
}

// New creates a sink writing to w (nil discards output).
func New(w io.Writer) *Statistics {
	return &Statistics{w: w, row: make(map[string]string)}
}

// AddColumn registers a column. Columns are printed by increasing
// order value. Adding a column after the first row is a caller error.
func (s *Statistics) AddColumn(name string, order int) {
	if s.started {
		panic("stats: column added after the first row")
	}
	s.cols = append(s.cols, column{name, order})
	sort.SliceStable(s.cols, func(i, j int) bool { return s.cols[i].order < s.cols[j].order })
}

// Set records a value for the current row.
func (s *Statistics) Set(name string, value any) {
	switch v := value.(type) {
	case float64:
		s.row[name] = fmt.Sprintf("%.4e", v)
	default:
		s.row[name] = fmt.Sprint(v)
	}
}

// Flush writes the current row and clears it. The header is written
// before the first row.
func (s *Statistics) Flush() {
	if s.w != nil {
		if !s.started {
			names := make([]string, len(s.cols))
			for i, c := range s.cols {
				names[i] = fmt.Sprintf("%14s", c.name)
			}
			_, _ = fmt.Fprintln(s.w, strings.Join(names, " "))
		}
		vals := make([]string, len(s.cols))
		for i, c := range s.cols {
			vals[i] = fmt.Sprintf("%14s", s.row[c.name])
		}
		_, _ = fmt.Fprintln(s.w, strings.Join(vals, " "))
	}
	s.started = true
	clear(s.row)
}
