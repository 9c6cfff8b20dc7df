// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"strings"
	"testing"
)

func TestStatisticsTable(t *testing.T) {
	var sb strings.Builder
	s := New(&sb)
	s.AddColumn("objective", 10)
	s.AddColumn("iter", 0) // ordered before objective

	s.Set("iter", 1)
	s.Set("objective", 2.5)
	s.Flush()
	s.Set("iter", 2)
	s.Flush() // objective column left blank

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows", len(lines))
	}
	if !strings.Contains(lines[0], "iter") || !strings.Contains(lines[0], "objective") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Index(lines[0], "iter") > strings.Index(lines[0], "objective") {
		t.Error("columns not sorted by order")
	}
	if !strings.Contains(lines[1], "2.5000e+00") {
		t.Errorf("row = %q, want scientific float formatting", lines[1])
	}
	if strings.Contains(lines[2], "2.5000e+00") {
		t.Error("stale value leaked into the next row")
	}
}

func TestStatisticsNilWriter(t *testing.T) {
	s := New(nil)
	s.AddColumn("iter", 0)
	s.Set("iter", 1)
	s.Flush() // must not panic

	defer func() {
		if recover() == nil {
			t.Error("AddColumn after the first row: expected panic")
		}
	}()
	s.AddColumn("late", 1)
}
