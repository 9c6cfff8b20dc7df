// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, "QP", opts.GetString("subproblem"))
	assert.Equal(t, 1e-6, opts.GetFloat("tolerance"))
	assert.Equal(t, 500, opts.GetInt("max_iterations"))

	assert.Panics(t, func() { opts.GetString("tolerance") })
	assert.Panics(t, func() { opts.GetFloat("subproblem") })
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"subproblem: primal_dual_interior_point\ntolerance: 1e-8\nmax_iterations: 100\n"), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "primal_dual_interior_point", opts.GetString("subproblem"))
	assert.Equal(t, 1e-8, opts.GetFloat("tolerance"))
	assert.Equal(t, 100, opts.GetInt("max_iterations"))
	// untouched keys keep their defaults
	assert.Equal(t, 0.1, opts.GetFloat("barrier_initial_parameter"))
}

func TestLoadOptionsRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_option: 1\n"), 0o644))

	_, err := LoadOptions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_option")
}
