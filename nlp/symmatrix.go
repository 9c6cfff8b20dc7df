// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"gonum.org/v1/gonum/mat"
)

// SymMatrix is a symmetric matrix handle supporting entry insertion and
// quadratic-form evaluation. The backing storage is allocated once to a
// maximum dimension and reused; Reset shrinks the active dimension
// without reallocating.
type SymMatrix struct {
	dim int
	m   *mat.SymDense
}

// NewSymMatrix allocates a matrix with capacity maxDim and active
// dimension maxDim.
func NewSymMatrix(maxDim int) *SymMatrix {
	return &SymMatrix{dim: maxDim, m: mat.NewSymDense(maxDim, nil)}
}

// Reset zeroes all entries and sets the active dimension to dim.
func (s *SymMatrix) Reset(dim int) {
	if dim < 0 || dim > s.m.SymmetricDim() {
		panic("nlp: symmetric matrix dimension exceeds capacity")
	}
	s.m.Zero()
	s.dim = dim
}

// Dim returns the active dimension.
func (s *SymMatrix) Dim() int { return s.dim }

// At returns the (i,j) entry.
func (s *SymMatrix) At(i, j int) float64 { return s.m.At(i, j) }

// Set overwrites the (i,j) entry (and its mirror).
func (s *SymMatrix) Set(i, j int, v float64) { s.m.SetSym(i, j, v) }

// Add accumulates v into the (i,j) entry (and its mirror).
func (s *SymMatrix) Add(i, j int, v float64) {
	s.m.SetSym(i, j, s.m.At(i, j)+v)
}

// QuadraticForm returns 𝐱ᵀ𝐀𝐱 over the active dimension.
func (s *SymMatrix) QuadraticForm(x []float64) (q float64) {
	for i := 0; i < s.dim; i++ {
		q += s.m.At(i, i) * x[i] * x[i]
		for j := i + 1; j < s.dim; j++ {
			q += 2 * s.m.At(i, j) * x[i] * x[j]
		}
	}
	return
}

// View returns the active block as a gonum symmetric matrix.
func (s *SymMatrix) View() mat.Symmetric {
	if s.dim == s.m.SymmetricDim() {
		return s.m
	}
	return s.m.SliceSym(0, s.dim)
}
