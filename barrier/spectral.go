// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package barrier implements the primal-dual interior-point subproblem:
// bound constraints are folded into a logarithmic barrier, the Newton
// step comes from a symmetric indefinite augmented KKT system whose
// inertia is corrected by diagonal regularization.
package barrier

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Inertia counts the eigenvalue signs of a symmetric factorization.
type Inertia struct {
	Positive, Negative, Zero int
}

// SymmetricSolver factorizes a symmetric indefinite matrix, reporting
// its inertia, and solves against the held factorization.
type SymmetricSolver interface {
	Factorize(a mat.Symmetric) (Inertia, error)
	Solve(rhs, sol []float64) error
}

// ErrSingularSystem reports a factorization with zero eigenvalues.
var ErrSingularSystem = errors.New("barrier: singular augmented system")

// SpectralSolver computes the inertia from a spectral factorization
// 𝐀 = 𝐐𝚲𝐐ᵀ. Exact eigenvalue signs make the inertia reliable at the
// cost of a full eigendecomposition per factorization.
type SpectralSolver struct {
	values  []float64
	vectors mat.Dense
	work    []float64
	dim     int
	tol     float64
}

// NewSpectralSolver allocates a solver for matrices up to maxDim.
func NewSpectralSolver(maxDim int) *SpectralSolver {
	return &SpectralSolver{work: make([]float64, maxDim)}
}

// Factorize decomposes a and returns its inertia. Eigenvalues within a
// relative tolerance of zero count as zero.
func (s *SpectralSolver) Factorize(a mat.Symmetric) (Inertia, error) {
	var es mat.EigenSym
	if !es.Factorize(a, true) {
		return Inertia{}, errors.New("barrier: eigendecomposition failed")
	}
	s.dim = a.SymmetricDim()
	if cap(s.values) < s.dim {
		s.values = make([]float64, s.dim)
	}
	s.values = s.values[:s.dim]
	es.Values(s.values)
	es.VectorsTo(&s.vectors)

	scale := 0.0
	for _, v := range s.values {
		scale = math.Max(scale, math.Abs(v))
	}
	s.tol = 1e-12 * math.Max(1, scale)
	tol := s.tol

	var inertia Inertia
	for _, v := range s.values {
		switch {
		case v > tol:
			inertia.Positive++
		case v < -tol:
			inertia.Negative++
		default:
			inertia.Zero++
		}
	}
	return inertia, nil
}

// Solve computes 𝐐𝚲⁻¹𝐐ᵀ·rhs into sol using the last factorization.
func (s *SpectralSolver) Solve(rhs, sol []float64) error {
	n := s.dim
	if len(rhs) < n || len(sol) < n {
		panic("barrier: solve buffers smaller than the factorized system")
	}
	w := s.work[:n]
	for k := 0; k < n; k++ {
		if math.Abs(s.values[k]) <= s.tol {
			return ErrSingularSystem
		}
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += s.vectors.At(i, k) * rhs[i]
		}
		w[k] = dot / s.values[k]
	}
	for i := 0; i < n; i++ {
		sum := 0.0
		for k := 0; k < n; k++ {
			sum += s.vectors.At(i, k) * w[k]
		}
		sol[i] = sum
	}
	return nil
}
