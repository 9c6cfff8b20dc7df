// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
	"github.com/curioloop/nlpopt/stats"
)

// ErrWrongInertia reports that the augmented system could not be
// driven to the expected inertia within the regularization budget.
// This aborts the current outer iteration; it must never be absorbed
// into an unregularized step.
var ErrWrongInertia = errors.New("barrier: augmented system inertia could not be corrected")

// maxRegularizations bounds the regularize-refactorize cycle.
const maxRegularizations = 30

// AugmentedSystem holds the symmetric saddle-point matrix
//
//	[𝐇+𝚺  𝐉ᵀ]
//	[𝐉     0]
//
// its right-hand side and solution buffer. Everything is sized once to
// maxVars+maxCons and reused for every factorization and every
// second-order-correction re-solve.
type AugmentedSystem struct {
	maxDim int
	matrix *mat.SymDense
	rhs    []float64
	sol    []float64
	solver SymmetricSolver

	n, m           int
	regularization float64
	factorized     bool
}

// NewAugmentedSystem allocates the workspace for at most maxVars
// variables and maxCons constraints.
func NewAugmentedSystem(maxVars, maxCons int, solver SymmetricSolver) *AugmentedSystem {
	dim := maxVars + maxCons
	return &AugmentedSystem{
		maxDim: dim,
		matrix: mat.NewSymDense(dim, nil),
		rhs:    make([]float64, dim),
		sol:    make([]float64, dim),
		solver: solver,
	}
}

// Assemble writes the barrier Lagrangian Hessian and the constraint
// Jacobian into the saddle-point matrix. The Hessian must already
// carry the diagonal barrier curvature 𝚺.
func (a *AugmentedSystem) Assemble(hess *nlp.SymMatrix, jac *mat.Dense, n, m int) {
	if n+m > a.maxDim {
		panic("barrier: augmented system exceeds allocation")
	}
	a.n, a.m = n, m
	a.factorized = false
	a.matrix.Zero()
	for i := 0; i < n; i++ {
		for k := i; k < n; k++ {
			a.matrix.SetSym(i, k, hess.At(i, k))
		}
	}
	for j := 0; j < m; j++ {
		for i := 0; i < n; i++ {
			a.matrix.SetSym(n+j, i, jac.At(j, i))
		}
	}
}

// FactorizeRegularize factorizes the assembled system and corrects its
// inertia to (n, m, 0). The primal block is perturbed by a multiple of
// μ^exponent, growing by a constant factor per retry; a rank-deficient
// constraint block additionally receives a negative dual perturbation.
// The applied primal perturbation is reported to the statistics sink.
func (a *AugmentedSystem) FactorizeRegularize(mu, exponent float64, st *stats.Statistics) error {
	n, m := a.n, a.m
	view := a.view()

	primal, dual := 0.0, 0.0
	for try := 0; try <= maxRegularizations; try++ {
		inertia, err := a.solver.Factorize(view)
		if err == nil && inertia.Positive == n && inertia.Negative == m && inertia.Zero == 0 {
			a.regularization = primal
			a.factorized = true
			if st != nil {
				st.Set("regularization", primal)
			}
			return nil
		}

		prevPrimal, prevDual := primal, dual
		if primal == 0 {
			primal = math.Pow(mu, exponent)
		} else {
			primal *= 100
		}
		if err == nil && inertia.Zero > 0 {
			if dual == 0 {
				dual = 1e-8 * math.Pow(mu, exponent)
			} else {
				dual *= 10
			}
		}
		for i := 0; i < n; i++ {
			a.matrix.SetSym(i, i, a.matrix.At(i, i)-prevPrimal+primal)
		}
		for j := 0; j < m; j++ {
			a.matrix.SetSym(n+j, n+j, a.matrix.At(n+j, n+j)+prevDual-dual)
		}
	}
	return ErrWrongInertia
}

// Solve solves the factorized system for the given right-hand side.
// The rhs buffer is owned by the system and filled by the caller via
// RHS before the call; the solution is readable via Solution.
func (a *AugmentedSystem) Solve() error {
	if !a.factorized {
		panic("barrier: solve before factorization")
	}
	return a.solver.Solve(a.rhs[:a.n+a.m], a.sol[:a.n+a.m])
}

// RHS exposes the right-hand-side buffer of the assembled system.
func (a *AugmentedSystem) RHS() []float64 { return a.rhs[:a.n+a.m] }

// Solution exposes the solution of the last Solve.
func (a *AugmentedSystem) Solution() []float64 { return a.sol[:a.n+a.m] }

// Regularization reports the primal perturbation of the last
// successful factorization.
func (a *AugmentedSystem) Regularization() float64 { return a.regularization }

func (a *AugmentedSystem) view() mat.Symmetric {
	if dim := a.n + a.m; dim < a.maxDim {
		return a.matrix.SliceSym(0, dim)
	}
	return a.matrix
}
