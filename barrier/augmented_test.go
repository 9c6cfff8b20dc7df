// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

func TestAugmentedSystemSolve(t *testing.T) {
	// min d² s.t. d1 + d2 = 0 around the KKT system
	// [2 0 1; 0 2 1; 1 1 0]
	hess := nlp.NewSymMatrix(2)
	hess.Set(0, 0, 2)
	hess.Set(1, 1, 2)
	jac := mat.NewDense(1, 2, []float64{1, 1})

	a := NewAugmentedSystem(2, 1, NewSpectralSolver(3))
	a.Assemble(hess, jac, 2, 1)
	if err := a.FactorizeRegularize(0.1, 0.25, nil); err != nil {
		t.Fatal(err)
	}
	if a.Regularization() != 0 {
		t.Fatalf("well-posed system regularized by %g", a.Regularization())
	}

	rhs := a.RHS()
	rhs[0], rhs[1], rhs[2] = 2, 0, 0
	if err := a.Solve(); err != nil {
		t.Fatal(err)
	}
	sol := a.Solution()
	// solution (0.5, -0.5, 1)
	want := []float64{0.5, -0.5, 1}
	for i, w := range want {
		if math.Abs(sol[i]-w) > 1e-10 {
			t.Errorf("sol[%d] = %g, want %g", i, sol[i], w)
		}
	}
}

func TestFactorizeRegularizeCorrectsInertia(t *testing.T) {
	// concave Hessian: inertia (0,1,0) instead of (1,0,0)
	hess := nlp.NewSymMatrix(1)
	hess.Set(0, 0, -1)

	a := NewAugmentedSystem(1, 0, NewSpectralSolver(1))
	a.Assemble(hess, nil, 1, 0)
	if err := a.FactorizeRegularize(0.1, 0.25, nil); err != nil {
		t.Fatal(err)
	}
	if a.Regularization() <= 0 {
		t.Fatal("indefinite system accepted without regularization")
	}
	// μ^0.25 ≈ 0.56 does not flip -1; the next retry uses 100×
	if want := math.Pow(0.1, 0.25) * 100; math.Abs(a.Regularization()-want) > 1e-12 {
		t.Errorf("regularization = %g, want %g", a.Regularization(), want)
	}
}

func TestSolveBeforeFactorizePanics(t *testing.T) {
	a := NewAugmentedSystem(1, 0, NewSpectralSolver(1))
	hess := nlp.NewSymMatrix(1)
	hess.Set(0, 0, 1)
	a.Assemble(hess, nil, 1, 0)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on solve before factorization")
		}
	}()
	_ = a.Solve()
}
