// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"math"
	"testing"

	"github.com/curioloop/nlpopt/nlp"
)

func boundedProblem(t *testing.T, bounds []nlp.Bound, x0 []float64) nlp.Problem {
	t.Helper()
	model, err := (&nlp.Funcs{
		N: len(bounds),
		Objective: nlp.Func{
			Eval: func(x []float64) float64 {
				sum := 0.0
				for _, v := range x {
					sum += v
				}
				return sum
			},
			Grad: func(x, g []float64) {
				for i := range g {
					g[i] = 1
				}
			},
		},
		VarBounds: bounds,
		X0:        x0,
	}).Model()
	if err != nil {
		t.Fatal(err)
	}
	return nlp.NewOptimalityProblem(model)
}

func newTestPrimalDual(maxVars, maxCons int) *PrimalDual {
	return NewPrimalDual(maxVars, maxCons, NewSpectralSolver(maxVars+maxCons), DefaultOptions(), nil, nil)
}

func TestInitializePushesToInterior(t *testing.T) {
	problem := boundedProblem(t, []nlp.Bound{
		{Lower: 0, Upper: math.Inf(1)},
		{Lower: 0, Upper: 1},
		{Lower: -2, Upper: 2},
	}, nil)
	s := newTestPrimalDual(3, 0)

	it := nlp.NewIterate(3, 0)
	// start exactly on a bound and outside a bound
	it.Primals[0], it.Primals[1], it.Primals[2] = 0, 1, -5
	s.Initialize(problem, it)

	for i := 0; i < 3; i++ {
		b := problem.VariableBounds(i)
		if !(it.Primals[i] > b.Lower) || !(it.Primals[i] < b.Upper) {
			t.Errorf("variable %d = %g not strictly inside %v", i, it.Primals[i], b)
		}
	}
	// default multiplier signs: positive lower, negative upper
	if it.Multipliers.LowerBounds[0] <= 0 {
		t.Errorf("lower multiplier = %g, want > 0", it.Multipliers.LowerBounds[0])
	}
	if it.Multipliers.UpperBounds[1] >= 0 {
		t.Errorf("upper multiplier = %g, want < 0", it.Multipliers.UpperBounds[1])
	}
}

func TestSolveRespectsFractionToBoundary(t *testing.T) {
	// min Σx with x ≥ 0: the Newton step pushes hard toward the bound
	// but the step length must keep the trial strictly positive
	problem := boundedProblem(t, []nlp.Bound{
		{Lower: 0, Upper: math.Inf(1)},
		{Lower: 0, Upper: math.Inf(1)},
	}, []float64{10, 0.5})
	s := newTestPrimalDual(2, 0)

	it := nlp.NewIterate(2, 0)
	it.Primals[0], it.Primals[1] = 10, 0.5
	s.Initialize(problem, it)

	dir, err := s.Solve(problem, it, nlp.FullWarmstart())
	if err != nil {
		t.Fatal(err)
	}
	if !(dir.PrimalDualStepLength > 0 && dir.PrimalDualStepLength <= 1) {
		t.Fatalf("primal step length = %g, want (0, 1]", dir.PrimalDualStepLength)
	}
	if !(dir.BoundDualStepLength > 0 && dir.BoundDualStepLength <= 1) {
		t.Fatalf("dual step length = %g, want (0, 1]", dir.BoundDualStepLength)
	}
	for i := 0; i < 2; i++ {
		trial := it.Primals[i] + dir.PrimalDualStepLength*dir.Primals[i]
		if !(trial > 0) {
			t.Errorf("trial variable %d = %g crossed its bound", i, trial)
		}
	}
	if dir.PredictedReduction == nil || !(dir.PredictedReduction(dir.PrimalDualStepLength) > 0) {
		t.Error("descent direction predicts no reduction")
	}
}

func TestSolveFullStepWhenBoundNotThreatened(t *testing.T) {
	// near the barrier-centered point the Newton step stops well short
	// of the bound and the multiplier barely moves: neither step length
	// is clipped
	problem := boundedProblem(t, []nlp.Bound{{Lower: 0, Upper: math.Inf(1)}}, []float64{0.1})
	s := newTestPrimalDual(1, 0)

	it := nlp.NewIterate(1, 0)
	it.Primals[0] = 0.1
	s.Initialize(problem, it)

	dir, err := s.Solve(problem, it, nlp.FullWarmstart())
	if err != nil {
		t.Fatal(err)
	}
	if dir.PrimalDualStepLength != 1 {
		t.Errorf("primal step length = %g, want exactly 1", dir.PrimalDualStepLength)
	}
	if dir.BoundDualStepLength != 1 {
		t.Errorf("dual step length = %g, want exactly 1", dir.BoundDualStepLength)
	}
	if trial := it.Primals[0] + dir.Primals[0]; !(trial > 0.01) {
		t.Errorf("trial = %g, want well inside the domain", trial)
	}
}

func TestInitializeFeasibilityElasticValues(t *testing.T) {
	// one equality constraint x = 2 violated at x = 0
	model, err := (&nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0] },
			Grad: func(x, g []float64) { g[0] = 1 },
		},
		Constraints: []nlp.Func{{
			Eval: func(x []float64) float64 { return x[0] - 2 },
			Grad: func(x, g []float64) { g[0] = 1 },
		}},
		ConsBounds: []nlp.Bound{{Lower: 0, Upper: 0}},
	}).Model()
	if err != nil {
		t.Fatal(err)
	}
	fp := nlp.NewFeasibilityProblem(nlp.NewOptimalityProblem(model))

	s := newTestPrimalDual(fp.NumVariables(), 1)
	it := nlp.NewIterate(fp.NumVariables(), 1)

	muBefore := s.Mu()
	s.InitializeFeasibility(fp, it)

	// μ raised to the violation norm ‖c‖∞ = 2
	if s.Mu() != 2 {
		t.Fatalf("μ = %g, want 2", s.Mu())
	}

	// closed form: value = (μ - s·c + √(c²+μ²))/2, multiplier = μ/value
	c, mu := -2.0, 2.0
	neg, pos := fp.Elastics.Negative[0], fp.Elastics.Positive[0]
	wantNeg := (mu - c + math.Sqrt(c*c+mu*mu)) / 2
	wantPos := (mu + c + math.Sqrt(c*c+mu*mu)) / 2
	if math.Abs(it.Primals[neg]-wantNeg) > 1e-12 {
		t.Errorf("negative elastic = %g, want %g", it.Primals[neg], wantNeg)
	}
	if math.Abs(it.Primals[pos]-wantPos) > 1e-12 {
		t.Errorf("positive elastic = %g, want %g", it.Primals[pos], wantPos)
	}
	for _, i := range []int{neg, pos} {
		if !(it.Primals[i] > 0) {
			t.Errorf("elastic %d = %g, want strictly positive", i, it.Primals[i])
		}
		want := mu / it.Primals[i]
		if math.Abs(it.Multipliers.LowerBounds[i]-want) > 1e-12 {
			t.Errorf("elastic dual %d = %g, want %g", i, it.Multipliers.LowerBounds[i], want)
		}
	}

	// the relaxed constraint is exactly satisfied... up to the barrier
	// perturbation absorbed by the pair
	s.ExitFeasibility(fp, it)
	if s.Mu() != muBefore {
		t.Fatalf("μ after restoration = %g, want the snapshot %g", s.Mu(), muBefore)
	}
}

func TestSetAuxiliaryMeasure(t *testing.T) {
	problem := boundedProblem(t, []nlp.Bound{
		{Lower: 0, Upper: math.Inf(1)},
		{Lower: 1, Upper: 3},
	}, nil)
	s := newTestPrimalDual(2, 0)

	it := nlp.NewIterate(2, 0)
	it.Primals[0], it.Primals[1] = 2, 2
	s.SetAuxiliaryMeasure(problem, it)

	opts := DefaultOptions()
	mu := opts.InitialParameter
	want := mu * (-math.Log(2) - math.Log(2-1) - math.Log(3-2) + opts.DampingFactor*2)
	if math.Abs(it.Progress.Auxiliary-want) > 1e-12 {
		t.Errorf("auxiliary = %g, want %g", it.Progress.Auxiliary, want)
	}
}

func TestPostprocessIterateClampsMultipliers(t *testing.T) {
	problem := boundedProblem(t, []nlp.Bound{{Lower: 0, Upper: math.Inf(1)}}, nil)
	s := newTestPrimalDual(1, 0)

	it := nlp.NewIterate(1, 0)
	it.Primals[0] = 1
	it.Multipliers.LowerBounds[0] = 1e30 // far above the safeguard band
	s.PostprocessIterate(problem, it)

	mu := DefaultOptions().InitialParameter
	if want := mu / 1 * DefaultOptions().KSigma; it.Multipliers.LowerBounds[0] != want {
		t.Errorf("clamped multiplier = %g, want %g", it.Multipliers.LowerBounds[0], want)
	}
}
