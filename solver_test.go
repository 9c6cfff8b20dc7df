// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/curioloop/nlpopt/nlp"
)

func buildModel(t *testing.T, f *nlp.Funcs) nlp.Model {
	t.Helper()
	model, err := f.Model()
	if err != nil {
		t.Fatal(err)
	}
	return model
}

// boundedQuadratic is 𝚖𝚒𝚗 (x-3)² over [0, 5] starting at 1; the
// minimizer x = 3 is interior.
func boundedQuadratic(t *testing.T) nlp.Model {
	return buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return (x[0] - 3) * (x[0] - 3) },
			Grad: func(x, g []float64) { g[0] = 2 * (x[0] - 3) },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: 5}},
		Hessian: func(x []float64, objMult float64, multipliers []float64, hess *nlp.SymMatrix) {
			hess.Set(0, 0, 2*objMult)
		},
		X0: []float64{1},
	})
}

func TestNewValidatesModel(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("nil model accepted")
	}
}

func TestSolveUnsupportedStrategy(t *testing.T) {
	opts := DefaultOptions()
	opts.Set("subproblem", "steepest_descent")
	s, err := New(boundedQuadratic(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Solve()
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("err = %v, want the unsupported-strategy error", err)
	}
	if !strings.Contains(err.Error(), "primal_dual_interior_point") {
		t.Errorf("err = %v, want the list of available strategies", err)
	}
}

func TestSolveUnsupportedBackend(t *testing.T) {
	opts := DefaultOptions()
	opts.Set("lp_qp_solver", "sparse")
	s, err := New(boundedQuadratic(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Solve(); err == nil || !strings.Contains(err.Error(), "dense") {
		t.Fatalf("err = %v, want the unsupported-backend error", err)
	}
}

func TestSolveQPBoundConstrainedQuadratic(t *testing.T) {
	s, err := New(boundedQuadratic(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	// the Newton step of the quadratic lands on the minimizer exactly
	if math.Abs(res.X[0]-3) > 1e-9 {
		t.Errorf("x = %g, want 3", res.X[0])
	}
	if math.Abs(res.Objective) > 1e-12 {
		t.Errorf("objective = %g, want 0", res.Objective)
	}
	if res.NumIter > 3 {
		t.Errorf("iterations = %d, want at most 3", res.NumIter)
	}
	if res.HessianEvaluations == 0 {
		t.Error("no Hessian evaluations recorded")
	}
}

func TestSolveLPLinearObjective(t *testing.T) {
	// 𝚖𝚒𝚗 -x over [0, 3.5]: the LP step lands on the active bound in
	// one iteration and the recovered dual certifies optimality
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return -x[0] },
			Grad: func(x, g []float64) { g[0] = -1 },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: 3.5}},
		X0:        []float64{1},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "LP")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if math.Abs(res.X[0]-3.5) > 1e-9 {
		t.Errorf("x = %g, want 3.5", res.X[0])
	}
	if math.Abs(res.Objective+3.5) > 1e-9 {
		t.Errorf("objective = %g, want -3.5", res.Objective)
	}
	if math.Abs(res.Multipliers.UpperBounds[0]+1) > 1e-9 {
		t.Errorf("upper bound dual = %g, want -1", res.Multipliers.UpperBounds[0])
	}
	if res.KKTError > 1e-9 {
		t.Errorf("KKT error = %g, want 0", res.KKTError)
	}
	if res.NumIter != 1 {
		t.Errorf("iterations = %d, want 1", res.NumIter)
	}
}

func TestSolveLPFixedVariable(t *testing.T) {
	// 𝚖𝚒𝚗 -x with x fixed at 2 by equal bounds and x + y ≤ 10: the
	// fixed variable must end on its pinned value, not on the
	// constraint slack
	model := buildModel(t, &nlp.Funcs{
		N: 2,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return -x[0] },
			Grad: func(x, g []float64) { g[0], g[1] = -1, 0 },
		},
		Constraints: []nlp.Func{{
			Eval: func(x []float64) float64 { return x[0] + x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		}},
		ConsBounds: []nlp.Bound{{Lower: math.Inf(-1), Upper: 10}},
		VarBounds:  []nlp.Bound{{Lower: 2, Upper: 2}, {Lower: 0, Upper: 10}},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "LP")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if math.Abs(res.X[0]-2) > 1e-9 {
		t.Errorf("fixed variable = %g, want 2", res.X[0])
	}
	if v := res.X[0] + res.X[1]; v > 10+1e-9 {
		t.Errorf("constraint value = %g, exceeds 10", v)
	}
	if math.Abs(res.Objective+2) > 1e-9 {
		t.Errorf("objective = %g, want -2", res.Objective)
	}
}

func TestSolveQPWithoutHessian(t *testing.T) {
	// 𝚖𝚒𝚗 -x over [0, 3.5] with no curvature callback: the QP KKT
	// system degenerates to an LP and must still reach the bound
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return -x[0] },
			Grad: func(x, g []float64) { g[0] = -1 },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: 3.5}},
		X0:        []float64{1},
	})
	s, err := New(model, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if math.Abs(res.X[0]-3.5) > 1e-6 {
		t.Errorf("x = %g, want 3.5", res.X[0])
	}
	if math.Abs(res.Multipliers.UpperBounds[0]+1) > 1e-6 {
		t.Errorf("upper bound dual = %g, want -1", res.Multipliers.UpperBounds[0])
	}
	if res.NumIter > 3 {
		t.Errorf("iterations = %d, want at most 3", res.NumIter)
	}
}

func TestSolveQPInequalityConstrained(t *testing.T) {
	// 𝚖𝚒𝚗 x² + y² subject to x + y ≥ 1: solution (½, ½) with λ = 1
	model := buildModel(t, &nlp.Funcs{
		N: 2,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 2*x[0], 2*x[1] },
		},
		Constraints: []nlp.Func{{
			Eval: func(x []float64) float64 { return x[0] + x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		}},
		ConsBounds: []nlp.Bound{{Lower: 1, Upper: math.Inf(1)}},
		Hessian: func(x []float64, objMult float64, multipliers []float64, hess *nlp.SymMatrix) {
			hess.Set(0, 0, 2*objMult)
			hess.Set(1, 1, 2*objMult)
		},
	})
	s, err := New(model, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	for i := 0; i < 2; i++ {
		if math.Abs(res.X[i]-0.5) > 1e-8 {
			t.Errorf("x[%d] = %g, want 0.5", i, res.X[i])
		}
	}
	if math.Abs(res.Multipliers.Constraints[0]-1) > 1e-8 {
		t.Errorf("λ = %g, want 1", res.Multipliers.Constraints[0])
	}
	if math.Abs(res.Objective-0.5) > 1e-8 {
		t.Errorf("objective = %g, want 0.5", res.Objective)
	}
}

func TestSolveQPLocallyInfeasible(t *testing.T) {
	// x ≥ 2 and x ≤ 1 admit no point: the first linearization is
	// already infeasible, restoration stalls at violation 1 inside the
	// gap [1, 2] and the solver reports local infeasibility
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0] },
			Grad: func(x, g []float64) { g[0] = 1 },
		},
		Constraints: []nlp.Func{
			{
				Eval: func(x []float64) float64 { return x[0] },
				Grad: func(x, g []float64) { g[0] = 1 },
			},
			{
				Eval: func(x []float64) float64 { return x[0] },
				Grad: func(x, g []float64) { g[0] = 1 },
			},
		},
		ConsBounds: []nlp.Bound{
			{Lower: 2, Upper: math.Inf(1)},
			{Lower: math.Inf(-1), Upper: 1},
		},
		VarBounds: []nlp.Bound{{Lower: -10, Upper: 10}},
	})
	s, err := New(model, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("infeasible problem reported as converged")
	}
	if res.Status != LocallyInfeasible {
		t.Errorf("status = %v, want LOCALLY_INFEASIBLE", res.Status)
	}
	if res.Phase != nlp.Restoration {
		t.Errorf("phase = %v, want RESTORATION", res.Phase)
	}
	if math.Abs(res.Infeasibility-1) > 0.1 {
		t.Errorf("infeasibility = %g, want 1", res.Infeasibility)
	}
	if !(res.X[0] >= 1-1e-6 && res.X[0] <= 2+1e-6) {
		t.Errorf("x = %g, want inside the gap [1, 2]", res.X[0])
	}
}

func TestSolveInteriorPointBound(t *testing.T) {
	// 𝚖𝚒𝚗 x with x ≥ 0 from far inside the domain: the barrier drives
	// x toward the bound while the dual settles at 1
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0] },
			Grad: func(x, g []float64) { g[0] = 1 },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: math.Inf(1)}},
		X0:        []float64{10},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "primal_dual_interior_point")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if !(res.X[0] > 0 && res.X[0] <= 1e-3) {
		t.Errorf("x = %g, want strictly interior and near 0", res.X[0])
	}
	if math.Abs(res.Multipliers.LowerBounds[0]-1) > 0.1 {
		t.Errorf("bound dual = %g, want 1", res.Multipliers.LowerBounds[0])
	}
	if res.NumIter > 100 {
		t.Errorf("iterations = %d, want far below the limit", res.NumIter)
	}
}

func TestSolveInteriorPointInteriority(t *testing.T) {
	// every point the barrier method evaluates must stay strictly
	// inside the bound, and μ must never increase between iterations
	var evals []float64
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 {
				evals = append(evals, x[0])
				return x[0]
			},
			Grad: func(x, g []float64) { g[0] = 1 },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: math.Inf(1)}},
		X0:        []float64{10},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "primal_dual_interior_point")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	s.SetStatistics(&sb)
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if len(evals) == 0 {
		t.Fatal("objective never evaluated")
	}
	for _, x := range evals {
		if !(x > 0) {
			t.Fatalf("objective evaluated at x = %g, outside the open domain", x)
		}
	}

	mus := statsColumn(t, sb.String(), "barrier param.")
	if len(mus) == 0 {
		t.Fatal("no barrier parameter values recorded")
	}
	for i := 1; i < len(mus); i++ {
		if mus[i] > mus[i-1] {
			t.Errorf("barrier parameter increased from %g to %g at row %d", mus[i-1], mus[i], i)
		}
	}
	if last := mus[len(mus)-1]; !(last < mus[0]) {
		t.Errorf("barrier parameter never decreased from %g", mus[0])
	}
}

// statsColumn extracts one numeric column from the fixed-width
// statistics table; rows without a value for the column are skipped.
func statsColumn(t *testing.T, out, name string) []float64 {
	t.Helper()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	end := strings.Index(lines[0], name)
	if end < 0 {
		t.Fatalf("column %q not found in header %q", name, lines[0])
	}
	end += len(name)
	start := end - 14
	if start < 0 {
		start = 0
	}
	var vals []float64
	for _, line := range lines[1:] {
		if end > len(line) {
			continue
		}
		field := strings.TrimSpace(line[start:end])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			t.Fatalf("column %q value %q: %v", name, field, err)
		}
		vals = append(vals, v)
	}
	return vals
}

func TestSolveInteriorPointEqualityConstrained(t *testing.T) {
	// 𝚖𝚒𝚗 x² + y² subject to x + y = 1: one Newton step from the
	// origin reaches (½, ½) with λ = 1
	model := buildModel(t, &nlp.Funcs{
		N: 2,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 2*x[0], 2*x[1] },
		},
		Constraints: []nlp.Func{{
			Eval: func(x []float64) float64 { return x[0] + x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		}},
		ConsBounds: []nlp.Bound{{Lower: 1, Upper: 1}},
		Hessian: func(x []float64, objMult float64, multipliers []float64, hess *nlp.SymMatrix) {
			hess.Set(0, 0, 2*objMult)
			hess.Set(1, 1, 2*objMult)
		},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "primal_dual_interior_point")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	for i := 0; i < 2; i++ {
		if math.Abs(res.X[i]-0.5) > 1e-6 {
			t.Errorf("x[%d] = %g, want 0.5", i, res.X[i])
		}
	}
	if math.Abs(res.Multipliers.Constraints[0]-1) > 1e-6 {
		t.Errorf("λ = %g, want 1", res.Multipliers.Constraints[0])
	}
	if res.NumIter > 3 {
		t.Errorf("iterations = %d, want the single Newton step", res.NumIter)
	}
}

func TestSolveInteriorPointInequalitySlack(t *testing.T) {
	// the same problem with an inequality: the barrier receives it as a
	// bounded equality through the slack reformulation
	model := buildModel(t, &nlp.Funcs{
		N: 2,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 2*x[0], 2*x[1] },
		},
		Constraints: []nlp.Func{{
			Eval: func(x []float64) float64 { return x[0] + x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		}},
		ConsBounds: []nlp.Bound{{Lower: 1, Upper: math.Inf(1)}},
		Hessian: func(x []float64, objMult float64, multipliers []float64, hess *nlp.SymMatrix) {
			for i := 0; i < 2; i++ {
				hess.Set(i, i, 2*objMult)
			}
		},
	})
	opts := DefaultOptions()
	opts.Set("subproblem", "primal_dual_interior_point")
	s, err := New(model, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	for i := 0; i < 2; i++ {
		if math.Abs(res.X[i]-0.5) > 1e-3 {
			t.Errorf("x[%d] = %g, want 0.5", i, res.X[i])
		}
	}
	if math.Abs(res.Multipliers.Constraints[0]-1) > 1e-2 {
		t.Errorf("λ = %g, want 1", res.Multipliers.Constraints[0])
	}
}

func TestSolveMaximize(t *testing.T) {
	// 𝚖𝚊𝚡 -(x-3)² over [0, 5]: the internal minimization of the signed
	// objective reaches the same stationary point
	model := buildModel(t, &nlp.Funcs{
		N: 1,
		Objective: nlp.Func{
			Eval: func(x []float64) float64 { return -(x[0] - 3) * (x[0] - 3) },
			Grad: func(x, g []float64) { g[0] = -2 * (x[0] - 3) },
		},
		VarBounds: []nlp.Bound{{Lower: 0, Upper: 5}},
		Hessian: func(x []float64, objMult float64, multipliers []float64, hess *nlp.SymMatrix) {
			hess.Set(0, 0, -2*objMult)
		},
		X0:   []float64{1},
		Sign: -1,
	})
	s, err := New(model, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Solve()
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Status != Converged {
		t.Fatalf("status = %v, want CONVERGED", res.Status)
	}
	if math.Abs(res.X[0]-3) > 1e-9 {
		t.Errorf("x = %g, want 3", res.X[0])
	}
	if math.Abs(res.Objective) > 1e-12 {
		t.Errorf("objective = %g, want 0", res.Objective)
	}
}

func TestSolveStatisticsOutput(t *testing.T) {
	var sb strings.Builder
	s, err := New(boundedQuadratic(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetStatistics(&sb)
	if _, err := s.Solve(); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, col := range []string{"iter", "phase", "objective", "infeasibility"} {
		if !strings.Contains(out, col) {
			t.Errorf("statistics output missing column %q", col)
		}
	}
	if lines := strings.Count(strings.TrimRight(out, "\n"), "\n"); lines < 1 {
		t.Errorf("statistics output has no rows:\n%s", out)
	}
}
