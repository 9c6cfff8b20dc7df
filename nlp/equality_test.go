// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// 2 variables, one inequality (slack) and one shifted equality
func newEqualityTestModel(t *testing.T) *EqualityConstrainedModel {
	t.Helper()
	model := testModel(t, &Funcs{
		N: 2,
		Objective: Func{
			Eval: func(x []float64) float64 { return x[0] + x[1] },
			Grad: func(x, g []float64) { g[0], g[1] = 1, 1 },
		},
		Constraints: []Func{
			{
				Eval: func(x []float64) float64 { return x[0] * x[1] },
				Grad: func(x, g []float64) { g[0], g[1] = x[1], x[0] },
			},
			{
				Eval: func(x []float64) float64 { return x[0] - x[1] },
				Grad: func(x, g []float64) { g[0], g[1] = 1, -1 },
			},
		},
		ConsBounds: []Bound{{0, 4}, {3, 3}},
	})
	return NewEqualityConstrainedModel(model)
}

func TestEqualityConstrainedModel(t *testing.T) {
	em := newEqualityTestModel(t)

	if em.NumVariables() != 3 {
		t.Fatalf("variables = %d, want 3 (one slack)", em.NumVariables())
	}
	if slack, ok := em.SlackOfConstraint[0]; !ok || slack != 2 {
		t.Fatalf("slack of constraint 0 = %d, want 2", slack)
	}
	if _, ok := em.SlackOfConstraint[1]; ok {
		t.Fatal("equality constraint received a slack")
	}

	// the slack inherits the inequality's range, every constraint is c = 0
	if b := em.VariableBounds(2); b.Lower != 0 || b.Upper != 4 {
		t.Errorf("slack bounds = %v, want [0, 4]", b)
	}
	if b := em.ConstraintBounds(0); b.Lower != 0 || b.Upper != 0 {
		t.Errorf("constraint bounds = %v, want {0, 0}", b)
	}

	x := []float64{2, 3, 5}
	cons := make([]float64, 2)
	em.Constraints(x, cons)
	if cons[0] != 2*3-5 {
		t.Errorf("slacked constraint = %g, want %g", cons[0], 2*3-5.0)
	}
	if cons[1] != (2-3)-3 {
		t.Errorf("shifted equality = %g, want %g", cons[1], (2-3)-3.0)
	}

	jac := mat.NewDense(2, 3, nil)
	em.ConstraintJacobian(x, jac)
	if jac.At(0, 2) != -1 {
		t.Errorf("slack Jacobian entry = %g, want -1", jac.At(0, 2))
	}
	if jac.At(1, 2) != 0 {
		t.Errorf("equality has slack entry %g, want 0", jac.At(1, 2))
	}

	grad := make([]float64, 3)
	em.ObjectiveGradient(x, grad)
	if grad[2] != 0 {
		t.Errorf("slack objective gradient = %g, want 0", grad[2])
	}
}

func TestSetSlacks(t *testing.T) {
	em := newEqualityTestModel(t)

	x := []float64{2, 3, 0}
	cons := make([]float64, 2)
	em.Constraints(x, cons) // zero slack: residual is the raw value
	em.SetSlacks(x, cons)

	if x[2] != 6 {
		t.Fatalf("seeded slack = %g, want 6", x[2])
	}
	em.Constraints(x, cons)
	if cons[0] != 0 {
		t.Fatalf("residual after seeding = %g, want 0", cons[0])
	}
}
