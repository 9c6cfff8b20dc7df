// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Func bundles the evaluation of a scalar function with its partial
// derivatives. When Grad is nil the derivative is estimated by central
// differences.
type Func struct {
	Eval func(x []float64) float64
	Grad func(x, grad []float64)
}

// Funcs specifies a model from plain closures.
type Funcs struct {
	Label string
	N     int // The problem dimension

	Objective   Func
	Constraints []Func

	VarBounds  []Bound // Optional variable bounds
	ConsBounds []Bound // One bound per constraint

	// Hessian evaluates 𝜵²[objMult·𝒇(𝐱) - 𝛌ᵀ𝒄(𝐱)]; when nil the
	// Lagrangian curvature is taken as zero.
	Hessian func(x []float64, objMult float64, multipliers []float64, hess *SymMatrix)

	X0   []float64 // Optional initial point
	Sign float64   // Objective sign: 0 or +1 minimize, -1 maximize
}

// Model validates the specification and returns the backing model.
func (f *Funcs) Model() (Model, error) {
	var err error
	switch {
	case f.N <= 0:
		err = errors.New("problem dimension must greater than 0")
	case f.Objective.Eval == nil:
		err = errors.New("objective function is required")
	case f.VarBounds != nil && len(f.VarBounds) != f.N:
		err = errors.New("bound size must equal to n")
	case len(f.ConsBounds) != len(f.Constraints):
		err = errors.New("constraint bound size must equal to constraint number")
	case f.X0 != nil && len(f.X0) != f.N:
		err = errors.New("initial point size must equal to n")
	case f.Sign != 0 && f.Sign != 1 && f.Sign != -1:
		err = errors.New("objective sign must be ±1")
	}
	for k, c := range f.Constraints {
		if c.Eval == nil {
			err = fmt.Errorf("constraint error at %d", k)
			break
		}
	}
	for k, b := range f.VarBounds {
		if b.Lower > b.Upper {
			err = fmt.Errorf("bound error at %d", k)
			break
		}
	}
	if err != nil {
		return nil, err
	}

	m := &funcModel{spec: *f}
	m.spec.Constraints = slices.Clone(f.Constraints)
	m.spec.ConsBounds = slices.Clone(f.ConsBounds)
	m.spec.VarBounds = slices.Clone(f.VarBounds)
	m.spec.X0 = slices.Clone(f.X0)
	if m.spec.Sign == 0 {
		m.spec.Sign = 1
	}
	if m.spec.Label == "" {
		m.spec.Label = "model"
	}
	return m, nil
}

type funcModel struct {
	spec Funcs
}

func (m *funcModel) Name() string           { return m.spec.Label }
func (m *funcModel) NumVariables() int      { return m.spec.N }
func (m *funcModel) NumConstraints() int    { return len(m.spec.Constraints) }
func (m *funcModel) ObjectiveSign() float64 { return m.spec.Sign }

func (m *funcModel) VariableBounds(i int) Bound {
	if m.spec.VarBounds == nil {
		return Unbound
	}
	return m.spec.VarBounds[i]
}

func (m *funcModel) ConstraintBounds(j int) Bound { return m.spec.ConsBounds[j] }

func (m *funcModel) Objective(x []float64) float64 { return m.spec.Objective.Eval(x) }

func (m *funcModel) ObjectiveGradient(x, grad []float64) {
	evalGradient(m.spec.Objective, x, grad)
}

func (m *funcModel) Constraints(x, cons []float64) {
	for j, c := range m.spec.Constraints {
		cons[j] = c.Eval(x)
	}
}

func (m *funcModel) ConstraintJacobian(x []float64, jac *mat.Dense) {
	row := make([]float64, m.spec.N)
	for j, c := range m.spec.Constraints {
		evalGradient(c, x, row)
		for i, v := range row {
			jac.Set(j, i, v)
		}
	}
}

func (m *funcModel) LagrangianHessian(x []float64, objMult float64, multipliers []float64, hess *SymMatrix) {
	if m.spec.Hessian != nil {
		m.spec.Hessian(x, objMult, multipliers, hess)
	}
}

func (m *funcModel) InitialPrimal(x []float64) {
	if m.spec.X0 != nil {
		copy(x, m.spec.X0)
		return
	}
	for i := range x[:m.spec.N] {
		x[i] = 0
	}
}

func (m *funcModel) InitialDual(multipliers []float64) {
	for j := range multipliers {
		multipliers[j] = 0
	}
}

// evalGradient uses the exact derivative when present, otherwise a
// central difference with a relative step ∛𝛆·𝚖𝚊𝚡(1,|𝐱ᵢ|).
func evalGradient(f Func, x, grad []float64) {
	if f.Grad != nil {
		f.Grad(x, grad)
		return
	}
	step := math.Cbrt(machEps)
	for i := range x {
		h := step * math.Max(1, math.Abs(x[i]))
		xi := x[i]
		x[i] = xi + h
		fp := f.Eval(x)
		x[i] = xi - h
		fm := f.Eval(x)
		x[i] = xi
		grad[i] = (fp - fm) / (2 * h)
	}
}

const machEps = float64(7)/3 - float64(4)/3 - 1.
