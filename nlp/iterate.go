// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"gonum.org/v1/gonum/mat"
)

// Multipliers holds the dual estimates associated with the general
// constraints and with the variable bounds.
type Multipliers struct {
	Constraints []float64
	LowerBounds []float64
	UpperBounds []float64
}

// NewMultipliers allocates zeroed multipliers for nvar variables and
// ncons constraints.
func NewMultipliers(nvar, ncons int) Multipliers {
	return Multipliers{
		Constraints: make([]float64, ncons),
		LowerBounds: make([]float64, nvar),
		UpperBounds: make([]float64, nvar),
	}
}

// Progress bundles the measures used by the globalization strategy.
type Progress struct {
	// Infeasibility is the norm of the constraint violation.
	Infeasibility float64
	// Optimality is the phase-dependent objective measure.
	Optimality float64
	// Auxiliary carries subproblem-specific terms (barrier terms for
	// the interior-point subproblem, 0 for active-set subproblems).
	Auxiliary float64
}

// Evaluations caches the model evaluations of an iterate, with one
// "is computed" flag per evaluation.
type Evaluations struct {
	Objective          float64
	Constraints        []float64
	ObjectiveGradient  []float64
	ConstraintJacobian *mat.Dense

	ObjectiveDone   bool
	ConstraintsDone bool
	GradientDone    bool
	JacobianDone    bool
}

// Iterate is a candidate point bundling primal values, multiplier
// estimates and cached evaluations. It is owned exclusively by the
// driver for one outer iteration and replaced, not merged, when a
// trial step is accepted.
type Iterate struct {
	// NumVariables is the active primal dimension. The buffers may be
	// larger when the problem carries slack or elastic variables.
	NumVariables   int
	NumConstraints int

	Primals     []float64
	Multipliers Multipliers
	Evals       Evaluations
	Progress    Progress
}

// NewIterate allocates an iterate sized for nvar variables and ncons
// constraints.
func NewIterate(nvar, ncons int) *Iterate {
	jac := (*mat.Dense)(nil)
	if ncons > 0 {
		jac = mat.NewDense(ncons, nvar, nil)
	}
	return &Iterate{
		NumVariables:   nvar,
		NumConstraints: ncons,
		Primals:        make([]float64, nvar),
		Multipliers:    NewMultipliers(nvar, ncons),
		Evals: Evaluations{
			Constraints:        make([]float64, ncons),
			ObjectiveGradient:  make([]float64, nvar),
			ConstraintJacobian: jac,
		},
	}
}

// Clone returns a deep copy of the iterate.
func (it *Iterate) Clone() *Iterate {
	dst := NewIterate(len(it.Primals), it.NumConstraints)
	dst.CopyFrom(it)
	return dst
}

// CopyFrom overwrites the iterate with a deep copy of src.
// Both iterates must have been allocated with the same dimensions.
func (it *Iterate) CopyFrom(src *Iterate) {
	if len(it.Primals) != len(src.Primals) || it.NumConstraints != src.NumConstraints {
		panic("nlp: iterate dimensions do not match")
	}
	it.NumVariables = src.NumVariables
	copy(it.Primals, src.Primals)
	copy(it.Multipliers.Constraints, src.Multipliers.Constraints)
	copy(it.Multipliers.LowerBounds, src.Multipliers.LowerBounds)
	copy(it.Multipliers.UpperBounds, src.Multipliers.UpperBounds)
	it.Evals.Objective = src.Evals.Objective
	copy(it.Evals.Constraints, src.Evals.Constraints)
	copy(it.Evals.ObjectiveGradient, src.Evals.ObjectiveGradient)
	if src.Evals.ConstraintJacobian != nil {
		it.Evals.ConstraintJacobian.Copy(src.Evals.ConstraintJacobian)
	}
	it.Evals.ObjectiveDone = src.Evals.ObjectiveDone
	it.Evals.ConstraintsDone = src.Evals.ConstraintsDone
	it.Evals.GradientDone = src.Evals.GradientDone
	it.Evals.JacobianDone = src.Evals.JacobianDone
	it.Progress = src.Progress
}

// Invalidate clears all evaluation flags. Must be called whenever the
// primal values are mutated in place.
func (it *Iterate) Invalidate() {
	it.Evals.ObjectiveDone = false
	it.Evals.ConstraintsDone = false
	it.Evals.GradientDone = false
	it.Evals.JacobianDone = false
}

// EvaluateObjective returns 𝒇(𝐱), evaluating it at most once per point.
func (it *Iterate) EvaluateObjective(m Model) float64 {
	if !it.Evals.ObjectiveDone {
		it.Evals.Objective = m.Objective(it.Primals[:m.NumVariables()])
		it.Evals.ObjectiveDone = true
	}
	return it.Evals.Objective
}

// EvaluateConstraints returns 𝒄(𝐱), evaluating it at most once per point.
func (it *Iterate) EvaluateConstraints(m Model) []float64 {
	if !it.Evals.ConstraintsDone {
		m.Constraints(it.Primals[:m.NumVariables()], it.Evals.Constraints[:m.NumConstraints()])
		it.Evals.ConstraintsDone = true
	}
	return it.Evals.Constraints[:m.NumConstraints()]
}

// EvaluateObjectiveGradient returns 𝜵𝒇(𝐱), evaluating it at most once
// per point.
func (it *Iterate) EvaluateObjectiveGradient(m Model) []float64 {
	if !it.Evals.GradientDone {
		n := m.NumVariables()
		m.ObjectiveGradient(it.Primals[:n], it.Evals.ObjectiveGradient[:n])
		it.Evals.GradientDone = true
	}
	return it.Evals.ObjectiveGradient[:m.NumVariables()]
}

// EvaluateConstraintJacobian returns 𝜵𝒄(𝐱), evaluating it at most once
// per point.
func (it *Iterate) EvaluateConstraintJacobian(m Model) *mat.Dense {
	if !it.Evals.JacobianDone {
		m.ConstraintJacobian(it.Primals[:m.NumVariables()], it.Evals.ConstraintJacobian)
		it.Evals.JacobianDone = true
	}
	return it.Evals.ConstraintJacobian
}
