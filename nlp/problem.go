// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"gonum.org/v1/gonum/mat"
)

// Problem is a reformulated view over a Model. It may extend the
// variable space with slack or elastic variables, and fixes the sign
// convention of the objective for the current phase.
//
// Evaluation calls require an Iterate allocated for at least the
// problem dimensions and write into caller-supplied buffers; there is
// no hidden caching beyond the iterate's own flags.
type Problem interface {
	Model() Model
	NumVariables() int
	NumConstraints() int

	// ObjectiveMultiplier is nonzero in the optimality phase and zero
	// during pure feasibility restoration.
	ObjectiveMultiplier() float64

	EvaluateObjective(it *Iterate) float64
	EvaluateObjectiveGradient(it *Iterate, grad []float64)
	EvaluateConstraints(it *Iterate, cons []float64)
	EvaluateConstraintJacobian(it *Iterate, jac *mat.Dense)
	EvaluateLagrangianHessian(x, multipliers []float64, hess *SymMatrix)

	VariableBounds(i int) Bound
	ConstraintBounds(j int) Bound

	// Partitions returns the immutable bound classification of the
	// problem, computed once at construction.
	Partitions() *Partitions

	// InfeasibilityMeasure is the L1 violation of the original
	// constraints at the iterate.
	InfeasibilityMeasure(it *Iterate) float64
	// OptimalityMeasure is the phase objective at the iterate.
	OptimalityMeasure(it *Iterate) float64
}

// OptimalityProblem is the regular-phase view: the model itself, with
// partitions precomputed.
type OptimalityProblem struct {
	model      Model
	partitions *Partitions
}

// NewOptimalityProblem builds the optimality-phase view of model.
func NewOptimalityProblem(model Model) *OptimalityProblem {
	return &OptimalityProblem{
		model:      model,
		partitions: NewPartitions(model.NumVariables(), model.NumConstraints(), model.VariableBounds, model.ConstraintBounds),
	}
}

func (p *OptimalityProblem) Model() Model            { return p.model }
func (p *OptimalityProblem) NumVariables() int       { return p.model.NumVariables() }
func (p *OptimalityProblem) NumConstraints() int     { return p.model.NumConstraints() }
func (p *OptimalityProblem) Partitions() *Partitions { return p.partitions }

func (p *OptimalityProblem) ObjectiveMultiplier() float64 { return p.model.ObjectiveSign() }

func (p *OptimalityProblem) EvaluateObjective(it *Iterate) float64 {
	return it.EvaluateObjective(p.model)
}

func (p *OptimalityProblem) EvaluateObjectiveGradient(it *Iterate, grad []float64) {
	copy(grad[:p.NumVariables()], it.EvaluateObjectiveGradient(p.model))
}

func (p *OptimalityProblem) EvaluateConstraints(it *Iterate, cons []float64) {
	copy(cons[:p.NumConstraints()], it.EvaluateConstraints(p.model))
}

func (p *OptimalityProblem) EvaluateConstraintJacobian(it *Iterate, jac *mat.Dense) {
	jac.Copy(it.EvaluateConstraintJacobian(p.model))
}

func (p *OptimalityProblem) EvaluateLagrangianHessian(x, multipliers []float64, hess *SymMatrix) {
	hess.Reset(p.NumVariables())
	p.model.LagrangianHessian(x[:p.NumVariables()], p.ObjectiveMultiplier(), multipliers, hess)
}

func (p *OptimalityProblem) VariableBounds(i int) Bound   { return p.model.VariableBounds(i) }
func (p *OptimalityProblem) ConstraintBounds(j int) Bound { return p.model.ConstraintBounds(j) }

func (p *OptimalityProblem) InfeasibilityMeasure(it *Iterate) float64 {
	return TotalViolation(p.model, it.EvaluateConstraints(p.model))
}

// OptimalityMeasure is the raw objective value; the globalization
// merit scales it by the objective multiplier.
func (p *OptimalityProblem) OptimalityMeasure(it *Iterate) float64 {
	return it.EvaluateObjective(p.model)
}

// IsConstrained reports whether the problem has general constraints.
func IsConstrained(p Problem) bool { return p.NumConstraints() > 0 }
