// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"gonum.org/v1/gonum/mat"
)

// EqualityConstrainedModel rewrites a model so that every constraint is
// the equality 𝒄(𝐱) = 0:
//
//   - inequality constraints receive a slack variable carrying the
//     original constraint bounds: 𝒄ⱼ(𝐱) - 𝐬ⱼ = 0
//   - equality constraints are shifted by their right-hand side
//
// This is the required form upstream of the interior-point subproblem,
// which only handles bound constraints through its barrier.
type EqualityConstrainedModel struct {
	model Model

	// SlackOfConstraint maps an inequality constraint index to its
	// slack variable index.
	SlackOfConstraint map[int]int
	// ConstraintOfSlack maps a slack offset (0-based) back to the
	// inequality constraint it relaxes.
	ConstraintOfSlack []int
}

// NewEqualityConstrainedModel wraps model, adding one slack variable
// per inequality constraint.
func NewEqualityConstrainedModel(model Model) *EqualityConstrainedModel {
	em := &EqualityConstrainedModel{
		model:             model,
		SlackOfConstraint: make(map[int]int),
	}
	for j := 0; j < model.NumConstraints(); j++ {
		if model.ConstraintBounds(j).Type() != EqualBounds {
			em.SlackOfConstraint[j] = model.NumVariables() + len(em.ConstraintOfSlack)
			em.ConstraintOfSlack = append(em.ConstraintOfSlack, j)
		}
	}
	return em
}

func (em *EqualityConstrainedModel) Name() string {
	return em.model.Name() + "_eq"
}

func (em *EqualityConstrainedModel) NumVariables() int {
	return em.model.NumVariables() + len(em.ConstraintOfSlack)
}

func (em *EqualityConstrainedModel) NumConstraints() int { return em.model.NumConstraints() }

func (em *EqualityConstrainedModel) ObjectiveSign() float64 { return em.model.ObjectiveSign() }

func (em *EqualityConstrainedModel) VariableBounds(i int) Bound {
	if i < em.model.NumVariables() {
		return em.model.VariableBounds(i)
	}
	return em.model.ConstraintBounds(em.ConstraintOfSlack[i-em.model.NumVariables()])
}

func (em *EqualityConstrainedModel) ConstraintBounds(int) Bound { return Bound{} } // c(x) = 0

func (em *EqualityConstrainedModel) Objective(x []float64) float64 {
	return em.model.Objective(x[:em.model.NumVariables()])
}

func (em *EqualityConstrainedModel) ObjectiveGradient(x, grad []float64) {
	em.model.ObjectiveGradient(x[:em.model.NumVariables()], grad[:em.model.NumVariables()])
	for i := em.model.NumVariables(); i < em.NumVariables(); i++ {
		grad[i] = 0
	}
}

func (em *EqualityConstrainedModel) Constraints(x, cons []float64) {
	em.model.Constraints(x[:em.model.NumVariables()], cons)
	for j := range cons {
		if slack, ok := em.SlackOfConstraint[j]; ok {
			cons[j] -= x[slack]
		} else {
			cons[j] -= em.model.ConstraintBounds(j).Lower
		}
	}
}

func (em *EqualityConstrainedModel) ConstraintJacobian(x []float64, jac *mat.Dense) {
	em.model.ConstraintJacobian(x[:em.model.NumVariables()], jac)
	for j := 0; j < em.NumConstraints(); j++ {
		if slack, ok := em.SlackOfConstraint[j]; ok {
			jac.Set(j, slack, -1)
		}
	}
}

// LagrangianHessian forwards to the original model: the slacks enter
// the constraints linearly and contribute no curvature.
func (em *EqualityConstrainedModel) LagrangianHessian(x []float64, objMult float64, multipliers []float64, hess *SymMatrix) {
	em.model.LagrangianHessian(x[:em.model.NumVariables()], objMult, multipliers, hess)
}

func (em *EqualityConstrainedModel) InitialPrimal(x []float64) {
	em.model.InitialPrimal(x[:em.model.NumVariables()])
	for i := em.model.NumVariables(); i < em.NumVariables(); i++ {
		x[i] = 0
	}
}

func (em *EqualityConstrainedModel) InitialDual(multipliers []float64) {
	em.model.InitialDual(multipliers)
}

// SetSlacks overwrites the slack entries of x with the current
// constraint values, the natural starting values for 𝒄(𝐱) - 𝐬 = 0.
func (em *EqualityConstrainedModel) SetSlacks(x, cons []float64) {
	for j, slack := range em.SlackOfConstraint {
		x[slack] = cons[j]
	}
}
