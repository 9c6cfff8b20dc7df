// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ElasticVariables maps constraints to the auxiliary nonnegative
// variables relaxing them: one "negative part" variable n per
// constraint with a finite lower bound, one "positive part" variable p
// per constraint with a finite upper bound. Indices are unique,
// contiguous, and start immediately after the original variable count.
type ElasticVariables struct {
	// Positive maps a constraint index to the variable absorbing the
	// positive part of its violation, Negative the negative part.
	Positive map[int]int
	Negative map[int]int
	// Count is the total number of elastic variables.
	Count int
}

// GenerateElasticVariables assigns one variable index per
// (constraint, finite-bound side) pair, in increasing constraint order,
// negative part first then positive part, starting at firstIndex.
func GenerateElasticVariables(ncons int, consBound func(int) Bound, firstIndex int) *ElasticVariables {
	e := &ElasticVariables{
		Positive: make(map[int]int),
		Negative: make(map[int]int),
	}
	index := firstIndex
	for j := 0; j < ncons; j++ {
		b := consBound(j)
		if IsFinite(b.Lower) {
			e.Negative[j] = index
			index++
		}
		if IsFinite(b.Upper) {
			e.Positive[j] = index
			index++
		}
	}
	e.Count = index - firstIndex
	return e
}

// FeasibilityProblem is the exact L1 relaxation of a problem:
//
//	𝚖𝚒𝚗 ∑(𝐩ⱼ + 𝐧ⱼ) subject to 𝒄ˡ ≤ 𝒄(𝐱) - 𝐩 + 𝐧 ≤ 𝒄ᵘ, 𝐩 ≥ 0, 𝐧 ≥ 0
//
// The objective multiplier is zero: the original objective plays no
// role during pure feasibility restoration.
type FeasibilityProblem struct {
	base       Problem
	Elastics   *ElasticVariables
	partitions *Partitions
}

// NewFeasibilityProblem relaxes base with elastic variables.
func NewFeasibilityProblem(base Problem) *FeasibilityProblem {
	p := &FeasibilityProblem{
		base:     base,
		Elastics: GenerateElasticVariables(base.NumConstraints(), base.ConstraintBounds, base.NumVariables()),
	}
	p.partitions = NewPartitions(p.NumVariables(), p.NumConstraints(), p.VariableBounds, p.ConstraintBounds)
	return p
}

func (p *FeasibilityProblem) Model() Model            { return p.base.Model() }
func (p *FeasibilityProblem) NumVariables() int       { return p.base.NumVariables() + p.Elastics.Count }
func (p *FeasibilityProblem) NumConstraints() int     { return p.base.NumConstraints() }
func (p *FeasibilityProblem) Partitions() *Partitions { return p.partitions }

func (p *FeasibilityProblem) ObjectiveMultiplier() float64 { return 0 }

// EvaluateObjective returns the elastic sum, the exact L1 violation
// absorbed by the relaxation.
func (p *FeasibilityProblem) EvaluateObjective(it *Iterate) (sum float64) {
	for i := p.base.NumVariables(); i < p.NumVariables(); i++ {
		sum += it.Primals[i]
	}
	return
}

func (p *FeasibilityProblem) EvaluateObjectiveGradient(it *Iterate, grad []float64) {
	for i := 0; i < p.base.NumVariables(); i++ {
		grad[i] = 0
	}
	for i := p.base.NumVariables(); i < p.NumVariables(); i++ {
		grad[i] = 1
	}
}

func (p *FeasibilityProblem) EvaluateConstraints(it *Iterate, cons []float64) {
	p.base.EvaluateConstraints(it, cons)
	for j := range cons[:p.NumConstraints()] {
		if i, ok := p.Elastics.Positive[j]; ok {
			cons[j] -= it.Primals[i]
		}
		if i, ok := p.Elastics.Negative[j]; ok {
			cons[j] += it.Primals[i]
		}
	}
}

func (p *FeasibilityProblem) EvaluateConstraintJacobian(it *Iterate, jac *mat.Dense) {
	p.base.EvaluateConstraintJacobian(it, jac)
	for j := 0; j < p.NumConstraints(); j++ {
		if i, ok := p.Elastics.Positive[j]; ok {
			jac.Set(j, i, -1)
		}
		if i, ok := p.Elastics.Negative[j]; ok {
			jac.Set(j, i, 1)
		}
	}
}

// EvaluateLagrangianHessian extends the base Lagrangian Hessian with
// zero curvature for the elastic variables; the objective term drops
// out since the objective multiplier is zero.
func (p *FeasibilityProblem) EvaluateLagrangianHessian(x, multipliers []float64, hess *SymMatrix) {
	hess.Reset(p.NumVariables())
	p.Model().LagrangianHessian(x[:p.Model().NumVariables()], 0, multipliers, hess)
}

func (p *FeasibilityProblem) VariableBounds(i int) Bound {
	if i < p.base.NumVariables() {
		return p.base.VariableBounds(i)
	}
	return Bound{0, math.Inf(1)}
}

func (p *FeasibilityProblem) ConstraintBounds(j int) Bound { return p.base.ConstraintBounds(j) }

func (p *FeasibilityProblem) InfeasibilityMeasure(it *Iterate) float64 {
	return p.base.InfeasibilityMeasure(it)
}

// OptimalityMeasure during restoration is the residual absorbed by the
// elastic variables.
func (p *FeasibilityProblem) OptimalityMeasure(it *Iterate) float64 {
	return p.EvaluateObjective(it)
}

// SetElasticValues applies assign to every elastic variable of the
// iterate. The sign s is +1 for negative-part variables and -1 for
// positive-part variables, matching their Jacobian coefficients.
func (p *FeasibilityProblem) SetElasticValues(it *Iterate, assign func(it *Iterate, j, elasticIndex int, sign float64)) {
	for j := 0; j < p.NumConstraints(); j++ {
		if i, ok := p.Elastics.Negative[j]; ok {
			assign(it, j, i, 1)
		}
		if i, ok := p.Elastics.Positive[j]; ok {
			assign(it, j, i, -1)
		}
	}
}
