// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package activeset implements the trust-region LP/QP subproblem
// family: the objective and constraints are linearized at the current
// iterate, intersected with a trust region, and handed to an LP or QP
// backend. An L1 elastic reformulation turns an infeasible
// linearization into a well-posed feasibility subproblem.
package activeset

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

// ErrUnbounded reports that the LP/QP direction is unbounded. This is
// not locally recoverable and propagates to the driver.
var ErrUnbounded = errors.New("activeset: subproblem is unbounded")

// Request carries one linearized subproblem to a backend solver.
type Request struct {
	N, M int

	// VarBounds bound the displacement, ConsBounds the linearized
	// constraint values 𝐉𝐝.
	VarBounds  []nlp.Bound
	ConsBounds []nlp.Bound

	Gradient []float64
	Jacobian *mat.Dense
	// Hessian is nil for LP requests.
	Hessian *nlp.SymMatrix

	InitialPoint []float64
	Warmstart    nlp.Warmstart
}

// Solver is the LP/QP backend consumed by this package. The backend
// fills dir with the primal solution and *new* multiplier estimates
// (not displacements) and reports a definite status.
type Solver interface {
	SolveLP(req *Request, dir *nlp.Direction) error
	SolveQP(req *Request, dir *nlp.Direction) error
}

// subproblem carries the workspaces shared by the LP and QP
// subproblems. All buffers are sized once to the maximum dimensions
// and reused for every iteration.
type subproblem struct {
	maxVars, maxCons int

	varBounds  []nlp.Bound
	consBounds []nlp.Bound
	gradient   []float64
	constraints []float64
	jacobian   *mat.Dense
	initial    []float64

	radius    float64
	solver    Solver
	direction *nlp.Direction
	nsolved   int
}

func newSubproblem(maxVars, maxCons int, solver Solver) subproblem {
	var jac *mat.Dense
	if maxCons > 0 {
		jac = mat.NewDense(maxCons, maxVars, nil)
	}
	return subproblem{
		maxVars: maxVars, maxCons: maxCons,
		varBounds:   make([]nlp.Bound, maxVars),
		consBounds:  make([]nlp.Bound, maxCons),
		gradient:    make([]float64, maxVars),
		constraints: make([]float64, maxCons),
		jacobian:    jac,
		initial:     make([]float64, maxVars),
		radius:      math.Inf(1),
		solver:      solver,
		direction:   nlp.NewDirection(maxVars, maxCons),
	}
}

// SetTrustRegionRadius bounds the displacement by Δ in the ∞-norm.
func (s *subproblem) SetTrustRegionRadius(radius float64) {
	if !(radius > 0) {
		panic("activeset: trust region radius must be positive")
	}
	s.radius = radius
}

// SetInitialPoint records the warm-start point for the next solve.
func (s *subproblem) SetInitialPoint(point []float64) {
	copy(s.initial, point)
	for i := len(point); i < len(s.initial); i++ {
		s.initial[i] = 0
	}
}

// Initialize is a no-op: active-set subproblems start from the model's
// initial point as given.
func (s *subproblem) Initialize(nlp.Problem, *nlp.Iterate) {}

// ExitFeasibility is a no-op: the active-set restoration keeps no
// internal state across phase switches.
func (s *subproblem) ExitFeasibility(nlp.Problem, *nlp.Iterate) {}

// SetAuxiliaryMeasure zeroes the auxiliary progress term: active-set
// subproblems contribute no barrier-like terms to the merit.
func (s *subproblem) SetAuxiliaryMeasure(_ nlp.Problem, it *nlp.Iterate) {
	it.Progress.Auxiliary = 0
}

// PostprocessIterate is a no-op for active-set subproblems.
func (s *subproblem) PostprocessIterate(nlp.Problem, *nlp.Iterate) {}

// generateVariableBounds intersects the shifted variable bounds with
// the trust region: 𝚖𝚊𝚡(-Δ, 𝒍ᵢ-𝐱ᵢ) ≤ 𝐝ᵢ ≤ 𝚖𝚒𝚗(Δ, 𝒖ᵢ-𝐱ᵢ).
// Additional variables beyond the original model (slacks, elastics)
// are not restricted by the trust region.
func (s *subproblem) generateVariableBounds(problem nlp.Problem, it *nlp.Iterate) {
	orig := min(problem.Model().NumVariables(), problem.NumVariables())
	for i := 0; i < orig; i++ {
		b := problem.VariableBounds(i)
		s.varBounds[i] = nlp.Bound{
			Lower: math.Max(-s.radius, b.Lower-it.Primals[i]),
			Upper: math.Min(s.radius, b.Upper-it.Primals[i]),
		}
	}
	for i := orig; i < problem.NumVariables(); i++ {
		b := problem.VariableBounds(i)
		s.varBounds[i] = nlp.Bound{Lower: b.Lower - it.Primals[i], Upper: b.Upper - it.Primals[i]}
	}
}

// generateConstraintBounds shifts the constraint bounds by the current
// constraint values: 𝒄ˡⱼ-𝒄ⱼ ≤ 𝐉ⱼ𝐝 ≤ 𝒄ᵘⱼ-𝒄ⱼ.
func (s *subproblem) generateConstraintBounds(problem nlp.Problem, cons []float64) {
	for j := 0; j < problem.NumConstraints(); j++ {
		b := problem.ConstraintBounds(j)
		s.consBounds[j] = nlp.Bound{Lower: b.Lower - cons[j], Upper: b.Upper - cons[j]}
	}
}

// computeDualDisplacements converts the new multiplier estimates
// returned by the backend into the displacements expected by the
// globalization layer.
func (s *subproblem) computeDualDisplacements(problem nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) {
	for j := 0; j < problem.NumConstraints(); j++ {
		dir.Multipliers.Constraints[j] -= it.Multipliers.Constraints[j]
	}
	for i := 0; i < problem.NumVariables(); i++ {
		dir.Multipliers.LowerBounds[i] -= it.Multipliers.LowerBounds[i]
		dir.Multipliers.UpperBounds[i] -= it.Multipliers.UpperBounds[i]
	}
}

// linearPredictedReduction is the LP model decrease: exactly linear in
// the step length, with no curvature term.
func linearPredictedReduction(dir *nlp.Direction) func(float64) float64 {
	objective := dir.Objective
	return func(stepLength float64) float64 {
		return -stepLength * objective
	}
}

// quadraticPredictedReduction is the QP model decrease
// -𝛂𝐠ᵀ𝐝 - ½𝛂²𝐝ᵀ𝐇𝐝.
func quadraticPredictedReduction(dir *nlp.Direction, linear, quadratic float64) func(float64) float64 {
	return func(stepLength float64) float64 {
		return -stepLength*linear - 0.5*stepLength*stepLength*quadratic
	}
}

// scaleGradient applies the phase sign convention to the objective
// gradient. A zero multiplier means the gradient already models the
// restoration objective and is used as is.
func scaleGradient(grad []float64, objectiveMultiplier float64) {
	if objectiveMultiplier == 0 || objectiveMultiplier == 1 {
		return
	}
	for i := range grad {
		grad[i] *= objectiveMultiplier
	}
}

// checkStatus maps a backend status to the layer's error convention:
// unboundedness is an error for the driver, infeasibility is a status
// the driver resolves by switching phase.
func checkStatus(dir *nlp.Direction) error {
	if dir.Status == nlp.StatusUnbounded {
		return ErrUnbounded
	}
	return nil
}
