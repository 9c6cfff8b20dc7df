// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activeset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

// LPSubproblem computes a direction from the linear model of the
// problem inside the trust region:
//
//	𝚖𝚒𝚗 𝐠ᵀ𝐝  subject to  𝒄ˡ-𝒄 ≤ 𝐉𝐝 ≤ 𝒄ᵘ-𝒄, 𝚖𝚊𝚡(-Δ,𝒍-𝐱) ≤ 𝐝 ≤ 𝚖𝚒𝚗(Δ,𝒖-𝐱)
//
// When the linearization is infeasible the restoration direction comes
// from an L1 feasibility LP built on the constraint partition instead
// of elastic variables.
type LPSubproblem struct {
	subproblem
}

// NewLPSubproblem allocates an LP subproblem for at most maxVars
// variables and maxCons constraints.
func NewLPSubproblem(maxVars, maxCons int, solver Solver) *LPSubproblem {
	return &LPSubproblem{subproblem: newSubproblem(maxVars, maxCons, solver)}
}

// Solve linearizes problem at it and solves the trust-region LP.
// Evaluation is gated by the warmstart flags so unchanged data is not
// recomputed. The returned direction is owned by the subproblem until
// the next solve.
func (s *LPSubproblem) Solve(problem nlp.Problem, it *nlp.Iterate, ws nlp.Warmstart) (*nlp.Direction, error) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	dir := s.direction
	dir.Reset(n, m)
	dir.Phase = nlp.Optimality
	dir.ObjectiveMultiplier = problem.ObjectiveMultiplier()

	if ws.ObjectiveChanged {
		problem.EvaluateObjectiveGradient(it, s.gradient)
		scaleGradient(s.gradient[:n], problem.ObjectiveMultiplier())
	}
	jac := s.jacobianView(n, m)
	if ws.ConstraintsChanged && m > 0 {
		problem.EvaluateConstraints(it, s.constraints)
		problem.EvaluateConstraintJacobian(it, jac)
	}
	if ws.VariableBoundsChanged {
		s.generateVariableBounds(problem, it)
	}
	if ws.ConstraintBoundsChanged {
		s.generateConstraintBounds(problem, s.constraints)
	}

	req := &Request{
		N: n, M: m,
		VarBounds:    s.varBounds[:n],
		ConsBounds:   s.consBounds[:m],
		Gradient:     s.gradient[:n],
		Jacobian:     jac,
		InitialPoint: s.initial[:n],
		Warmstart:    ws,
	}
	if err := s.solver.SolveLP(req, dir); err != nil {
		return nil, err
	}
	s.nsolved++
	s.computeDualDisplacements(problem, it, dir)
	dir.PredictedReduction = linearPredictedReduction(dir)
	return dir, checkStatus(dir)
}

// SolveFeasibility minimizes the linearized L1 constraint violation.
// The infeasible constraints are classified at the current iterate and
// their linearized bounds relaxed to one side, so the LP is always
// feasible (𝐝 = 0 satisfies it). The rejected optimality direction
// seeds the warm start.
func (s *LPSubproblem) SolveFeasibility(problem nlp.Problem, it *nlp.Iterate, rejected *nlp.Direction) (*nlp.Direction, error) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	jac := s.jacobianView(n, m)
	problem.EvaluateConstraints(it, s.constraints)
	problem.EvaluateConstraintJacobian(it, jac)

	partition := nlp.PartitionConstraints(s.constraints[:m], problem.ConstraintBounds)
	computeL1LinearObjective(jac, partition, n, s.gradient)
	s.generateVariableBounds(problem, it)
	s.generateFeasibilityBounds(problem, s.constraints, partition)
	if rejected != nil {
		copy(s.initial[:n], rejected.Primals[:n])
	}

	dir := s.direction
	dir.Reset(n, m)
	dir.Phase = nlp.Restoration
	dir.ObjectiveMultiplier = 0
	dir.ConstraintPartition = partition

	req := &Request{
		N: n, M: m,
		VarBounds:    s.varBounds[:n],
		ConsBounds:   s.consBounds[:m],
		Gradient:     s.gradient[:n],
		Jacobian:     jac,
		InitialPoint: s.initial[:n],
		Warmstart:    nlp.FullWarmstart(),
	}
	if err := s.solver.SolveLP(req, dir); err != nil {
		return nil, err
	}
	s.nsolved++
	s.computeDualDisplacements(problem, it, dir)
	dir.PredictedReduction = linearPredictedReduction(dir)
	return dir, checkStatus(dir)
}

// InitializeFeasibility is a no-op: the L1 feasibility LP works on the
// constraint partition and needs no elastic state in the iterate.
func (s *LPSubproblem) InitializeFeasibility(nlp.Problem, *nlp.Iterate) {}

// HessianEvaluationCount is always zero for the linear model.
func (s *LPSubproblem) HessianEvaluationCount() int { return 0 }

func (s *subproblem) jacobianView(n, m int) *mat.Dense {
	if m == 0 {
		return nil
	}
	return s.jacobian.Slice(0, m, 0, n).(*mat.Dense)
}
