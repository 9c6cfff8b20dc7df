// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activeset

import (
	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/nlpopt/nlp"
)

// QPSubproblem computes a direction from the quadratic model of the
// problem inside the trust region:
//
//	𝚖𝚒𝚗 𝐠ᵀ𝐝 + ½𝐝ᵀ𝐇𝐝  subject to the linearized constraint and
//	variable bounds of the LP subproblem
//
// with 𝐇 the Lagrangian Hessian at the current iterate. An infeasible
// linearization is restored through the elastic relaxation of the
// problem, which is feasible by construction.
type QPSubproblem struct {
	subproblem
	hessian *nlp.SymMatrix
	nhess   int
}

// NewQPSubproblem allocates a QP subproblem for at most maxVars
// variables and maxCons constraints. maxVars must account for the
// elastic variables when feasibility restoration may be requested.
func NewQPSubproblem(maxVars, maxCons int, solver Solver) *QPSubproblem {
	return &QPSubproblem{
		subproblem: newSubproblem(maxVars, maxCons, solver),
		hessian:    nlp.NewSymMatrix(maxVars),
	}
}

// Solve builds the quadratic model of problem at it and solves the
// trust-region QP. The Hessian is re-evaluated on every solve with the
// iterate's current multipliers.
func (s *QPSubproblem) Solve(problem nlp.Problem, it *nlp.Iterate, ws nlp.Warmstart) (*nlp.Direction, error) {
	dir, err := s.solveQP(problem, it, ws)
	if err != nil {
		return dir, err
	}
	dir.Phase = nlp.Optimality
	dir.ObjectiveMultiplier = problem.ObjectiveMultiplier()
	return dir, checkStatus(dir)
}

// SolveFeasibility solves the elastic relaxation of the problem as a
// QP. The problem must be the elastic reformulation; the rejected
// optimality direction seeds the warm start for the original
// variables, the elastic entries come from the iterate prepared by
// InitializeFeasibility.
func (s *QPSubproblem) SolveFeasibility(problem nlp.Problem, it *nlp.Iterate, rejected *nlp.Direction) (*nlp.Direction, error) {
	fp, ok := problem.(*nlp.FeasibilityProblem)
	if !ok {
		panic("activeset: QP feasibility restoration requires the elastic reformulation")
	}
	n := fp.NumVariables()
	numOriginal := n - fp.Elastics.Count
	if rejected != nil {
		copy(s.initial[:numOriginal], rejected.Primals[:numOriginal])
		for i := numOriginal; i < n; i++ {
			s.initial[i] = it.Primals[i]
		}
	}

	dir, err := s.solveQP(fp, it, nlp.FullWarmstart())
	if err != nil {
		return dir, err
	}
	dir.Phase = nlp.Restoration
	dir.ObjectiveMultiplier = 0
	// classify the original constraints, not their elastic relaxation
	dir.ConstraintPartition = nlp.PartitionConstraints(it.EvaluateConstraints(fp.Model()), fp.Model().ConstraintBounds)
	recoverActiveSet(dir, fp.Elastics, numOriginal)
	return dir, checkStatus(dir)
}

// InitializeFeasibility seeds the elastic entries of the iterate for
// restoration: zero value and unit lower-bound multiplier, so the
// first elastic QP starts from the relaxation of the current point.
func (s *QPSubproblem) InitializeFeasibility(problem nlp.Problem, it *nlp.Iterate) {
	fp, ok := problem.(*nlp.FeasibilityProblem)
	if !ok {
		panic("activeset: QP feasibility restoration requires the elastic reformulation")
	}
	fp.SetElasticValues(it, func(it *nlp.Iterate, j, elasticIndex int, sign float64) {
		it.Primals[elasticIndex] = 0
		it.Multipliers.LowerBounds[elasticIndex] = 1
	})
	it.Invalidate()
}

// HessianEvaluationCount reports how many Lagrangian Hessians were
// evaluated so far.
func (s *QPSubproblem) HessianEvaluationCount() int { return s.nhess }

func (s *QPSubproblem) solveQP(problem nlp.Problem, it *nlp.Iterate, ws nlp.Warmstart) (*nlp.Direction, error) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	dir := s.direction
	dir.Reset(n, m)

	if ws.ObjectiveChanged {
		problem.EvaluateObjectiveGradient(it, s.gradient)
		scaleGradient(s.gradient[:n], problem.ObjectiveMultiplier())
	}
	jac := s.jacobianView(n, m)
	if ws.ConstraintsChanged && m > 0 {
		problem.EvaluateConstraints(it, s.constraints)
		problem.EvaluateConstraintJacobian(it, jac)
	}
	problem.EvaluateLagrangianHessian(it.Primals, it.Multipliers.Constraints, s.hessian)
	s.nhess++
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
		Hessian:      s.hessian,
		InitialPoint: s.initial[:n],
		Warmstart:    ws,
	}
	if err := s.solver.SolveQP(req, dir); err != nil {
		return nil, err
	}
	s.nsolved++
	s.computeDualDisplacements(problem, it, dir)

	linear := floats.Dot(s.gradient[:n], dir.Primals[:n])
	quadratic := s.hessian.QuadraticForm(dir.Primals[:n])
	dir.PredictedReduction = quadraticPredictedReduction(dir, linear, quadratic)
	return dir, nil
}
