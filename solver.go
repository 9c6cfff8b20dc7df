// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/curioloop/nlpopt/activeset"
	"github.com/curioloop/nlpopt/nlp"
	"github.com/curioloop/nlpopt/qpsolve"
	"github.com/curioloop/nlpopt/stats"
	"github.com/curioloop/nlpopt/twophase"
)

// Solver drives the two-phase globalized iteration over a model:
// at each outer iteration a subproblem produces a direction, a
// backtracking line search tests trial points against the exact
// penalty merit, and the phase state machine switches to feasibility
// restoration when the linearization admits no feasible point.
type Solver struct {
	model nlp.Model
	opts  *Options

	log    *slog.Logger
	statsW io.Writer
}

// New validates the model and creates a solver. A nil opts selects the
// defaults.
func New(model nlp.Model, opts *Options) (*Solver, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch {
	case model == nil:
		return nil, errors.New("nlpopt: model is nil")
	case model.NumVariables() <= 0:
		return nil, errors.New("nlpopt: model has no variables")
	case model.NumConstraints() < 0:
		return nil, errors.New("nlpopt: model has a negative constraint count")
	case model.ObjectiveSign() != 1 && model.ObjectiveSign() != -1:
		return nil, errors.New("nlpopt: objective sign must be ±1")
	}
	for i := 0; i < model.NumVariables(); i++ {
		if b := model.VariableBounds(i); b.Lower > b.Upper {
			return nil, fmt.Errorf("nlpopt: variable %d has inverted bounds [%g, %g]", i, b.Lower, b.Upper)
		}
	}
	for j := 0; j < model.NumConstraints(); j++ {
		if b := model.ConstraintBounds(j); b.Lower > b.Upper {
			return nil, fmt.Errorf("nlpopt: constraint %d has inverted bounds [%g, %g]", j, b.Lower, b.Upper)
		}
	}
	return &Solver{
		model: model,
		opts:  opts,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger installs a structured logger for solver warnings.
func (s *Solver) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// SetStatistics installs a sink for the per-iteration statistics table.
func (s *Solver) SetStatistics(w io.Writer) { s.statsW = w }

// Solve runs the outer iteration until convergence or a definite
// failure status. It returns an error only for configuration problems
// and unrecoverable linear-algebra failures; unsuccessful terminations
// (iteration limit, local infeasibility, unboundedness) are reported
// through the result status.
func (s *Solver) Solve() (*Result, error) {
	kind := s.opts.GetString("subproblem")
	model := s.model
	if kind == "primal_dual_interior_point" {
		// the barrier handles bounds only: constraints become the
		// equalities c(x) - s = 0 with bounded slacks
		model = nlp.NewEqualityConstrainedModel(model)
	}
	op := nlp.NewOptimalityProblem(model)
	fp := nlp.NewFeasibilityProblem(op)
	maxVars, m := fp.NumVariables(), op.NumConstraints()

	st := stats.New(s.statsW)
	st.AddColumn("iter", 0)
	st.AddColumn("phase", 2)
	st.AddColumn("objective", 10)
	st.AddColumn("infeasibility", 11)
	st.AddColumn("step length", 12)

	sub, err := newSubproblem(kind, maxVars, m, s.opts, st, s.log)
	if err != nil {
		return nil, err
	}
	merit := twophase.NewMeritFunction(twophase.Options{
		ArmijoDecreaseFraction: s.opts.GetFloat("armijo_decrease_fraction"),
		ArmijoTolerance:        s.opts.GetFloat("armijo_tolerance"),
	}, st)
	tolerance := s.opts.GetFloat("tolerance")
	strategy := twophase.NewStrategy(merit, tolerance)

	restoration := nlp.Problem(fp)
	if kind == "LP" {
		// the L1 feasibility LP relaxes constraint bounds in place and
		// needs no elastic variables
		restoration = op
	}

	it, trial := nlp.NewIterate(maxVars, m), nlp.NewIterate(maxVars, m)
	it.NumVariables = op.NumVariables()
	model.InitialPrimal(it.Primals[:model.NumVariables()])
	model.InitialDual(it.Multipliers.Constraints[:m])
	if em, ok := model.(*nlp.EqualityConstrainedModel); ok {
		// with zero slacks the equality residuals are the raw
		// inequality constraint values, the natural slack seeds
		cons := make([]float64, m)
		em.Constraints(it.Primals[:em.NumVariables()], cons)
		em.SetSlacks(it.Primals, cons)
		it.Invalidate()
	}
	sub.Initialize(op, it)
	computeProgress(op, sub, it)

	radius := s.opts.GetFloat("initial_trust_region_radius")
	minRadius := s.opts.GetFloat("min_trust_region_radius")
	trustRegion := kind != "primal_dual_interior_point"
	maxIter := s.opts.GetInt("max_iterations")
	maxBacktracks := s.opts.GetInt("max_backtracks")

	// cur outlives the subproblem's internal direction buffer, which a
	// second-order correction or the next solve overwrites
	cur := nlp.NewDirection(maxVars, m)
	var rejected *nlp.Direction
	ws := nlp.FullWarmstart()

	enterRestoration := func(dir *nlp.Direction) {
		strategy.EnterRestoration()
		sub.InitializeFeasibility(restoration, it)
		it.NumVariables = restoration.NumVariables()
		computeProgress(restoration, sub, it)
		rejected = dir
		ws = nlp.FullWarmstart()
	}
	terminate := func(iter int, status TerminationStatus) *Result {
		st.Flush()
		return s.finish(op, sub, it, status, strategy.Phase(), iter)
	}

	for iter := 1; iter <= maxIter; iter++ {
		st.Set("iter", iter)
		st.Set("phase", strategy.Phase())
		st.Set("objective", it.Progress.Optimality)
		st.Set("infeasibility", it.Progress.Infeasibility)

		if strategy.Phase() == nlp.Optimality {
			kkt := twophase.KKTError(op, it, op.ObjectiveMultiplier())
			compl := twophase.ComplementarityError(op, it)
			if it.Progress.Infeasibility <= tolerance && kkt <= tolerance && compl <= tolerance {
				return terminate(iter-1, Converged), nil
			}
		}

		if trustRegion {
			sub.SetTrustRegionRadius(radius)
		}
		sub.SetInitialPoint(nil)

		problem := nlp.Problem(op)
		if strategy.Phase() == nlp.Restoration {
			problem = restoration
		}

		var dir *nlp.Direction
		var err error
		if strategy.Phase() == nlp.Optimality {
			dir, err = sub.Solve(problem, it, ws)
		} else {
			dir, err = sub.SolveFeasibility(problem, it, rejected)
			rejected = nil
		}
		switch {
		case err == nil:
		case errors.Is(err, activeset.ErrUnbounded):
			return terminate(iter, Unbounded), nil
		case errors.Is(err, qpsolve.ErrIterationLimit) && trustRegion && radius > minRadius:
			radius = math.Max(minRadius, radius/2)
			ws = nlp.FullWarmstart()
			st.Flush()
			continue
		default:
			return nil, err
		}
		cur.CopyFrom(dir)

		if cur.Status == nlp.StatusInfeasible {
			if strategy.Phase() == nlp.Restoration {
				return terminate(iter, LocallyInfeasible), nil
			}
			enterRestoration(cur)
			st.Flush()
			continue
		}
		if cur.SmallStep {
			if strategy.Phase() == nlp.Restoration {
				return terminate(iter, LocallyInfeasible), nil
			}
			return terminate(iter, SmallStep), nil
		}

		accepted, alpha := s.lineSearch(problem, sub, strategy, it, trial, cur, maxBacktracks)
		st.Set("step length", alpha)

		if accepted {
			it, trial = trial, it
			sub.PostprocessIterate(problem, it)

			if strategy.CanExitRestoration(it.Progress) {
				it.NumVariables = op.NumVariables()
				sub.ExitFeasibility(op, it)
				strategy.ExitRestoration()
				computeProgress(op, sub, it)
			}
			if trustRegion && alpha == 1 {
				radius *= 2
			}
			ws = nlp.FullWarmstart()
		} else {
			switch {
			case strategy.NeedsRestoration(cur, true, it.Progress.Infeasibility):
				enterRestoration(cur)
			case !trustRegion:
				// the backtracking and the second-order correction of
				// the Newton step both failed
				if strategy.Phase() == nlp.Restoration {
					return terminate(iter, LocallyInfeasible), nil
				}
				return terminate(iter, SmallStep), nil
			case radius <= minRadius:
				if strategy.Phase() == nlp.Restoration {
					return terminate(iter, LocallyInfeasible), nil
				}
				return terminate(iter, SmallStep), nil
			default:
				radius = math.Max(minRadius, radius/2)
				ws = nlp.Warmstart{VariableBoundsChanged: true}
			}
		}
		st.Flush()
	}
	return s.finish(op, sub, it, IterationLimit, strategy.Phase(), maxIter), nil
}

// lineSearch backtracks along the direction until the trial point
// passes the phase acceptance test. After the first rejection a
// second-order correction is attempted once at the full step, when the
// subproblem supports it.
func (s *Solver) lineSearch(problem nlp.Problem, sub Subproblem, strategy *twophase.Strategy,
	it, trial *nlp.Iterate, dir *nlp.Direction, maxBacktracks int) (bool, float64) {

	acceptable := func(d *nlp.Direction, alpha float64) bool {
		assembleTrial(problem, sub, it, trial, d, alpha)
		stepLength := alpha * d.PrimalDualStepLength
		if d.Phase == nlp.Restoration {
			// in restoration the subproblem objective is the remaining
			// linearized violation, so the reduction comes from the
			// linearization itself, not from the direction model
			predicted := predictedViolationReduction(problem.Model(), it, d, stepLength)
			return strategy.IsFeasibilityIterateAcceptable(it.Progress, trial.Progress, predicted)
		}
		predicted := d.PredictedReduction(stepLength)
		predicted += predictedViolationReduction(problem.Model(), it, d, stepLength)
		return strategy.IsIterateAcceptable(it.Progress, trial.Progress, predicted, d.ObjectiveMultiplier)
	}

	alpha := 1.0
	for k := 0; k <= maxBacktracks; k++ {
		if acceptable(dir, alpha) {
			return true, alpha
		}
		if k == 0 && problem.NumConstraints() > 0 {
			if soc, ok := sub.(SecondOrderCorrector); ok {
				corrected, err := soc.SecondOrderCorrection(problem, trial, alpha*dir.PrimalDualStepLength)
				if err == nil && acceptable(corrected, 1) {
					return true, 1
				}
			}
		}
		alpha /= 2
	}
	return false, alpha
}

// assembleTrial forms trial = it + α·direction: the primals and the
// constraint multipliers move by the primal-dual step, the bound
// multipliers by their own safeguarded step, independent of α.
func assembleTrial(problem nlp.Problem, sub Subproblem, it, trial *nlp.Iterate, dir *nlp.Direction, alpha float64) {
	trial.CopyFrom(it)
	n, m := problem.NumVariables(), problem.NumConstraints()
	pd := alpha * dir.PrimalDualStepLength
	for i := 0; i < n; i++ {
		trial.Primals[i] += pd * dir.Primals[i]
	}
	for j := 0; j < m; j++ {
		trial.Multipliers.Constraints[j] += pd * dir.Multipliers.Constraints[j]
	}
	bd := dir.BoundDualStepLength
	for i := 0; i < n; i++ {
		trial.Multipliers.LowerBounds[i] += bd * dir.Multipliers.LowerBounds[i]
		trial.Multipliers.UpperBounds[i] += bd * dir.Multipliers.UpperBounds[i]
	}
	trial.Invalidate()
	computeProgress(problem, sub, trial)
}

func computeProgress(problem nlp.Problem, sub Subproblem, it *nlp.Iterate) {
	it.Progress.Infeasibility = problem.InfeasibilityMeasure(it)
	it.Progress.Optimality = problem.OptimalityMeasure(it)
	sub.SetAuxiliaryMeasure(problem, it)
}

// predictedViolationReduction is the decrease of the L1 constraint
// violation predicted by the linearization:
// ‖violation(𝒄)‖₁ - ‖violation(𝒄 + α𝐉𝐝)‖₁.
func predictedViolationReduction(model nlp.Model, it *nlp.Iterate, dir *nlp.Direction, stepLength float64) float64 {
	m := model.NumConstraints()
	if m == 0 {
		return 0
	}
	n := model.NumVariables()
	cons := it.EvaluateConstraints(model)
	jac := it.EvaluateConstraintJacobian(model)

	linearized := 0.0
	for j := 0; j < m; j++ {
		cj := cons[j]
		for i := 0; i < n; i++ {
			cj += stepLength * jac.At(j, i) * dir.Primals[i]
		}
		linearized += model.ConstraintBounds(j).Violation(cj)
	}
	return nlp.TotalViolation(model, cons) - linearized
}

// finish assembles the result in the original model's variable space.
func (s *Solver) finish(op *nlp.OptimalityProblem, sub Subproblem, it *nlp.Iterate,
	status TerminationStatus, phase nlp.Phase, niter int) *Result {

	n, m := s.model.NumVariables(), s.model.NumConstraints()
	x := make([]float64, n)
	copy(x, it.Primals[:n])
	mult := nlp.NewMultipliers(n, m)
	copy(mult.Constraints, it.Multipliers.Constraints[:m])
	copy(mult.LowerBounds, it.Multipliers.LowerBounds[:n])
	copy(mult.UpperBounds, it.Multipliers.UpperBounds[:n])

	return &Result{
		OK:            status == Converged,
		Objective:     s.model.Objective(x),
		X:             x,
		Multipliers:   mult,
		Infeasibility: it.Progress.Infeasibility,
		KKTError:      twophase.KKTError(op, it, op.ObjectiveMultiplier()),
		Summary: Summary{
			Status:             status,
			Phase:              phase,
			NumIter:            niter,
			HessianEvaluations: sub.HessianEvaluationCount(),
		},
	}
}
