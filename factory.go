// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/curioloop/nlpopt/activeset"
	"github.com/curioloop/nlpopt/barrier"
	"github.com/curioloop/nlpopt/nlp"
	"github.com/curioloop/nlpopt/qpsolve"
	"github.com/curioloop/nlpopt/stats"
)

// Subproblem is the capability set shared by the direction-finding
// strategies: the trust-region LP/QP family and the primal-dual
// interior-point method.
type Subproblem interface {
	// Initialize prepares the first iterate (interiority push, default
	// multipliers) where the strategy requires it.
	Initialize(problem nlp.Problem, it *nlp.Iterate)

	// Solve computes a direction for the current phase problem.
	Solve(problem nlp.Problem, it *nlp.Iterate, ws nlp.Warmstart) (*nlp.Direction, error)
	// SolveFeasibility computes a restoration direction; rejected is
	// the direction whose infeasibility triggered the phase switch.
	SolveFeasibility(problem nlp.Problem, it *nlp.Iterate, rejected *nlp.Direction) (*nlp.Direction, error)

	InitializeFeasibility(problem nlp.Problem, it *nlp.Iterate)
	ExitFeasibility(problem nlp.Problem, it *nlp.Iterate)

	// SetAuxiliaryMeasure records the strategy's own progress term
	// (barrier terms; zero for active-set strategies).
	SetAuxiliaryMeasure(problem nlp.Problem, it *nlp.Iterate)
	// PostprocessIterate adjusts an accepted iterate (multiplier
	// safeguards) where the strategy requires it.
	PostprocessIterate(problem nlp.Problem, it *nlp.Iterate)

	SetTrustRegionRadius(radius float64)
	SetInitialPoint(point []float64)

	HessianEvaluationCount() int
}

// SecondOrderCorrector is implemented by subproblems able to re-solve
// their last system against a corrected right-hand side.
type SecondOrderCorrector interface {
	SecondOrderCorrection(problem nlp.Problem, trial *nlp.Iterate, primalStepLength float64) (*nlp.Direction, error)
}

var subproblemStrategies = []string{"LP", "QP", "primal_dual_interior_point"}

// newSubproblem builds the subproblem strategy selected by the
// "subproblem" option. An unsupported name fails fast with the list of
// available strategies.
func newSubproblem(name string, maxVars, maxCons int, opts *Options, st *stats.Statistics, log *slog.Logger) (Subproblem, error) {
	switch name {
	case "LP":
		backend, err := newDenseBackend(opts, maxVars, maxCons)
		if err != nil {
			return nil, err
		}
		return activeset.NewLPSubproblem(maxVars, maxCons, backend), nil
	case "QP":
		backend, err := newDenseBackend(opts, maxVars, maxCons)
		if err != nil {
			return nil, err
		}
		return activeset.NewQPSubproblem(maxVars, maxCons, backend), nil
	case "primal_dual_interior_point":
		solver, err := newSymmetricSolver(opts, maxVars+maxCons)
		if err != nil {
			return nil, err
		}
		return barrier.NewPrimalDual(maxVars, maxCons, solver, barrier.Options{
			InitialParameter:       opts.GetFloat("barrier_initial_parameter"),
			TauMin:                 opts.GetFloat("barrier_tau_min"),
			KSigma:                 opts.GetFloat("barrier_k_sigma"),
			RegularizationExponent: opts.GetFloat("barrier_regularization_exponent"),
			DampingFactor:          opts.GetFloat("barrier_damping_factor"),
			SmallDirectionFactor:   opts.GetFloat("barrier_small_direction_factor"),
			PushK1:                 opts.GetFloat("barrier_push_variable_to_interior_k1"),
			PushK2:                 opts.GetFloat("barrier_push_variable_to_interior_k2"),
			DefaultMultiplier:      opts.GetFloat("barrier_default_multiplier"),
			KMu:                    opts.GetFloat("barrier_k_mu"),
			ThetaMu:                opts.GetFloat("barrier_theta_mu"),
			KEpsilon:               opts.GetFloat("barrier_k_epsilon"),
			LeastSquareMaxNorm:     opts.GetFloat("least_square_multiplier_max_norm"),
			Tolerance:              opts.GetFloat("tolerance"),
		}, st, log), nil
	}
	return nil, fmt.Errorf("nlpopt: subproblem strategy %q is not supported, available strategies: %s",
		name, strings.Join(subproblemStrategies, ", "))
}

func newDenseBackend(opts *Options, maxVars, maxCons int) (activeset.Solver, error) {
	if name := opts.GetString("lp_qp_solver"); name != "dense" {
		return nil, fmt.Errorf("nlpopt: LP/QP solver %q is not supported, available solvers: dense", name)
	}
	return qpsolve.NewDense(maxVars, maxCons), nil
}

func newSymmetricSolver(opts *Options, maxDim int) (barrier.SymmetricSolver, error) {
	if name := opts.GetString("linear_solver"); name != "spectral" {
		return nil, fmt.Errorf("nlpopt: linear solver %q is not supported, available solvers: spectral", name)
	}
	return barrier.NewSpectralSolver(maxDim), nil
}
