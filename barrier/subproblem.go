// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
	"github.com/curioloop/nlpopt/stats"
)

// Options carries the interior-point parameters.
type Options struct {
	InitialParameter       float64 // μ₀
	TauMin                 float64 // floor of the fraction-to-boundary factor
	KSigma                 float64 // bound-multiplier safeguard band width
	RegularizationExponent float64 // inertia-correction perturbation is μ^exponent
	DampingFactor          float64 // gradient damping for single-bounded variables
	SmallDirectionFactor   float64 // small-step threshold in machine epsilons
	PushK1, PushK2         float64 // interiority perturbation coefficients
	DefaultMultiplier      float64 // initial bound-multiplier magnitude
	KMu, ThetaMu, KEpsilon float64 // barrier-update schedule
	LeastSquareMaxNorm     float64 // multiplier estimates beyond this are discarded
	Tolerance              float64 // solver tolerance, floors μ
}

// DefaultOptions returns the standard interior-point parameters.
func DefaultOptions() Options {
	return Options{
		InitialParameter:       0.1,
		TauMin:                 0.99,
		KSigma:                 1e10,
		RegularizationExponent: 0.25,
		DampingFactor:          1e-4,
		SmallDirectionFactor:   100,
		PushK1:                 1e-2,
		PushK2:                 1e-2,
		DefaultMultiplier:      1,
		KMu:                    0.2,
		ThetaMu:                1.5,
		KEpsilon:               10,
		LeastSquareMaxNorm:     1e3,
		Tolerance:              1e-8,
	}
}

// PrimalDual is the primal-dual interior-point subproblem. Bound
// constraints are handled through a logarithmic barrier with parameter
// μ; each solve performs one Newton step on the perturbed KKT system,
// safeguarded by the fraction-to-boundary rule.
//
// The problem handed to Solve must carry no explicit inequality
// constraints: they must have been converted to bounded equalities
// upstream. Violating this is a contract error.
type PrimalDual struct {
	opts    Options
	updater *Updater

	augmented *AugmentedSystem
	hessian   *nlp.SymMatrix

	gradient    []float64
	constraints []float64
	jacobian    *mat.Dense
	deltaZLower []float64
	deltaZUpper []float64

	direction *nlp.Direction
	nhess     int

	solvingFeasibility bool
	muSnapshot         float64

	st  *stats.Statistics
	log *slog.Logger
}

// NewPrimalDual allocates the subproblem for at most maxVars variables
// and maxCons constraints. A nil logger disables warnings.
func NewPrimalDual(maxVars, maxCons int, solver SymmetricSolver, opts Options, st *stats.Statistics, log *slog.Logger) *PrimalDual {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var jac *mat.Dense
	if maxCons > 0 {
		jac = mat.NewDense(maxCons, maxVars, nil)
	}
	return &PrimalDual{
		opts:        opts,
		updater:     NewUpdater(opts.InitialParameter, opts.KMu, opts.ThetaMu, opts.KEpsilon, opts.Tolerance),
		augmented:   NewAugmentedSystem(maxVars, maxCons, solver),
		hessian:     nlp.NewSymMatrix(maxVars),
		gradient:    make([]float64, maxVars),
		constraints: make([]float64, maxCons),
		jacobian:    jac,
		deltaZLower: make([]float64, maxVars),
		deltaZUpper: make([]float64, maxVars),
		direction:   nlp.NewDirection(maxVars, maxCons),
		st:          st,
		log:         log,
	}
}

// Mu returns the current barrier parameter.
func (s *PrimalDual) Mu() float64 { return s.updater.Mu() }

// Initialize pushes the initial point strictly inside every finite
// bound, seeds the bound multipliers with ±the default magnitude and
// estimates the constraint multipliers by least squares.
func (s *PrimalDual) Initialize(problem nlp.Problem, it *nlp.Iterate) {
	requireEqualityConstrained(problem)
	if s.st != nil {
		s.st.AddColumn("regularization", 22)
		s.st.AddColumn("barrier param.", 21)
	}

	for i := 0; i < problem.NumVariables(); i++ {
		it.Primals[i] = s.pushToInterior(it.Primals[i], problem.VariableBounds(i))
	}
	it.Invalidate()

	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		it.Multipliers.LowerBounds[i] = s.opts.DefaultMultiplier
	}
	for _, i := range parts.UpperBounded {
		it.Multipliers.UpperBounds[i] = -s.opts.DefaultMultiplier
	}
	if nlp.IsConstrained(problem) {
		LeastSquareMultipliers(problem, it, s.opts.LeastSquareMaxNorm)
	}
}

// pushToInterior perturbs a value inside its finite bounds without
// ever crossing the midpoint of the range.
func (s *PrimalDual) pushToInterior(value float64, b nlp.Bound) float64 {
	rng := b.Upper - b.Lower
	if nlp.IsFinite(b.Lower) {
		perturb := s.opts.PushK1 * math.Max(1, math.Abs(b.Lower))
		if nlp.IsFinite(rng) {
			perturb = math.Min(perturb, s.opts.PushK2*rng)
		}
		value = math.Max(value, b.Lower+perturb)
	}
	if nlp.IsFinite(b.Upper) {
		perturb := s.opts.PushK1 * math.Max(1, math.Abs(b.Upper))
		if nlp.IsFinite(rng) {
			perturb = math.Min(perturb, s.opts.PushK2*rng)
		}
		value = math.Min(value, b.Upper-perturb)
	}
	return value
}

// Solve performs one Newton step on the barrier KKT system:
// μ is reduced first when the current point approximately solves the
// current barrier subproblem, then the augmented system is assembled,
// regularized to the inertia (n, m, 0) and solved for (Δ𝐱, -Δ𝛌).
func (s *PrimalDual) Solve(problem nlp.Problem, it *nlp.Iterate, _ nlp.Warmstart) (*nlp.Direction, error) {
	requireEqualityConstrained(problem)
	n, m := problem.NumVariables(), problem.NumConstraints()

	s.updater.Update(s.barrierError(problem, it))
	mu := s.updater.Mu()

	s.evaluateFunctions(problem, it, mu)

	jac := s.jacobianView(n, m)
	s.augmented.Assemble(s.hessian, jac, n, m)
	if err := s.augmented.FactorizeRegularize(mu, s.opts.RegularizationExponent, s.st); err != nil {
		return nil, err
	}
	s.generateRHS(it, n, m)
	if err := s.augmented.Solve(); err != nil {
		return nil, err
	}

	dir := s.direction
	dir.Reset(n, m)
	dir.Phase = nlp.Optimality
	if s.solvingFeasibility {
		dir.Phase = nlp.Restoration
	}
	dir.ObjectiveMultiplier = problem.ObjectiveMultiplier()
	s.generatePrimalDualDirection(problem, it, dir)

	if s.st != nil {
		s.st.Set("barrier param.", mu)
	}
	dir.SmallStep = s.isSmallStep(it, dir, n)
	return dir, nil
}

// evaluateFunctions builds the barrier Lagrangian Hessian and gradient:
// the Hessian receives the primal-dual diagonal terms 𝐳/(𝐱-bound), the
// gradient the barrier terms -μ/(𝐱-bound) plus a damping term for
// variables bounded on a single side.
func (s *PrimalDual) evaluateFunctions(problem nlp.Problem, it *nlp.Iterate, mu float64) {
	n := problem.NumVariables()
	problem.EvaluateLagrangianHessian(it.Primals, it.Multipliers.Constraints, s.hessian)
	s.nhess++

	problem.EvaluateObjectiveGradient(it, s.gradient)
	scale := problem.ObjectiveMultiplier()
	if scale == 0 {
		scale = 1 // restoration: the gradient is already the violation model
	}
	for i := 0; i < n; i++ {
		s.gradient[i] *= scale
	}

	for i := 0; i < n; i++ {
		b := problem.VariableBounds(i)
		curvature, barrierTerm := 0.0, 0.0
		if nlp.IsFinite(b.Lower) {
			invDist := 1 / (it.Primals[i] - b.Lower)
			curvature += it.Multipliers.LowerBounds[i] * invDist
			barrierTerm += -mu * invDist
			if !nlp.IsFinite(b.Upper) {
				barrierTerm += s.opts.DampingFactor * mu
			}
		}
		if nlp.IsFinite(b.Upper) {
			invDist := 1 / (it.Primals[i] - b.Upper)
			curvature += it.Multipliers.UpperBounds[i] * invDist
			barrierTerm += -mu * invDist
			if !nlp.IsFinite(b.Lower) {
				barrierTerm -= s.opts.DampingFactor * mu
			}
		}
		s.hessian.Add(i, i, curvature)
		s.gradient[i] += barrierTerm
	}

	problem.EvaluateConstraints(it, s.constraints)
	if m := problem.NumConstraints(); m > 0 {
		problem.EvaluateConstraintJacobian(it, s.jacobianView(n, m))
	}
}

// generateRHS assembles [-𝜵𝒇-𝜵𝒄ᵀ(-𝛌) ; -𝒄], the negative KKT residual.
func (s *PrimalDual) generateRHS(it *nlp.Iterate, n, m int) {
	rhs := s.augmented.RHS()
	for i := 0; i < n; i++ {
		rhs[i] = -s.gradient[i]
	}
	for j := 0; j < m; j++ {
		if lambda := it.Multipliers.Constraints[j]; lambda != 0 {
			for i := 0; i < n; i++ {
				rhs[i] += lambda * s.jacobian.At(j, i)
			}
		}
		rhs[n+j] = -s.constraints[j]
	}
}

// generatePrimalDualDirection turns the augmented-system solution
// (Δ𝐱, -Δ𝛌) into a full primal-dual displacement with
// fraction-to-boundary step lengths.
func (s *PrimalDual) generatePrimalDualDirection(problem nlp.Problem, it *nlp.Iterate, dir *nlp.Direction) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	sol := s.augmented.Solution()
	mu := s.updater.Mu()

	// retrieve +Δλ
	for j := n; j < n+m; j++ {
		sol[j] = -sol[j]
	}

	tau := math.Max(s.opts.TauMin, 1-mu)
	dir.PrimalDualStepLength = s.primalFractionToBoundary(problem, it, sol, tau)
	copy(dir.Primals[:n], sol[:n])
	copy(dir.Multipliers.Constraints[:m], sol[n:n+m])

	s.computeBoundDualDirection(problem, it, sol, mu)
	dir.BoundDualStepLength = s.dualFractionToBoundary(problem, it, tau)
	copy(dir.Multipliers.LowerBounds[:n], s.deltaZLower[:n])
	copy(dir.Multipliers.UpperBounds[:n], s.deltaZUpper[:n])

	linear, quadratic := 0.0, s.hessian.QuadraticForm(dir.Primals[:n])
	for i := 0; i < n; i++ {
		linear += s.gradient[i] * dir.Primals[i]
	}
	dir.Objective = linear + 0.5*quadratic
	dir.PredictedReduction = func(stepLength float64) float64 {
		return -stepLength*linear - 0.5*stepLength*stepLength*quadratic
	}
}

func (s *PrimalDual) primalFractionToBoundary(problem nlp.Problem, it *nlp.Iterate, sol []float64, tau float64) float64 {
	length := 1.0
	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		if sol[i] < 0 {
			if trial := -tau * (it.Primals[i] - problem.VariableBounds(i).Lower) / sol[i]; trial > 0 {
				length = math.Min(length, trial)
			}
		}
	}
	for _, i := range parts.UpperBounded {
		if sol[i] > 0 {
			if trial := -tau * (it.Primals[i] - problem.VariableBounds(i).Upper) / sol[i]; trial > 0 {
				length = math.Min(length, trial)
			}
		}
	}
	if !(length > 0 && length <= 1) {
		panic("barrier: primal fraction-to-boundary factor outside (0, 1]")
	}
	return length
}

func (s *PrimalDual) dualFractionToBoundary(problem nlp.Problem, it *nlp.Iterate, tau float64) float64 {
	length := 1.0
	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		if s.deltaZLower[i] < 0 {
			if trial := -tau * it.Multipliers.LowerBounds[i] / s.deltaZLower[i]; trial > 0 {
				length = math.Min(length, trial)
			}
		}
	}
	for _, i := range parts.UpperBounded {
		if s.deltaZUpper[i] > 0 {
			if trial := -tau * it.Multipliers.UpperBounds[i] / s.deltaZUpper[i]; trial > 0 {
				length = math.Min(length, trial)
			}
		}
	}
	if !(length > 0 && length <= 1) {
		panic("barrier: dual fraction-to-boundary factor outside (0, 1]")
	}
	return length
}

// computeBoundDualDirection derives the bound-multiplier displacements
// from the perturbed complementarity relation:
// Δ𝐳 = (μ - Δ𝐱·𝐳)/(𝐱-bound) - 𝐳.
func (s *PrimalDual) computeBoundDualDirection(problem nlp.Problem, it *nlp.Iterate, sol []float64, mu float64) {
	n := problem.NumVariables()
	for i := 0; i < n; i++ {
		s.deltaZLower[i], s.deltaZUpper[i] = 0, 0
	}
	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		dist := it.Primals[i] - problem.VariableBounds(i).Lower
		s.deltaZLower[i] = (mu-sol[i]*it.Multipliers.LowerBounds[i])/dist - it.Multipliers.LowerBounds[i]
		if !nlp.IsFinite(s.deltaZLower[i]) {
			panic("barrier: lower bound dual displacement is not finite")
		}
	}
	for _, i := range parts.UpperBounded {
		dist := it.Primals[i] - problem.VariableBounds(i).Upper
		s.deltaZUpper[i] = (mu-sol[i]*it.Multipliers.UpperBounds[i])/dist - it.Multipliers.UpperBounds[i]
		if !nlp.IsFinite(s.deltaZUpper[i]) {
			panic("barrier: upper bound dual displacement is not finite")
		}
	}
}

// SecondOrderCorrection re-solves the already-factorized augmented
// system against a corrected right-hand side: the constraint block is
// rescaled by the just-taken primal step length and shifted by the
// trial iterate's constraint values. No refactorization happens.
func (s *PrimalDual) SecondOrderCorrection(problem nlp.Problem, trial *nlp.Iterate, primalStepLength float64) (*nlp.Direction, error) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	rhs := s.augmented.RHS()
	for j := 0; j < m; j++ {
		rhs[n+j] *= primalStepLength
	}
	problem.EvaluateConstraints(trial, s.constraints)
	for j := 0; j < m; j++ {
		rhs[n+j] -= s.constraints[j]
	}
	if err := s.augmented.Solve(); err != nil {
		return nil, err
	}

	dir := s.direction
	phase := dir.Phase
	dir.Reset(n, m)
	dir.Phase = phase
	dir.ObjectiveMultiplier = problem.ObjectiveMultiplier()
	s.generatePrimalDualDirection(problem, trial, dir)
	return dir, nil
}

// InitializeFeasibility snapshots μ, raises it to the infinity norm of
// the constraint violation and assigns the elastic variables their
// closed-form strictly interior values.
func (s *PrimalDual) InitializeFeasibility(problem nlp.Problem, it *nlp.Iterate) {
	fp, ok := problem.(*nlp.FeasibilityProblem)
	if !ok {
		panic("barrier: feasibility restoration requires the elastic reformulation")
	}
	s.solvingFeasibility = true
	s.muSnapshot = s.updater.Mu()

	cons := it.EvaluateConstraints(fp.Model())
	violation := 0.0
	for _, c := range cons {
		violation = math.Max(violation, math.Abs(c))
	}
	s.updater.SetMu(math.Max(s.updater.Mu(), violation))
	mu := s.updater.Mu()

	// closed form for c(x) - p + n = 0 under the barrier:
	// value = (μ - s·c + √(c² + μ²))/2, multiplier = μ/value
	fp.SetElasticValues(it, func(it *nlp.Iterate, j, elasticIndex int, sign float64) {
		c := cons[j]
		value := (mu - sign*c + math.Sqrt(c*c+mu*mu)) / 2
		it.Primals[elasticIndex] = value
		it.Multipliers.LowerBounds[elasticIndex] = mu / value
		if !(value > 0) {
			panic("barrier: elastic variable is not strictly positive")
		}
		if !(it.Multipliers.LowerBounds[elasticIndex] > 0) {
			panic("barrier: elastic dual is not strictly positive")
		}
	})
	it.Invalidate()
}

// ExitFeasibility restores the μ snapshot taken at restoration entry
// and re-estimates the constraint multipliers by least squares.
func (s *PrimalDual) ExitFeasibility(problem nlp.Problem, it *nlp.Iterate) {
	if !s.solvingFeasibility {
		panic("barrier: exiting a feasibility problem that was never entered")
	}
	s.updater.SetMu(s.muSnapshot)
	s.solvingFeasibility = false
	LeastSquareMultipliers(problem, it, s.opts.LeastSquareMaxNorm)
}

// SetAuxiliaryMeasure records the barrier terms of the iterate:
// -μ·∑log(distance) plus the damping contribution of single-bounded
// variables.
func (s *PrimalDual) SetAuxiliaryMeasure(problem nlp.Problem, it *nlp.Iterate) {
	parts := problem.Partitions()
	terms := 0.0
	for _, i := range parts.LowerBounded {
		terms -= math.Log(it.Primals[i] - problem.VariableBounds(i).Lower)
	}
	for _, i := range parts.UpperBounded {
		terms -= math.Log(problem.VariableBounds(i).Upper - it.Primals[i])
	}
	for _, i := range parts.SingleLower {
		terms += s.opts.DampingFactor * (it.Primals[i] - problem.VariableBounds(i).Lower)
	}
	for _, i := range parts.SingleUpper {
		terms += s.opts.DampingFactor * (problem.VariableBounds(i).Upper - it.Primals[i])
	}
	terms *= s.updater.Mu()
	if math.IsNaN(terms) {
		panic("barrier: auxiliary measure is not a number")
	}
	it.Progress.Auxiliary = terms
}

// PostprocessIterate rescales every bound multiplier into the band
// [coefficient/κ_σ, coefficient·κ_σ] with coefficient = μ/distance.
// An inverted band leaves the multiplier unchanged with a warning.
func (s *PrimalDual) PostprocessIterate(problem nlp.Problem, it *nlp.Iterate) {
	mu := s.updater.Mu()
	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		coefficient := mu / (it.Primals[i] - problem.VariableBounds(i).Lower)
		lb, ub := coefficient/s.opts.KSigma, coefficient*s.opts.KSigma
		if lb <= ub {
			it.Multipliers.LowerBounds[i] = math.Max(math.Min(it.Multipliers.LowerBounds[i], ub), lb)
		} else {
			s.log.Warn("bound multiplier safeguard band is inverted", "variable", i, "side", "lower")
		}
	}
	for _, i := range parts.UpperBounded {
		coefficient := mu / (it.Primals[i] - problem.VariableBounds(i).Upper)
		lb, ub := coefficient*s.opts.KSigma, coefficient/s.opts.KSigma
		if lb <= ub {
			it.Multipliers.UpperBounds[i] = math.Max(math.Min(it.Multipliers.UpperBounds[i], ub), lb)
		} else {
			s.log.Warn("bound multiplier safeguard band is inverted", "variable", i, "side", "upper")
		}
	}
}

// SetTrustRegionRadius is a no-op: the barrier works with the original
// bounds, interiority replaces the trust region.
func (s *PrimalDual) SetTrustRegionRadius(float64) {}

// SetInitialPoint is a no-op: the Newton step always starts from the
// current iterate.
func (s *PrimalDual) SetInitialPoint([]float64) {}

// HessianEvaluationCount reports the number of Lagrangian Hessian
// evaluations so far.
func (s *PrimalDual) HessianEvaluationCount() int { return s.nhess }

// barrierError is the scaled KKT error of the current barrier
// subproblem: the maximum of the stationarity residual, the perturbed
// complementarity residual and the constraint violation.
func (s *PrimalDual) barrierError(problem nlp.Problem, it *nlp.Iterate) float64 {
	n, m := problem.NumVariables(), problem.NumConstraints()
	mu := s.updater.Mu()

	grad := make([]float64, n)
	problem.EvaluateObjectiveGradient(it, grad)
	scale := problem.ObjectiveMultiplier()
	if scale == 0 {
		scale = 1
	}
	if m > 0 {
		jac := s.jacobianView(n, m)
		problem.EvaluateConstraintJacobian(it, jac)
		for i := 0; i < n; i++ {
			grad[i] *= scale
			for j := 0; j < m; j++ {
				grad[i] -= it.Multipliers.Constraints[j] * jac.At(j, i)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			grad[i] *= scale
		}
	}

	err := 0.0
	for i := 0; i < n; i++ {
		err = math.Max(err, math.Abs(grad[i]-it.Multipliers.LowerBounds[i]-it.Multipliers.UpperBounds[i]))
	}
	parts := problem.Partitions()
	for _, i := range parts.LowerBounded {
		dist := it.Primals[i] - problem.VariableBounds(i).Lower
		err = math.Max(err, math.Abs(dist*it.Multipliers.LowerBounds[i]-mu))
	}
	for _, i := range parts.UpperBounded {
		dist := it.Primals[i] - problem.VariableBounds(i).Upper
		err = math.Max(err, math.Abs(dist*it.Multipliers.UpperBounds[i]-mu))
	}
	cons := make([]float64, m)
	problem.EvaluateConstraints(it, cons)
	for j := 0; j < m; j++ {
		err = math.Max(err, math.Abs(cons[j]))
	}
	return err
}

// isSmallStep reports whether the direction is below machine-precision
// relative size.
func (s *PrimalDual) isSmallStep(it *nlp.Iterate, dir *nlp.Direction, n int) bool {
	measure := 0.0
	for i := 0; i < n; i++ {
		measure = math.Max(measure, math.Abs(dir.Primals[i])/(1+math.Abs(it.Primals[i])))
	}
	return measure < s.opts.SmallDirectionFactor*machEps
}

// SolveFeasibility solves the barrier subproblem on the elastic
// reformulation. The subproblem itself is identical to the optimality
// solve; the phase semantics come from the problem's zero objective
// multiplier and the elastic state installed by InitializeFeasibility.
func (s *PrimalDual) SolveFeasibility(problem nlp.Problem, it *nlp.Iterate, _ *nlp.Direction) (*nlp.Direction, error) {
	if !s.solvingFeasibility {
		panic("barrier: feasibility solve before InitializeFeasibility")
	}
	return s.Solve(problem, it, nlp.FullWarmstart())
}

func (s *PrimalDual) jacobianView(n, m int) *mat.Dense {
	if m == 0 {
		return nil
	}
	return s.jacobian.Slice(0, m, 0, n).(*mat.Dense)
}

func requireEqualityConstrained(problem nlp.Problem) {
	if len(problem.Partitions().InequalityConstraints) > 0 {
		panic(fmt.Sprintf("barrier: problem %q has inequality constraints, convert them to bounded equalities first",
			problem.Model().Name()))
	}
}

const machEps = float64(7)/3 - float64(4)/3 - 1.
