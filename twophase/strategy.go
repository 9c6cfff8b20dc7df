// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package twophase implements the globalization strategy: an exact
// penalty acceptance test over the progress measures, and the
// OPTIMALITY/RESTORATION phase state machine resolving infeasible
// linearizations.
package twophase

import (
	"math"

	"github.com/curioloop/nlpopt/nlp"
	"github.com/curioloop/nlpopt/stats"
)

// Options carries the acceptance-test parameters.
type Options struct {
	// ArmijoDecreaseFraction is the required fraction of the predicted
	// reduction.
	ArmijoDecreaseFraction float64
	// ArmijoTolerance relaxes the comparison when both reductions are
	// within machine noise of zero, preventing spurious rejection of a
	// genuinely improving but numerically tiny step.
	ArmijoTolerance float64
}

// DefaultOptions returns the standard acceptance parameters.
func DefaultOptions() Options {
	return Options{
		ArmijoDecreaseFraction: 1e-4,
		ArmijoTolerance:        1e-9,
	}
}

// MeritFunction accepts or rejects trial iterates against the exact
// penalty merit
//
//	𝓂(𝐱) = objMult·optimality + auxiliary + infeasibility
//
// using the Armijo sufficient-decrease condition on the predicted
// reduction of the active subproblem model.
type MeritFunction struct {
	opts Options
	st   *stats.Statistics

	smallestKnownInfeasibility float64
}

// NewMeritFunction creates the acceptance test. The statistics sink
// may be nil.
func NewMeritFunction(opts Options, st *stats.Statistics) *MeritFunction {
	if st != nil {
		st.AddColumn("penalty param.", 30)
		st.AddColumn("status", 31)
	}
	return &MeritFunction{
		opts:                       opts,
		st:                         st,
		smallestKnownInfeasibility: math.Inf(1),
	}
}

// SufficientDecrease is the Armijo test
// actual ≥ fraction·predicted with predicted > 0. When both reductions
// sit within the Armijo tolerance of zero the comparison is relaxed by
// that tolerance.
func (m *MeritFunction) SufficientDecrease(predicted, actual float64) bool {
	if !(predicted > 0) {
		return false
	}
	margin := 0.0
	if math.Abs(predicted) <= m.opts.ArmijoTolerance && math.Abs(actual) <= m.opts.ArmijoTolerance {
		margin = m.opts.ArmijoTolerance
	}
	return actual >= m.opts.ArmijoDecreaseFraction*predicted-margin
}

// IsIterateAcceptable compares the exact merit of the current and
// trial progress against the constrained predicted reduction.
func (m *MeritFunction) IsIterateAcceptable(current, trial nlp.Progress, predictedReduction, objectiveMultiplier float64) bool {
	merit := func(p nlp.Progress) float64 {
		return objectiveMultiplier*p.Optimality + p.Auxiliary + p.Infeasibility
	}
	actual := merit(current) - merit(trial)
	accept := m.SufficientDecrease(predictedReduction, actual)
	if m.st != nil {
		m.st.Set("penalty param.", objectiveMultiplier)
		if accept {
			m.st.Set("status", "accepted (Armijo)")
		} else {
			m.st.Set("status", "rejected (Armijo)")
		}
	}
	if accept {
		m.smallestKnownInfeasibility = math.Min(m.smallestKnownInfeasibility, trial.Infeasibility)
	}
	return accept
}

// IsFeasibilityIterateAcceptable runs the same test restricted to the
// feasibility measure, independent of the objective.
func (m *MeritFunction) IsFeasibilityIterateAcceptable(current, trial nlp.Progress, predictedReduction float64) bool {
	accept := m.SufficientDecrease(predictedReduction, current.Infeasibility-trial.Infeasibility)
	if accept {
		m.smallestKnownInfeasibility = math.Min(m.smallestKnownInfeasibility, trial.Infeasibility)
	}
	return accept
}

// IsInfeasibilityAcceptable reports whether a violation improves on
// the best one seen so far; used to keep iterating in restoration
// rather than declaring local infeasibility.
func (m *MeritFunction) IsInfeasibilityAcceptable(infeasibility float64) bool {
	return infeasibility < m.smallestKnownInfeasibility
}

// Reset clears the accumulated progress history.
func (m *MeritFunction) Reset() {
	m.smallestKnownInfeasibility = math.Inf(1)
}
