// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"github.com/curioloop/nlpopt/nlp"
)

// TerminationStatus is the final state of a solver run.
type TerminationStatus int8

const (
	// Converged the KKT conditions hold within the tolerance.
	Converged TerminationStatus = iota
	// SmallStep the direction fell below machine-precision relative size.
	SmallStep
	// LocallyInfeasible restoration stalled at an infeasible point.
	LocallyInfeasible
	// Unbounded a subproblem direction was unbounded.
	Unbounded
	// IterationLimit the iteration budget was exhausted.
	IterationLimit
)

func (s TerminationStatus) String() string {
	switch s {
	case Converged:
		return "CONVERGED"
	case SmallStep:
		return "SMALL_STEP"
	case LocallyInfeasible:
		return "LOCALLY_INFEASIBLE"
	case Unbounded:
		return "UNBOUNDED"
	case IterationLimit:
		return "ITERATION_LIMIT"
	}
	return "UNKNOWN"
}

// Result contains the final result of a solver run.
type Result struct {
	OK            bool // Whether the run converged.
	Objective     float64
	X             []float64
	Multipliers   nlp.Multipliers
	Infeasibility float64
	KKTError      float64
	Summary
}

// Summary contains a summary of the solver run.
type Summary struct {
	Status             TerminationStatus
	Phase              nlp.Phase // phase at termination
	NumIter            int
	HessianEvaluations int
}
