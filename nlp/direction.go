// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// Phase identifies the sub-mode of the two-phase solver.
type Phase int8

const (
	// Optimality is the regular phase minimizing the objective.
	Optimality Phase = iota
	// Restoration minimizes a feasibility measure until a feasible
	// point is recovered.
	Restoration
)

func (p Phase) String() string {
	switch p {
	case Optimality:
		return "OPTIMALITY"
	case Restoration:
		return "RESTORATION"
	}
	return "UNKNOWN"
}

// SubproblemStatus is the definite status reported by a subproblem solve.
type SubproblemStatus int8

const (
	// StatusOptimal the subproblem was solved to optimality.
	StatusOptimal SubproblemStatus = iota
	// StatusUnbounded the subproblem direction is unbounded.
	StatusUnbounded
	// StatusInfeasible no point satisfies the linearized constraints.
	StatusInfeasible
)

func (s SubproblemStatus) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusUnbounded:
		return "UNBOUNDED"
	case StatusInfeasible:
		return "INFEASIBLE"
	}
	return "UNKNOWN"
}

// Warmstart tells a subproblem which parts of the model data changed
// since the previous solve, so unchanged evaluations can be skipped.
type Warmstart struct {
	ObjectiveChanged        bool
	ConstraintsChanged      bool
	VariableBoundsChanged   bool
	ConstraintBoundsChanged bool
}

// FullWarmstart marks everything as changed.
func FullWarmstart() Warmstart {
	return Warmstart{true, true, true, true}
}

// ActiveSet lists the variable bounds and constraint sides active at a
// subproblem solution.
type ActiveSet struct {
	BoundsAtLower      map[int]bool
	BoundsAtUpper      map[int]bool
	ConstraintsAtLower map[int]bool
	ConstraintsAtUpper map[int]bool
}

// NewActiveSet returns an empty active set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{
		BoundsAtLower:      make(map[int]bool),
		BoundsAtUpper:      make(map[int]bool),
		ConstraintsAtLower: make(map[int]bool),
		ConstraintsAtUpper: make(map[int]bool),
	}
}

// Direction is the displacement computed by a subproblem for one outer
// iteration. It is owned by the producing subproblem until consumed by
// the globalization strategy.
type Direction struct {
	NumVariables   int
	NumConstraints int

	// Primals is the primal displacement 𝐝.
	Primals []float64
	// Multipliers are dual displacements: the new estimates minus the
	// current iterate's multipliers.
	Multipliers Multipliers

	ObjectiveMultiplier float64
	Phase               Phase
	Status              SubproblemStatus

	// Objective is the subproblem model objective at the solution.
	Objective float64

	// Step-length safeguards computed by the interior-point
	// subproblem; both are 1 for active-set subproblems.
	PrimalDualStepLength float64
	BoundDualStepLength  float64

	// SmallStep flags a direction below machine-precision relative size.
	SmallStep bool

	// PredictedReduction models the merit decrease for a step length
	// α ∈ [0,1] along the direction.
	PredictedReduction func(stepLength float64) float64

	// ConstraintPartition records, for restoration directions, the
	// feasibility classification the direction was built from.
	ConstraintPartition *ConstraintPartition

	ActiveSet *ActiveSet
}

// NewDirection allocates a zero direction for nvar variables and ncons
// constraints.
func NewDirection(nvar, ncons int) *Direction {
	return &Direction{
		NumVariables:         nvar,
		NumConstraints:       ncons,
		Primals:              make([]float64, nvar),
		Multipliers:          NewMultipliers(nvar, ncons),
		PrimalDualStepLength: 1,
		BoundDualStepLength:  1,
		ActiveSet:            NewActiveSet(),
	}
}

// Reset zeroes the direction in place for reuse with the given active
// dimensions. The allocation dimensions must not be exceeded.
func (d *Direction) Reset(nvar, ncons int) {
	if nvar > len(d.Primals) || ncons > len(d.Multipliers.Constraints) {
		panic("nlp: direction dimensions exceed allocation")
	}
	d.NumVariables, d.NumConstraints = nvar, ncons
	zero(d.Primals)
	zero(d.Multipliers.Constraints)
	zero(d.Multipliers.LowerBounds)
	zero(d.Multipliers.UpperBounds)
	d.ObjectiveMultiplier = 0
	d.Status = StatusOptimal
	d.Objective = 0
	d.PrimalDualStepLength = 1
	d.BoundDualStepLength = 1
	d.SmallStep = false
	d.PredictedReduction = nil
	d.ConstraintPartition = nil
	d.ActiveSet = NewActiveSet()
}

// CopyFrom overwrites the direction with a deep copy of src. Both
// directions must have been allocated with the same dimensions.
func (d *Direction) CopyFrom(src *Direction) {
	if len(d.Primals) != len(src.Primals) || len(d.Multipliers.Constraints) != len(src.Multipliers.Constraints) {
		panic("nlp: direction dimensions do not match")
	}
	d.NumVariables, d.NumConstraints = src.NumVariables, src.NumConstraints
	copy(d.Primals, src.Primals)
	copy(d.Multipliers.Constraints, src.Multipliers.Constraints)
	copy(d.Multipliers.LowerBounds, src.Multipliers.LowerBounds)
	copy(d.Multipliers.UpperBounds, src.Multipliers.UpperBounds)
	d.ObjectiveMultiplier = src.ObjectiveMultiplier
	d.Phase = src.Phase
	d.Status = src.Status
	d.Objective = src.Objective
	d.PrimalDualStepLength = src.PrimalDualStepLength
	d.BoundDualStepLength = src.BoundDualStepLength
	d.SmallStep = src.SmallStep
	d.PredictedReduction = src.PredictedReduction
	d.ConstraintPartition = src.ConstraintPartition
	d.ActiveSet = src.ActiveSet
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
