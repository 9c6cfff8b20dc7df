// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

// ConstraintFeasibility classifies one constraint at a point.
type ConstraintFeasibility int8

const (
	ConstraintFeasible ConstraintFeasibility = iota
	// InfeasibleLower the constraint value lies below its lower bound.
	InfeasibleLower
	// InfeasibleUpper the constraint value lies above its upper bound.
	InfeasibleUpper
)

// ConstraintPartition is a per-constraint feasibility classification
// plus the list of currently infeasible constraint indices.
// The classification is always consistent with the sign of the
// constraint violation it was computed from.
type ConstraintPartition struct {
	Feasibility []ConstraintFeasibility
	Infeasible  []int
}

// PartitionConstraints classifies the constraint values against their
// bounds.
func PartitionConstraints(values []float64, bounds func(j int) Bound) *ConstraintPartition {
	p := &ConstraintPartition{Feasibility: make([]ConstraintFeasibility, len(values))}
	for j, c := range values {
		b := bounds(j)
		switch {
		case c < b.Lower:
			p.Feasibility[j] = InfeasibleLower
			p.Infeasible = append(p.Infeasible, j)
		case c > b.Upper:
			p.Feasibility[j] = InfeasibleUpper
			p.Infeasible = append(p.Infeasible, j)
		default:
			p.Feasibility[j] = ConstraintFeasible
		}
	}
	return p
}

// Partitions lists the constraint and variable indices of a problem by
// bound type. They are computed once at construction and immutable
// thereafter.
type Partitions struct {
	EqualityConstraints   []int
	InequalityConstraints []int

	LowerBounded []int // variables with a finite lower bound
	UpperBounded []int // variables with a finite upper bound
	SingleLower  []int // finite lower bound only
	SingleUpper  []int // finite upper bound only
}

// NewPartitions scans the bounds of nvar variables and ncons
// constraints.
func NewPartitions(nvar, ncons int, varBound, consBound func(int) Bound) *Partitions {
	p := new(Partitions)
	for j := 0; j < ncons; j++ {
		if consBound(j).Type() == EqualBounds {
			p.EqualityConstraints = append(p.EqualityConstraints, j)
		} else {
			p.InequalityConstraints = append(p.InequalityConstraints, j)
		}
	}
	for i := 0; i < nvar; i++ {
		b := varBound(i)
		l, u := IsFinite(b.Lower), IsFinite(b.Upper)
		if l {
			p.LowerBounded = append(p.LowerBounded, i)
			if !u {
				p.SingleLower = append(p.SingleLower, i)
			}
		}
		if u {
			p.UpperBounded = append(p.UpperBounded, i)
			if !l {
				p.SingleUpper = append(p.SingleUpper, i)
			}
		}
	}
	return p
}
