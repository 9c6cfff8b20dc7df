// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activeset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

// computeL1LinearObjective writes the gradient of the L1
// constraint-violation measure: the sum over infeasible constraints of
// ±𝜵𝒄ⱼ, negative for INFEASIBLE_LOWER and positive for INFEASIBLE_UPPER.
func computeL1LinearObjective(jac *mat.Dense, partition *nlp.ConstraintPartition, n int, grad []float64) {
	for i := 0; i < n; i++ {
		grad[i] = 0
	}
	for _, j := range partition.Infeasible {
		sign := 1.0
		if partition.Feasibility[j] == nlp.InfeasibleLower {
			sign = -1
		}
		for i := 0; i < n; i++ {
			grad[i] += sign * jac.At(j, i)
		}
	}
}

// generateFeasibilityBounds relaxes the linearized bounds of the
// infeasible constraints to one side, so that the restoration LP
// reduces their violation instead of enforcing them:
//
//	INFEASIBLE_LOWER: (-∞, 𝒄ˡⱼ-𝒄ⱼ]
//	INFEASIBLE_UPPER: [𝒄ᵘⱼ-𝒄ⱼ, +∞)
//	FEASIBLE:         the ordinary linearized range
func (s *subproblem) generateFeasibilityBounds(problem nlp.Problem, cons []float64, partition *nlp.ConstraintPartition) {
	for j := 0; j < problem.NumConstraints(); j++ {
		b := problem.ConstraintBounds(j)
		switch partition.Feasibility[j] {
		case nlp.InfeasibleLower:
			s.consBounds[j] = nlp.Bound{Lower: math.Inf(-1), Upper: b.Lower - cons[j]}
		case nlp.InfeasibleUpper:
			s.consBounds[j] = nlp.Bound{Lower: b.Upper - cons[j], Upper: math.Inf(1)}
		default:
			s.consBounds[j] = nlp.Bound{Lower: b.Lower - cons[j], Upper: b.Upper - cons[j]}
		}
	}
}

// recoverActiveSet removes the elastic variables from the active set
// reported for an elastic subproblem. A constraint stays active only
// when the violation absorbed by its elastic pair is exactly zero.
func recoverActiveSet(dir *nlp.Direction, elastics *nlp.ElasticVariables, numOriginal int) {
	for i := range dir.ActiveSet.BoundsAtLower {
		if i >= numOriginal {
			delete(dir.ActiveSet.BoundsAtLower, i)
		}
	}
	for i := range dir.ActiveSet.BoundsAtUpper {
		if i >= numOriginal {
			delete(dir.ActiveSet.BoundsAtUpper, i)
		}
	}
	for j := 0; j < dir.NumConstraints; j++ {
		// absorbed violation: positive part minus negative part, or
		// the single side when only one elastic exists
		violation := 0.0
		pos, hasPos := elastics.Positive[j]
		neg, hasNeg := elastics.Negative[j]
		switch {
		case hasPos && hasNeg:
			violation = dir.Primals[pos] - dir.Primals[neg]
		case hasPos:
			violation = dir.Primals[pos]
		case hasNeg:
			violation = dir.Primals[neg]
		}
		if violation != 0 {
			delete(dir.ActiveSet.ConstraintsAtLower, j)
			delete(dir.ActiveSet.ConstraintsAtUpper, j)
		}
	}
}
