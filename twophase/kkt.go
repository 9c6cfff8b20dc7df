// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package twophase

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

// kktScalingThreshold is the s_max cap of the multiplier scaling.
const kktScalingThreshold = 100.0

// KKTError is the scaled stationarity residual
//
//	‖objMult·𝜵𝒇 - 𝐉ᵀ𝛌 - 𝐳‖∞ / s𝑑
//
// where s𝑑 grows with the average multiplier magnitude, so runaway
// multipliers do not mask an unconverged point.
func KKTError(problem nlp.Problem, it *nlp.Iterate, objectiveMultiplier float64) float64 {
	n, m := problem.NumVariables(), problem.NumConstraints()

	grad := make([]float64, n)
	problem.EvaluateObjectiveGradient(it, grad)
	for i := 0; i < n; i++ {
		grad[i] *= objectiveMultiplier
	}
	if m > 0 {
		jac := mat.NewDense(m, n, nil)
		problem.EvaluateConstraintJacobian(it, jac)
		for j := 0; j < m; j++ {
			if lambda := it.Multipliers.Constraints[j]; lambda != 0 {
				for i := 0; i < n; i++ {
					grad[i] -= lambda * jac.At(j, i)
				}
			}
		}
	}

	residual, multiplierNorm := 0.0, 0.0
	for i := 0; i < n; i++ {
		r := grad[i] - it.Multipliers.LowerBounds[i] - it.Multipliers.UpperBounds[i]
		residual = math.Max(residual, math.Abs(r))
		multiplierNorm += math.Abs(it.Multipliers.LowerBounds[i]) + math.Abs(it.Multipliers.UpperBounds[i])
	}
	for j := 0; j < m; j++ {
		multiplierNorm += math.Abs(it.Multipliers.Constraints[j])
	}

	total := float64(m + 2*n)
	scaling := kktScalingThreshold
	if total > 0 {
		scaling = math.Max(kktScalingThreshold, multiplierNorm/total)
	}
	return residual / (scaling / kktScalingThreshold)
}

// ComplementarityError is the scaled complementarity residual of the
// original problem (barrier parameter zero): for every multiplier, its
// product with the distance to the bound it enforces. A positive
// constraint multiplier enforces the lower side, a negative one the
// upper side.
func ComplementarityError(problem nlp.Problem, it *nlp.Iterate) float64 {
	n, m := problem.NumVariables(), problem.NumConstraints()

	residual, multiplierNorm := 0.0, 0.0
	if m > 0 {
		cons := it.EvaluateConstraints(problem.Model())
		for j := 0; j < m; j++ {
			lambda := it.Multipliers.Constraints[j]
			multiplierNorm += math.Abs(lambda)
			b := problem.ConstraintBounds(j)
			switch {
			case lambda > 0 && nlp.IsFinite(b.Lower):
				residual = math.Max(residual, math.Abs(lambda*(cons[j]-b.Lower)))
			case lambda < 0 && nlp.IsFinite(b.Upper):
				residual = math.Max(residual, math.Abs(lambda*(cons[j]-b.Upper)))
			}
		}
	}
	for i := 0; i < n; i++ {
		zl, zu := it.Multipliers.LowerBounds[i], it.Multipliers.UpperBounds[i]
		multiplierNorm += math.Abs(zl) + math.Abs(zu)
		b := problem.VariableBounds(i)
		if zl != 0 && nlp.IsFinite(b.Lower) {
			residual = math.Max(residual, math.Abs(zl*(it.Primals[i]-b.Lower)))
		}
		if zu != 0 && nlp.IsFinite(b.Upper) {
			residual = math.Max(residual, math.Abs(zu*(it.Primals[i]-b.Upper)))
		}
	}

	total := float64(m + 2*n)
	scaling := kktScalingThreshold
	if total > 0 {
		scaling = math.Max(kktScalingThreshold, multiplierNorm/total)
	}
	return residual / (scaling / kktScalingThreshold)
}
