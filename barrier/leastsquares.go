// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/nlp"
)

// LeastSquareMultipliers estimates the constraint multipliers from the
// stationarity condition 𝐉ᵀ𝛌 = 𝜵𝒇 - 𝐳 in the least-squares sense and
// writes them into the iterate. Estimates beyond maxNorm in the ∞-norm
// are discarded and replaced by zero.
func LeastSquareMultipliers(problem nlp.Problem, it *nlp.Iterate, maxNorm float64) {
	n, m := problem.NumVariables(), problem.NumConstraints()
	if m == 0 {
		return
	}

	target := make([]float64, n)
	problem.EvaluateObjectiveGradient(it, target)
	scale := problem.ObjectiveMultiplier()
	if scale == 0 {
		scale = 1
	}
	for i := 0; i < n; i++ {
		target[i] = scale*target[i] - it.Multipliers.LowerBounds[i] - it.Multipliers.UpperBounds[i]
	}

	jac := mat.NewDense(m, n, nil)
	problem.EvaluateConstraintJacobian(it, jac)

	var sol mat.Dense
	err := sol.Solve(jac.T(), mat.NewVecDense(n, target))
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		zeroMultipliers(it, m)
		return
	}
	norm := 0.0
	for j := 0; j < m; j++ {
		norm = math.Max(norm, math.Abs(sol.At(j, 0)))
	}
	if !nlp.IsFinite(norm) || norm > maxNorm {
		zeroMultipliers(it, m)
		return
	}
	for j := 0; j < m; j++ {
		it.Multipliers.Constraints[j] = sol.At(j, 0)
	}
}

func zeroMultipliers(it *nlp.Iterate, m int) {
	for j := 0; j < m; j++ {
		it.Multipliers.Constraints[j] = 0
	}
}
