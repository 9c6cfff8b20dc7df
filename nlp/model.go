// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bound represents the bounds for a variable or a constraint.
// Missing sides are ±Inf.
type Bound struct {
	Lower, Upper float64
}

// BoundType classifies a Bound by its finite sides.
type BoundType int8

const (
	Unbounded BoundType = iota
	BoundedLower
	BoundedUpper
	BoundedBoth
	EqualBounds
)

// Unbound is the bound of a free quantity.
var Unbound = Bound{math.Inf(-1), math.Inf(1)}

// Type returns the classification of b.
func (b Bound) Type() BoundType {
	l, u := IsFinite(b.Lower), IsFinite(b.Upper)
	switch {
	case l && u && b.Lower == b.Upper:
		return EqualBounds
	case l && u:
		return BoundedBoth
	case l:
		return BoundedLower
	case u:
		return BoundedUpper
	}
	return Unbounded
}

// Violation returns how far value lies outside b (0 if inside).
func (b Bound) Violation(value float64) float64 {
	return math.Max(0, math.Max(b.Lower-value, value-b.Upper))
}

// IsFinite reports whether x is neither infinite nor NaN.
func IsFinite(x float64) bool {
	return !math.IsInf(x, 0) && !math.IsNaN(x)
}

// Model describes a smooth constrained optimization problem
//
//	𝚖𝚒𝚗 𝒇(𝐱) subject to 𝒄ˡ ≤ 𝒄(𝐱) ≤ 𝒄ᵘ and 𝒍 ≤ 𝐱 ≤ 𝒖
//
// Evaluation methods write into caller-supplied buffers sized by the
// model dimensions. Derivatives are assumed available (either exact or
// via the numerical fallback of Funcs).
type Model interface {
	Name() string
	NumVariables() int
	NumConstraints() int

	// ObjectiveSign is +1 for minimization, -1 for maximization.
	ObjectiveSign() float64

	VariableBounds(i int) Bound
	ConstraintBounds(j int) Bound

	Objective(x []float64) float64
	ObjectiveGradient(x, grad []float64)
	Constraints(x, cons []float64)
	ConstraintJacobian(x []float64, jac *mat.Dense)
	// LagrangianHessian evaluates 𝜵²[objMult·𝒇(𝐱) - 𝛌ᵀ𝒄(𝐱)] into hess.
	LagrangianHessian(x []float64, objMult float64, multipliers []float64, hess *SymMatrix)

	InitialPrimal(x []float64)
	InitialDual(multipliers []float64)
}

// TotalViolation returns the L1 norm of the constraint violation of cons.
func TotalViolation(m Model, cons []float64) (vio float64) {
	for j, c := range cons {
		vio += m.ConstraintBounds(j).Violation(c)
	}
	return
}

// MaxViolation returns the L∞ norm of the constraint violation of cons.
func MaxViolation(m Model, cons []float64) (vio float64) {
	for j, c := range cons {
		vio = math.Max(vio, m.ConstraintBounds(j).Violation(c))
	}
	return
}
