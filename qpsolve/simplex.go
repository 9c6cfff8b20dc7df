// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qpsolve provides a dense LP/QP backend for the active-set
// subproblems. Linear programs are converted to standard form and
// handed to gonum's simplex; quadratic programs are solved by a primal
// active-set method with dense KKT factorizations.
package qpsolve

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/curioloop/nlpopt/activeset"
	"github.com/curioloop/nlpopt/nlp"
)

const (
	// activeTol decides whether a bound or constraint side is active
	// at a solution.
	activeTol = 1e-8
	// stepTol decides whether an equality-constrained QP step is zero.
	stepTol = 1e-10
)

// Dense is an LP/QP backend working on dense data. All buffers are
// allocated once to the maximum problem size.
type Dense struct {
	maxVars, maxCons int

	point   []float64 // current point in original coordinates
	grad    []float64 // objective gradient g + Hd of the QP iteration
	step    []float64
	kktData []float64
	rhsData []float64
	lu      mat.LU
}

// NewDense allocates a backend for at most maxVars variables and
// maxCons constraints.
func NewDense(maxVars, maxCons int) *Dense {
	dim := 2*maxVars + maxCons
	return &Dense{
		maxVars: maxVars, maxCons: maxCons,
		point:   make([]float64, maxVars),
		grad:    make([]float64, maxVars),
		step:    make([]float64, dim),
		kktData: make([]float64, dim*dim),
		rhsData: make([]float64, dim),
	}
}

// SolveLP solves the bounded linear program of the request.
func (d *Dense) SolveLP(req *activeset.Request, dir *nlp.Direction) error {
	x, status, err := d.simplex(req.Gradient, req)
	if err != nil {
		return err
	}
	dir.Status = status
	if status != nlp.StatusOptimal {
		return nil
	}
	copy(dir.Primals[:req.N], x)
	dir.Objective = floats.Dot(req.Gradient, x)
	markActiveSet(req, dir, x)
	return recoverDuals(req, dir, x, nil)
}

const (
	kindShiftLower  int8 = iota // d = lb + y
	kindMirrorUpper             // d = ub - y
	kindSplit                   // d = y⁺ - y⁻
	kindFixed                   // d = lb = ub, no column
)

type lpVar struct {
	col   int
	kind  int8
	shift float64
}

// simplex converts min costᵀd over the request's bounds and linearized
// constraints into standard form min 𝐜ᵀ𝐲 s.t. 𝐀𝐲=𝐛, 𝐲≥0 and solves it
// with gonum's simplex. The result is mapped back to d coordinates.
func (d *Dense) simplex(cost []float64, req *activeset.Request) ([]float64, nlp.SubproblemStatus, error) {
	n, m := req.N, req.M

	vars := make([]lpVar, n)
	ncols := 0
	for i, b := range req.VarBounds {
		switch {
		case b.Type() == nlp.EqualBounds:
			// fixed variables are substituted out entirely
			vars[i] = lpVar{-1, kindFixed, b.Lower}
		case nlp.IsFinite(b.Lower):
			vars[i] = lpVar{ncols, kindShiftLower, b.Lower}
			ncols++
		case nlp.IsFinite(b.Upper):
			vars[i] = lpVar{ncols, kindMirrorUpper, b.Upper}
			ncols++
		default:
			vars[i] = lpVar{ncols, kindSplit, 0}
			ncols += 2
		}
	}

	// slack columns and range rows
	nrows := m
	for _, b := range req.ConsBounds {
		switch b.Type() {
		case nlp.EqualBounds:
		case nlp.BoundedBoth:
			ncols += 2 // slack plus its range slack
			nrows++
		default:
			ncols++
		}
	}
	for _, b := range req.VarBounds {
		if b.Type() == nlp.BoundedBoth {
			ncols++ // y_i + s_i = ub_i - lb_i
			nrows++
		}
	}

	if nrows == 0 {
		// box-constrained LP: each variable sits on the bound its cost
		// points away from
		x := d.point[:n]
		for i, ci := range cost[:n] {
			vb := req.VarBounds[i]
			switch {
			case ci > 0:
				if !nlp.IsFinite(vb.Lower) {
					return nil, nlp.StatusUnbounded, nil
				}
				x[i] = vb.Lower
			case ci < 0:
				if !nlp.IsFinite(vb.Upper) {
					return nil, nlp.StatusUnbounded, nil
				}
				x[i] = vb.Upper
			default:
				x[i] = math.Min(math.Max(0, vb.Lower), vb.Upper)
			}
		}
		return x, nlp.StatusOptimal, nil
	}

	if ncols == 0 {
		// every variable fixed and every constraint an equality: the
		// shift vector is the only candidate point
		x := d.point[:n]
		for i, v := range vars {
			x[i] = v.shift
		}
		for j := 0; j < m; j++ {
			v := 0.0
			for i := 0; i < n; i++ {
				v += req.Jacobian.At(j, i) * x[i]
			}
			if req.ConsBounds[j].Violation(v) > activeTol {
				return nil, nlp.StatusInfeasible, nil
			}
		}
		return x, nlp.StatusOptimal, nil
	}

	a := mat.NewDense(nrows, ncols, nil)
	b := make([]float64, nrows)
	c := make([]float64, ncols)

	for i, v := range vars {
		switch v.kind {
		case kindFixed:
		case kindShiftLower:
			c[v.col] = cost[i]
		case kindMirrorUpper:
			c[v.col] = -cost[i]
		default:
			c[v.col], c[v.col+1] = cost[i], -cost[i]
		}
	}

	slack := ncols - countSlacks(req)
	row := m
	for j := 0; j < m; j++ {
		shift := 0.0
		for i, v := range vars {
			jac := req.Jacobian.At(j, i)
			switch v.kind {
			case kindFixed:
				shift += jac * v.shift
			case kindShiftLower:
				a.Set(j, v.col, jac)
				shift += jac * v.shift
			case kindMirrorUpper:
				a.Set(j, v.col, -jac)
				shift += jac * v.shift
			default:
				a.Set(j, v.col, jac)
				a.Set(j, v.col+1, -jac)
			}
		}
		cb := req.ConsBounds[j]
		switch cb.Type() {
		case nlp.EqualBounds:
			b[j] = cb.Lower - shift
		case nlp.BoundedBoth:
			// Jd - r = cl, 0 ≤ r ≤ cu - cl
			a.Set(j, slack, -1)
			b[j] = cb.Lower - shift
			a.Set(row, slack, 1)
			a.Set(row, slack+1, 1)
			b[row] = cb.Upper - cb.Lower
			slack += 2
			row++
		case nlp.BoundedLower:
			a.Set(j, slack, -1)
			b[j] = cb.Lower - shift
			slack++
		default:
			a.Set(j, slack, 1)
			b[j] = cb.Upper - shift
			slack++
		}
	}
	for i, v := range vars {
		vb := req.VarBounds[i]
		if vb.Type() == nlp.BoundedBoth {
			a.Set(row, v.col, 1)
			a.Set(row, slack, 1)
			b[row] = vb.Upper - vb.Lower
			slack++
			row++
		}
	}

	_, y, err := lp.Simplex(c, a, b, 0, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, nlp.StatusInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, nlp.StatusUnbounded, nil
	case err != nil:
		return nil, nlp.StatusOptimal, err
	}

	x := d.point[:n]
	for i, v := range vars {
		switch v.kind {
		case kindFixed:
			x[i] = v.shift
		case kindShiftLower:
			x[i] = v.shift + y[v.col]
		case kindMirrorUpper:
			x[i] = v.shift - y[v.col]
		default:
			x[i] = y[v.col] - y[v.col+1]
		}
	}
	return x, nlp.StatusOptimal, nil
}

func countSlacks(req *activeset.Request) int {
	count := 0
	for _, b := range req.ConsBounds {
		switch b.Type() {
		case nlp.EqualBounds:
		case nlp.BoundedBoth:
			count += 2
		default:
			count++
		}
	}
	for _, b := range req.VarBounds {
		if b.Type() == nlp.BoundedBoth {
			count++
		}
	}
	return count
}

// markActiveSet records which bounds and constraint sides are active
// at x within the backend tolerance.
func markActiveSet(req *activeset.Request, dir *nlp.Direction, x []float64) {
	for i := 0; i < req.N; i++ {
		b := req.VarBounds[i]
		if nlp.IsFinite(b.Lower) && math.Abs(x[i]-b.Lower) <= activeTol {
			dir.ActiveSet.BoundsAtLower[i] = true
		} else if nlp.IsFinite(b.Upper) && math.Abs(x[i]-b.Upper) <= activeTol {
			dir.ActiveSet.BoundsAtUpper[i] = true
		}
	}
	for j := 0; j < req.M; j++ {
		v := 0.0
		for i := 0; i < req.N; i++ {
			v += req.Jacobian.At(j, i) * x[i]
		}
		b := req.ConsBounds[j]
		if nlp.IsFinite(b.Lower) && math.Abs(v-b.Lower) <= activeTol {
			dir.ActiveSet.ConstraintsAtLower[j] = true
		}
		if nlp.IsFinite(b.Upper) && math.Abs(v-b.Upper) <= activeTol {
			dir.ActiveSet.ConstraintsAtUpper[j] = true
		}
	}
}

// recoverDuals estimates the multipliers of the active bounds and
// constraints by a least-squares fit of the stationarity condition
// 𝐠 + 𝐇𝐝 = 𝐉ᵀ𝛌 + 𝐳.
func recoverDuals(req *activeset.Request, dir *nlp.Direction, x []float64, hess *nlp.SymMatrix) error {
	type dualRef struct {
		cons  bool
		index int
		lower bool
	}
	var refs []dualRef
	for j := 0; j < req.M; j++ {
		if dir.ActiveSet.ConstraintsAtLower[j] || dir.ActiveSet.ConstraintsAtUpper[j] {
			refs = append(refs, dualRef{true, j, dir.ActiveSet.ConstraintsAtLower[j]})
		}
	}
	for i := 0; i < req.N; i++ {
		if dir.ActiveSet.BoundsAtLower[i] {
			refs = append(refs, dualRef{false, i, true})
		} else if dir.ActiveSet.BoundsAtUpper[i] {
			refs = append(refs, dualRef{false, i, false})
		}
	}
	if len(refs) == 0 {
		return nil
	}

	target := make([]float64, req.N)
	copy(target, req.Gradient)
	if hess != nil {
		for i := 0; i < req.N; i++ {
			for k := 0; k < req.N; k++ {
				target[i] += hess.At(i, k) * x[k]
			}
		}
	}

	cols := mat.NewDense(req.N, len(refs), nil)
	for k, ref := range refs {
		if ref.cons {
			for i := 0; i < req.N; i++ {
				cols.Set(i, k, req.Jacobian.At(ref.index, i))
			}
		} else {
			cols.Set(ref.index, k, 1)
		}
	}

	var sol mat.Dense
	err := sol.Solve(cols, mat.NewVecDense(req.N, target))
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return err
	}
	for k, ref := range refs {
		v := sol.At(k, 0)
		switch {
		case ref.cons:
			dir.Multipliers.Constraints[ref.index] = v
		case ref.lower:
			dir.Multipliers.LowerBounds[ref.index] = v
		default:
			dir.Multipliers.UpperBounds[ref.index] = v
		}
	}
	return nil
}
