// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qpsolve

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nlpopt/activeset"
	"github.com/curioloop/nlpopt/nlp"
)

// ErrIterationLimit reports that the QP active-set loop did not settle
// within its iteration budget.
var ErrIterationLimit = errors.New("qpsolve: QP iteration limit exceeded")

const (
	// regInit and regMax bound the diagonal regularization applied when
	// the KKT factorization is singular.
	regInit = 1e-8
	regMax  = 1e-2
)

// qpRow is one inequality of the QP in row form l ≤ 𝐚ᵀ𝐝 ≤ u. Rows
// 0..m-1 are the linearized constraints, rows m..m+n-1 the variable
// bounds.
type qpRow struct {
	lower, upper float64
	// side is the active side while the row is in the working set:
	// -1 lower, +1 upper, 0 equality.
	side    int8
	working bool
}

// SolveQP solves the bounded quadratic program of the request by a
// primal active-set method. A feasible starting point is found with
// the simplex backend when the warm start violates the linearized
// constraints; an infeasible phase-one signals StatusInfeasible.
func (d *Dense) SolveQP(req *activeset.Request, dir *nlp.Direction) error {
	n, m := req.N, req.M
	x := d.point[:n]
	copy(x, req.InitialPoint)
	for i := 0; i < n; i++ {
		b := req.VarBounds[i]
		x[i] = math.Min(math.Max(x[i], b.Lower), b.Upper)
	}

	rows := make([]qpRow, m+n)
	for j := 0; j < m; j++ {
		b := req.ConsBounds[j]
		rows[j] = qpRow{lower: b.Lower, upper: b.Upper}
	}
	for i := 0; i < n; i++ {
		b := req.VarBounds[i]
		rows[m+i] = qpRow{lower: b.Lower, upper: b.Upper}
	}

	if m > 0 && maxRowViolation(req, rows, x) > activeTol {
		zero := make([]float64, n)
		feas, status, err := d.simplex(zero, req)
		if err != nil {
			return err
		}
		if status != nlp.StatusOptimal {
			dir.Status = status
			return nil
		}
		copy(x, feas)
	}

	// equality rows stay in the working set for the whole solve
	working := 0
	for j := 0; j < m; j++ {
		if rows[j].lower == rows[j].upper {
			rows[j].side, rows[j].working = 0, true
			working++
		}
	}

	lambda := make([]float64, m+n)
	maxIter := 50 * (n + m + 1)
	for iter := 0; iter < maxIter; iter++ {
		// q = g + Hd
		g := d.grad[:n]
		copy(g, req.Gradient)
		for i := 0; i < n; i++ {
			for k := 0; k < n; k++ {
				g[i] += req.Hessian.At(i, k) * x[k]
			}
		}

		p, nu, singular := d.solveEQP(req, rows, working, g)
		if singular {
			// persistent singularity means unbounded curvature along
			// the free subspace
			dir.Status = nlp.StatusUnbounded
			return nil
		}

		if floats.Norm(p, math.Inf(1)) <= stepTol {
			// stationary on the working set: check multiplier signs
			for i := range lambda {
				lambda[i] = 0
			}
			worst, worstViol := -1, activeTol
			k := 0
			for r := range rows {
				if !rows[r].working {
					continue
				}
				lambda[r] = -nu[k]
				k++
				switch rows[r].side {
				case -1:
					if v := -lambda[r]; v > worstViol {
						worst, worstViol = r, v
					}
				case +1:
					if v := lambda[r]; v > worstViol {
						worst, worstViol = r, v
					}
				}
			}
			if worst < 0 {
				d.fillQPSolution(req, dir, rows, x, lambda)
				return nil
			}
			rows[worst].working = false
			working--
			continue
		}

		// step to the nearest blocking row
		alpha, blocking, side := 1.0, -1, int8(0)
		for r := range rows {
			if rows[r].working {
				continue
			}
			av, ap := rowValue(req, r, x), rowValue(req, r, p)
			switch {
			case ap > stepTol && nlp.IsFinite(rows[r].upper):
				if a := (rows[r].upper - av) / ap; a < alpha {
					alpha, blocking, side = a, r, +1
				}
			case ap < -stepTol && nlp.IsFinite(rows[r].lower):
				if a := (rows[r].lower - av) / ap; a < alpha {
					alpha, blocking, side = a, r, -1
				}
			}
		}
		alpha = math.Max(alpha, 0)
		floats.AddScaled(x, alpha, p)
		if blocking >= 0 && alpha < 1 {
			rows[blocking].side, rows[blocking].working = side, true
			working++
		}
	}
	return ErrIterationLimit
}

// solveEQP solves the equality-constrained QP on the working set:
//
//	[𝐇 𝐀ᵀ][𝐩]   [-𝐪]
//	[𝐀  0][𝛎] = [ 0]
//
// retrying with growing diagonal regularization of 𝐇 when the
// factorization is singular or produces a non-finite solution.
// singular is true when regularization is exhausted.
func (d *Dense) solveEQP(req *activeset.Request, rows []qpRow, working int, q []float64) (p, nu []float64, singular bool) {
	n := req.N
	dim := n + working
	kkt := mat.NewDense(dim, dim, d.kktData[:dim*dim])
	kkt.Zero()
	for i := 0; i < n; i++ {
		for k := i; k < n; k++ {
			v := req.Hessian.At(i, k)
			kkt.Set(i, k, v)
			kkt.Set(k, i, v)
		}
	}
	col := n
	for r := range rows {
		if !rows[r].working {
			continue
		}
		for i := 0; i < n; i++ {
			v := rowCoeff(req, r, i)
			kkt.Set(i, col, v)
			kkt.Set(col, i, v)
		}
		col++
	}

	rhs := d.rhsData[:dim]
	for i := 0; i < n; i++ {
		rhs[i] = -q[i]
	}
	for i := n; i < dim; i++ {
		rhs[i] = 0
	}

	sol := d.step[:dim]
	for reg := 0.0; ; {
		d.lu.Factorize(kkt)
		var out mat.VecDense
		err := d.lu.SolveVecTo(&out, false, mat.NewVecDense(dim, rhs))
		var cond mat.Condition
		if err == nil || errors.As(err, &cond) {
			// an exactly singular factorization still reports an
			// ill-conditioning error but fills the solution with
			// infinities, so conditioning alone does not settle it
			if data := out.RawVector().Data; allFinite(data) {
				copy(sol, data)
				return sol[:n], sol[n:], false
			}
		}
		if reg == 0 {
			reg = regInit
		} else {
			reg *= 10
		}
		if reg > regMax {
			return nil, nil, true
		}
		for i := 0; i < n; i++ {
			kkt.Set(i, i, req.Hessian.At(i, i)+reg)
		}
	}
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !nlp.IsFinite(x) {
			return false
		}
	}
	return true
}

// fillQPSolution writes the primal solution, multipliers, objective and
// active set into the direction.
func (d *Dense) fillQPSolution(req *activeset.Request, dir *nlp.Direction, rows []qpRow, x, lambda []float64) {
	n, m := req.N, req.M
	copy(dir.Primals[:n], x)
	dir.Objective = floats.Dot(req.Gradient, x) + 0.5*req.Hessian.QuadraticForm(x)

	for r := range rows {
		if !rows[r].working {
			continue
		}
		switch {
		case r < m:
			dir.Multipliers.Constraints[r] = lambda[r]
		case rows[r].side == +1:
			dir.Multipliers.UpperBounds[r-m] = lambda[r]
		default:
			dir.Multipliers.LowerBounds[r-m] = lambda[r]
		}
	}
	markActiveSet(req, dir, x)
	dir.Status = nlp.StatusOptimal
}

// rowValue evaluates 𝐚ᵣᵀ𝐝 for row r.
func rowValue(req *activeset.Request, r int, x []float64) float64 {
	if r < req.M {
		v := 0.0
		for i := 0; i < req.N; i++ {
			v += req.Jacobian.At(r, i) * x[i]
		}
		return v
	}
	return x[r-req.M]
}

// rowCoeff returns the i-th coefficient of row r.
func rowCoeff(req *activeset.Request, r, i int) float64 {
	if r < req.M {
		return req.Jacobian.At(r, i)
	}
	if r-req.M == i {
		return 1
	}
	return 0
}

func maxRowViolation(req *activeset.Request, rows []qpRow, x []float64) float64 {
	viol := 0.0
	for r := 0; r < req.M; r++ {
		v := rowValue(req, r, x)
		if v < rows[r].lower {
			viol = math.Max(viol, rows[r].lower-v)
		}
		if v > rows[r].upper {
			viol = math.Max(viol, v-rows[r].upper)
		}
	}
	return viol
}
