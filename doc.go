// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlpopt solves smooth nonlinear constrained optimization
// problems
//
//	𝚖𝚒𝚗 𝒇(𝐱) subject to 𝒄ˡ ≤ 𝒄(𝐱) ≤ 𝒄ᵘ and 𝒍 ≤ 𝐱 ≤ 𝒖
//
// with a two-phase globalized iteration. A subproblem strategy turns
// the local model of the problem into a direction:
//
//   - "LP": linear model inside an ∞-norm trust region
//   - "QP": quadratic model with the exact Lagrangian Hessian inside
//     the same trust region
//   - "primal_dual_interior_point": one Newton step on the perturbed
//     KKT system of the logarithmic barrier reformulation
//
// A backtracking line search accepts or rejects trial points against
// an exact penalty merit, and feasibility restoration takes over when
// the linearized constraints admit no solution, minimizing the L1
// constraint violation until the optimality phase can resume.
//
// Models provide values and derivatives through the nlp.Model
// interface; nlp.Funcs adapts plain functions, with finite-difference
// fallbacks for missing derivatives.
package nlpopt
