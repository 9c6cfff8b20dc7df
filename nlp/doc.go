// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp defines the data model shared by the subproblem and
// globalization layers of the solver:
//
//   - Model describes a smooth constrained problem
//     𝚖𝚒𝚗 𝒇(𝐱) subject to 𝒄ˡ ≤ 𝒄(𝐱) ≤ 𝒄ᵘ and 𝒍 ≤ 𝐱 ≤ 𝒖
//   - Iterate bundles a primal point with multiplier estimates,
//     cached evaluations and progress measures
//   - Direction is the displacement proposed by a subproblem
//   - Problem is a reformulated view over a Model (optimality phase,
//     L1 elastic feasibility phase, slack-based equality form)
package nlp
