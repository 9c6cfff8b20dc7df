// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import "math"

// Updater drives the barrier parameter μ monotonically toward zero:
// once the current point approximately solves the barrier subproblem
// for the current μ, the parameter is reduced superlinearly.
type Updater struct {
	mu        float64
	kMu       float64 // linear reduction factor
	thetaMu   float64 // superlinear reduction exponent
	kEpsilon  float64 // barrier-error threshold factor
	tolerance float64 // solver tolerance, floor for μ
}

// NewUpdater creates an updater starting from initialMu.
func NewUpdater(initialMu, kMu, thetaMu, kEpsilon, tolerance float64) *Updater {
	if !(initialMu > 0) {
		panic("barrier: initial barrier parameter must be positive")
	}
	return &Updater{mu: initialMu, kMu: kMu, thetaMu: thetaMu, kEpsilon: kEpsilon, tolerance: tolerance}
}

// Mu returns the current barrier parameter.
func (u *Updater) Mu() float64 { return u.mu }

// SetMu overwrites μ; used for the restoration snapshot/restore.
func (u *Updater) SetMu(mu float64) {
	if !(mu > 0) {
		panic("barrier: barrier parameter must be positive")
	}
	u.mu = mu
}

// Update reduces μ when the scaled barrier KKT error is below k_ε·μ,
// taking the tighter of the linear and superlinear schedules, floored
// at a fraction of the solver tolerance. Reports whether μ changed.
func (u *Updater) Update(barrierError float64) bool {
	if barrierError > u.kEpsilon*u.mu {
		return false
	}
	next := math.Max(u.tolerance/10, math.Min(u.kMu*u.mu, math.Pow(u.mu, u.thetaMu)))
	if next >= u.mu {
		return false
	}
	u.mu = next
	return true
}
