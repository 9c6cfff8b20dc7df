// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package twophase

import (
	"github.com/curioloop/nlpopt/nlp"
)

// Strategy is the two-phase state machine wrapped around the merit
// acceptance test. It starts in OPTIMALITY and switches to RESTORATION
// when the optimality-phase linearization is infeasible or a rejected
// step leaves significant constraint violation; it returns to
// OPTIMALITY once a restoration step drives the violation below the
// tolerance.
type Strategy struct {
	*MeritFunction

	phase     nlp.Phase
	tolerance float64
}

// NewStrategy creates the state machine in the OPTIMALITY phase.
func NewStrategy(merit *MeritFunction, tolerance float64) *Strategy {
	return &Strategy{MeritFunction: merit, phase: nlp.Optimality, tolerance: tolerance}
}

// Phase returns the current phase.
func (s *Strategy) Phase() nlp.Phase { return s.phase }

// NeedsRestoration decides the OPTIMALITY → RESTORATION transition:
// the linearization admits no feasible point, or the trial point was
// rejected while the current violation exceeds the tolerance.
func (s *Strategy) NeedsRestoration(dir *nlp.Direction, rejected bool, currentInfeasibility float64) bool {
	if s.phase != nlp.Optimality {
		return false
	}
	if dir != nil && dir.Status == nlp.StatusInfeasible {
		return true
	}
	return rejected && currentInfeasibility > s.tolerance
}

// EnterRestoration switches the phase.
func (s *Strategy) EnterRestoration() {
	if s.phase == nlp.Restoration {
		panic("twophase: already in restoration")
	}
	s.phase = nlp.Restoration
}

// CanExitRestoration decides the RESTORATION → OPTIMALITY transition:
// the feasibility measure of the accepted trial point is below the
// tolerance.
func (s *Strategy) CanExitRestoration(trial nlp.Progress) bool {
	return s.phase == nlp.Restoration && trial.Infeasibility <= s.tolerance
}

// ExitRestoration switches back to the optimality phase.
func (s *Strategy) ExitRestoration() {
	if s.phase != nlp.Restoration {
		panic("twophase: not in restoration")
	}
	s.phase = nlp.Optimality
}
