/*
Copyright © 2026 the Kaleido authors.
This file is part of Kaleido.

Kaleido is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Kaleido is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Kaleido.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package kaleido simulates measurement uncertainty for gridded geophysical
// datasets using Monte Carlo methods.
//
// The scatter engine generates statistically constrained randomized variants
// of a source dataset: each data variable is perturbed with deterministic
// pseudo-random errors drawn from its configured error distribution, scaled
// by its standard uncertainty, and clipped to its physical bounds. The
// collect engine reduces an ensemble of such variants into the nominal
// value, the standard uncertainty (sample standard deviation across the
// ensemble members), and a low-pass filtered estimate of the standard
// uncertainty.
//
// Only uncorrelated per-cell errors are simulated; spatially and temporally
// correlated errors are a known limitation.
package kaleido

import "fmt"

// Version gives the version number of this version of Kaleido.
const Version = "1.0.0"

// Name is the name of this software, used to mark output datasets.
const Name = "kaleido"

// RunState describes the progress of an engine invocation. State
// transitions are strictly forward; the only transition out of order is
// into StateFailed, which is terminal.
type RunState int

// The engine run states, in order of occurrence.
const (
	StateInit RunState = iota
	StateValidatingInput
	StateBuildingGraph
	StateExecuting
	StateWriting
	StateClosed
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateValidatingInput:
		return "validating_input"
	case StateBuildingGraph:
		return "building_graph"
	case StateExecuting:
		return "executing"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// runStatus tracks the state machine of one engine invocation.
type runStatus struct {
	state RunState
}

// advance moves the run to the given state. Moving backwards or out of a
// terminal state is a programming error.
func (r *runStatus) advance(to RunState) {
	if r.state == StateFailed || r.state == StateClosed || to <= r.state {
		panic(fmt.Sprintf("kaleido: invalid state transition %v -> %v", r.state, to))
	}
	r.state = to
}

// fail moves the run to the terminal failed state. It may be called from
// any non-terminal state.
func (r *runStatus) fail() {
	if r.state != StateClosed {
		r.state = StateFailed
	}
}

// A ConfigError reports invalid configuration: it is always detected
// before graph execution starts and is never retried.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// configErrorf creates a new ConfigError.
func configErrorf(format string, a ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, a...)}
}
