// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slix

// State is the poller state machine position.
type State int

const (
	StateIdle State = iota
	StateRequestMode
	StateWipe
	StateGetInfo
	StateSuccess
	StateFail
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestMode:
		return "request mode"
	case StateWipe:
		return "wipe"
	case StateGetInfo:
		return "get info"
	case StateSuccess:
		return "success"
	case StateFail:
		return "fail"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state ends a cycle
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFail
}

// cycle is the per-tag progress of one pass through the state machine.
type cycle struct {
	err          error
	state        State
	mode         Mode
	currentBlock int
}

// reset returns to Idle with nothing in flight
func (c *cycle) reset() {
	*c = cycle{state: StateIdle}
}

// transitionToFail records err and moves to Fail
func (c *cycle) transitionToFail(err error) {
	c.err = err
	c.state = StateFail
}

// transitionToSuccess clears any error and moves to Success
func (c *cycle) transitionToSuccess() {
	c.err = nil
	c.state = StateSuccess
}

// transitionToIdle ends the cycle and rewinds the block cursor
func (c *cycle) transitionToIdle() {
	c.state = StateIdle
	c.currentBlock = 0
}
