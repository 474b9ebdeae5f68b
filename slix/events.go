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

import "github.com/ZaparooProject/go-nfcmagic"

// Mode is the high-level operation the poller runs once a tag is found.
type Mode int

const (
	// ModeNone selects nothing and fails the cycle
	ModeNone Mode = iota
	// ModeWipe zeroes every user block
	ModeWipe
	// ModeGetInfo reads system info, vendor info and the signature
	ModeGetInfo
	// ModeWrite is reserved for writing a dump and not implemented
	ModeWrite
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeWipe:
		return "wipe"
	case ModeGetInfo:
		return "get info"
	case ModeWrite:
		return "write"
	case ModeNone:
		return "none"
	default:
		return "unknown"
	}
}

// EventType identifies a poller event
type EventType int

const (
	// EventTypeCardDetected is emitted when a cycle starts on a tag
	EventTypeCardDetected EventType = iota
	// EventTypeRequestMode asks the callback which Mode to run
	EventTypeRequestMode
	// EventTypeSuccess ends a cycle that completed
	EventTypeSuccess
	// EventTypeFail ends a cycle that failed; Event.Err says why
	EventTypeFail
)

// String returns the event name
func (t EventType) String() string {
	switch t {
	case EventTypeCardDetected:
		return "card detected"
	case EventTypeRequestMode:
		return "request mode"
	case EventTypeSuccess:
		return "success"
	case EventTypeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Event is delivered to the poller callback.
type Event struct {
	Err  error
	Type EventType
}

// Response is what the callback returns: whether to keep polling and, for
// EventTypeRequestMode, the mode to run.
type Response struct {
	Command nfcmagic.Command
	Mode    Mode
}

// Callback receives poller events from the transceiver goroutine.
type Callback func(Event) Response

// Continue keeps the poller running
func Continue() Response {
	return Response{Command: nfcmagic.CommandContinue}
}

// Stop asks the transceiver to end the session
func Stop() Response {
	return Response{Command: nfcmagic.CommandStop}
}

// SelectMode answers EventTypeRequestMode with m and keeps running
func SelectMode(m Mode) Response {
	return Response{Command: nfcmagic.CommandContinue, Mode: m}
}
