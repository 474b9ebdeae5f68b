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

package nfcmagic

import (
	"context"
	"time"
)

// CarrierHz is the RF carrier frequency. One fc (carrier cycle) is 1/CarrierHz.
const CarrierHz = 13_560_000

// Mode selects the role of the transceiver.
type Mode int

const (
	// ModePoller drives the field and talks to a tag
	ModePoller Mode = iota
	// ModeListener emulates a tag
	ModeListener
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeListener {
		return "listener"
	}
	return "poller"
}

// Tech is the air interface a session is configured for.
type Tech int

const (
	// TechISO14443A is ISO14443 type A at 106 kbit/s
	TechISO14443A Tech = iota
	// TechISO15693 is ISO15693 (NFC-V) high data rate
	TechISO15693
)

// String returns the technology name
func (t Tech) String() string {
	switch t {
	case TechISO14443A:
		return "ISO14443A"
	case TechISO15693:
		return "ISO15693"
	default:
		return "unknown"
	}
}

// Command is returned by a transceiver callback to continue or end a session.
type Command int

const (
	// CommandContinue keeps the session running
	CommandContinue Command = iota
	// CommandStop ends the session after the callback returns
	CommandStop
)

// EventType identifies a transceiver event
type EventType int

const (
	// EventTypePollerReady means a tag is in the field and exchanges may be issued
	EventTypePollerReady EventType = iota
	// EventTypeFieldLost means the tag was not found on this poll cycle
	EventTypeFieldLost
)

// Event is delivered to a transceiver callback from the transceiver's own goroutine.
type Event struct {
	Type EventType
}

// Callback handles transceiver events. Exchanges may be issued from inside it.
type Callback func(Event) Command

// Transceiver is the raw half-duplex exchange primitive over the RF field.
// Frames are passed verbatim, with any CRC already appended by the caller.
type Transceiver interface {
	// Configure selects the role and air interface for the next session
	Configure(mode Mode, tech Tech) error

	// SetGuardTime sets the delay between field-on and the first exchange
	SetGuardTime(d time.Duration)

	// SetPollDeadline sets the default frame wait time in carrier cycles
	SetPollDeadline(fc uint32)

	// Exchange transmits tx and waits up to fwt carrier cycles for a response.
	// A zero fwt uses the poll deadline.
	Exchange(ctx context.Context, tx []byte, fwt uint32) ([]byte, error)

	// Start begins a session and delivers events to cb until it returns
	// CommandStop or Stop is called
	Start(cb Callback) error

	// Stop ends the session. Calling it more than once is safe.
	Stop() error
}

// BitExchanger is implemented by transceivers that can send short frames
// with a bit count that is not a multiple of eight.
type BitExchanger interface {
	// ExchangeBits transmits the first txBits bits of tx and returns the
	// response together with its length in bits.
	ExchangeBits(ctx context.Context, tx []byte, txBits int, fwt uint32) (rx []byte, rxBits int, err error)
}

// Capability represents an optional transceiver feature
type Capability string

const (
	// CapabilityBitFrames means the transceiver implements BitExchanger
	CapabilityBitFrames Capability = "bit_frames"
	// CapabilityISO15693 means the transceiver can be configured for TechISO15693
	CapabilityISO15693 Capability = "iso15693"
	// CapabilityISO14443A means the transceiver can be configured for TechISO14443A
	CapabilityISO14443A Capability = "iso14443a"
)

// CapabilityChecker is implemented by transceivers that report their features.
type CapabilityChecker interface {
	HasCapability(capability Capability) bool
}

// HasCapability reports whether t has the capability. Transceivers that do
// not implement CapabilityChecker are assumed to support both technologies
// and nothing optional.
func HasCapability(t Transceiver, capability Capability) bool {
	if checker, ok := t.(CapabilityChecker); ok {
		return checker.HasCapability(capability)
	}
	switch capability {
	case CapabilityISO14443A, CapabilityISO15693:
		return true
	case CapabilityBitFrames:
		_, ok := t.(BitExchanger)
		return ok
	default:
		return false
	}
}

// SupportsTech reports whether t can be configured for tech
func SupportsTech(t Transceiver, tech Tech) bool {
	switch tech {
	case TechISO14443A:
		return HasCapability(t, CapabilityISO14443A)
	case TechISO15693:
		return HasCapability(t, CapabilityISO15693)
	default:
		return false
	}
}

// FCToDuration converts carrier cycles to wall time, rounding up to the
// next microsecond.
func FCToDuration(fc uint32) time.Duration {
	us := (uint64(fc)*1_000_000 + CarrierHz - 1) / CarrierHz
	return time.Duration(us) * time.Microsecond
}
