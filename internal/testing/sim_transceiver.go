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

package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/petermattis/goid"
)

// Reply is a canned exchange result returned by an Override.
type Reply struct {
	Err  error
	Data []byte
}

// Override intercepts an exchange before the tag sees it. Returning false
// passes the frame through to the tag.
type Override func(tx []byte) (Reply, bool)

// ExchangeLogEntry records one exchange issued through the simulator
type ExchangeLogEntry struct {
	Err  error
	TX   []byte
	RX   []byte
	FWT  uint32
	Bits int
}

// SimTransceiver implements nfcmagic.Transceiver against a VirtualTag.
// With no tag in the field it never reports a ready event.
type SimTransceiver struct {
	tag      VirtualTag
	override Override
	caps     map[nfcmagic.Capability]bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	log      []ExchangeLogEntry
	interval time.Duration
	guard    time.Duration
	deadline uint32
	mu       sync.Mutex
	tech     nfcmagic.Tech
	mode     nfcmagic.Mode
	starts   atomic.Int32
	stops    atomic.Int32
	loop     atomic.Int64
	running  atomic.Bool
}

// NewSimTransceiver creates a simulator with tag in the field (nil for none).
func NewSimTransceiver(tag VirtualTag) *SimTransceiver {
	return &SimTransceiver{
		tag:      tag,
		interval: time.Millisecond,
	}
}

// SetTag replaces the tag in the field (nil removes it)
func (s *SimTransceiver) SetTag(tag VirtualTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = tag
}

// SetOverride installs an exchange interceptor
func (s *SimTransceiver) SetOverride(o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = o
}

// SetCapabilities restricts the reported capabilities. Without a call every
// capability the tag can serve is reported.
func (s *SimTransceiver) SetCapabilities(caps ...nfcmagic.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = make(map[nfcmagic.Capability]bool, len(caps))
	for _, c := range caps {
		s.caps[c] = true
	}
}

// HasCapability implements nfcmagic.CapabilityChecker
func (s *SimTransceiver) HasCapability(capability nfcmagic.Capability) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps != nil {
		return s.caps[capability]
	}
	return true
}

// Configure implements nfcmagic.Transceiver
func (s *SimTransceiver) Configure(mode nfcmagic.Mode, tech nfcmagic.Tech) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps != nil {
		if tech == nfcmagic.TechISO15693 && !s.caps[nfcmagic.CapabilityISO15693] {
			return nfcmagic.ErrTechUnsupported
		}
		if tech == nfcmagic.TechISO14443A && !s.caps[nfcmagic.CapabilityISO14443A] {
			return nfcmagic.ErrTechUnsupported
		}
	}
	s.mode = mode
	s.tech = tech
	return nil
}

// SetGuardTime implements nfcmagic.Transceiver
func (s *SimTransceiver) SetGuardTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard = d
}

// SetPollDeadline implements nfcmagic.Transceiver
func (s *SimTransceiver) SetPollDeadline(fc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = fc
}

// Exchange implements nfcmagic.Transceiver
func (s *SimTransceiver) Exchange(ctx context.Context, tx []byte, fwt uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nfcmagic.NewTimeoutError("exchange")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fwt == 0 {
		fwt = s.deadline
	}
	entry := ExchangeLogEntry{TX: append([]byte(nil), tx...), FWT: fwt, Bits: len(tx) * 8}

	reply, handled := Reply{}, false
	if s.override != nil {
		reply, handled = s.override(tx)
	}
	if handled {
		entry.RX, entry.Err = reply.Data, reply.Err
	} else {
		entry.RX, entry.Err = s.handleLocked(tx)
	}

	s.log = append(s.log, entry)
	return entry.RX, entry.Err
}

func (s *SimTransceiver) handleLocked(tx []byte) ([]byte, error) {
	if s.tag == nil || s.tag.Tech() != s.tech {
		return nil, nfcmagic.NewTimeoutError("exchange")
	}
	return s.tag.Handle(tx)
}

// ExchangeBits implements nfcmagic.BitExchanger
func (s *SimTransceiver) ExchangeBits(
	ctx context.Context, tx []byte, txBits int, fwt uint32,
) (rx []byte, rxBits int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, nfcmagic.NewTimeoutError("exchange bits")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := ExchangeLogEntry{TX: append([]byte(nil), tx...), FWT: fwt, Bits: txBits}
	bitTag, ok := s.tag.(BitTag)
	switch {
	case s.tag == nil || s.tag.Tech() != s.tech:
		entry.Err = nfcmagic.NewTimeoutError("exchange bits")
	case !ok:
		entry.Err = nfcmagic.NewTimeoutError("exchange bits")
	default:
		entry.RX, rxBits, entry.Err = bitTag.HandleBits(tx, txBits)
	}
	s.log = append(s.log, entry)
	return entry.RX, rxBits, entry.Err
}

// Start implements nfcmagic.Transceiver. Ready events are delivered from a
// dedicated goroutine while a tag of the configured tech is in the field.
func (s *SimTransceiver) Start(cb nfcmagic.Callback) error {
	if !s.running.CompareAndSwap(false, true) {
		return nfcmagic.ErrTransceiverBusy
	}
	s.starts.Add(1)

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		s.loop.Store(goid.Get())
		defer close(doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			default:
			}

			if s.tagPresent() {
				cmd := cb(nfcmagic.Event{Type: nfcmagic.EventTypePollerReady})
				if cmd == nfcmagic.CommandStop {
					return
				}
			}

			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (s *SimTransceiver) tagPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag != nil && s.tag.Tech() == s.tech
}

// Stop implements nfcmagic.Transceiver. It is safe to call repeatedly and
// from inside the callback.
func (s *SimTransceiver) Stop() error {
	s.stops.Add(1)
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	if s.loop.Load() != goid.Get() {
		<-doneCh
	}
	return nil
}

// StartCount returns how many sessions were started
func (s *SimTransceiver) StartCount() int {
	return int(s.starts.Load())
}

// StopCount returns how many times Stop was called
func (s *SimTransceiver) StopCount() int {
	return int(s.stops.Load())
}

// Tech returns the last configured technology
func (s *SimTransceiver) Tech() nfcmagic.Tech {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tech
}

// GuardTime returns the last configured guard time
func (s *SimTransceiver) GuardTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard
}

// Log returns a copy of the exchange log
func (s *SimTransceiver) Log() []ExchangeLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExchangeLogEntry, len(s.log))
	copy(out, s.log)
	return out
}

// ClearLog empties the exchange log
func (s *SimTransceiver) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

var (
	_ nfcmagic.Transceiver       = (*SimTransceiver)(nil)
	_ nfcmagic.BitExchanger      = (*SimTransceiver)(nil)
	_ nfcmagic.CapabilityChecker = (*SimTransceiver)(nil)
)
