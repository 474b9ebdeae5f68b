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

// Package scanner classifies an unknown tag by trying each magic family's
// detector in priority order: Gen1a, Gen4, then SLIX. It reports exactly
// one event per Start.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/gen4"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"github.com/ZaparooProject/go-nfcmagic/slix"
	"github.com/petermattis/goid"
)

// EventType is the scan outcome
type EventType int

const (
	// EventTypeDetected means a magic family matched; Event.Protocol says which
	EventTypeDetected EventType = iota
	// EventTypeDetectedNotMagic means a tag answered but no family matched
	EventTypeDetectedNotMagic
	// EventTypeNotDetected means no tag was seen within the budget
	EventTypeNotDetected
)

// String returns the event name
func (t EventType) String() string {
	switch t {
	case EventTypeDetected:
		return "detected"
	case EventTypeDetectedNotMagic:
		return "detected, not magic"
	case EventTypeNotDetected:
		return "not detected"
	default:
		return "unknown"
	}
}

// Event is delivered once per Start.
type Event struct {
	Type     EventType
	Protocol nfcmagic.Protocol
}

// Callback receives the scan outcome from the scan goroutine. It may call
// Stop and the data accessors.
type Callback func(Event)

// Scanner multiplexes the family detectors over one transceiver.
type Scanner struct {
	t         nfcmagic.Transceiver
	cancel    context.CancelFunc
	detectors []Detector
	opts      Options
	slix      slix.Record
	gen4      gen4.Data
	wg        sync.WaitGroup
	mu        syncutil.Mutex
	running   atomic.Bool
	loop      atomic.Int64 // goroutine id of the scan loop
}

// New creates a scanner with the built-in detectors registered.
func New(t nfcmagic.Transceiver, opts ...Option) *Scanner {
	s := &Scanner{t: t, opts: DefaultOptions()}
	for _, o := range opts {
		o(&s.opts)
	}
	s.gen4.Password = gen4.DefaultPassword
	s.detectors = []Detector{
		gen1aDetector{},
		gen4Detector{s: s},
		slixDetector{s: s},
	}
	return s
}

// RegisterDetector appends d to the priority list. It must be called
// before Start.
func (s *Scanner) RegisterDetector(d Detector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectors = append(s.detectors, d)
}

// SetGen4Password sets the password the Gen4 probe uses.
func (s *Scanner) SetGen4Password(p gen4.Password) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen4.Password = p
}

// Gen4Data returns a copy of what the last Gen4 match read
func (s *Scanner) Gen4Data() gen4.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen4.Copy()
}

// SlixData returns a copy of the record from the last SLIX match
func (s *Scanner) SlixData() slix.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slix.Copy()
}

// Start begins scanning in a goroutine and returns immediately.
func (s *Scanner) Start(cb Callback) error {
	if cb == nil {
		return nfcmagic.ErrInvalidParameter
	}
	if !s.running.CompareAndSwap(false, true) {
		return nfcmagic.ErrTransceiverBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	detectors := s.activeDetectors()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.scanLoop(ctx, detectors, cb)
	return nil
}

// Stop cancels a scan in progress and waits for it to end. A cancelled
// scan reports nothing. Stop is safe to call from the callback.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.loop.Load() != goid.Get() {
		s.wg.Wait()
	}
}

// activeDetectors filters the registry by Options.Protocols and by what
// the transceiver can do.
func (s *Scanner) activeDetectors() []Detector {
	var out []Detector
	for _, d := range s.detectors {
		if !s.protocolEnabled(d.Protocol()) {
			continue
		}
		if !supported(s.t, d) {
			nfcmagic.Debugf("scanner: skipping %s, transceiver lacks support", d.Protocol())
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Scanner) protocolEnabled(p nfcmagic.Protocol) bool {
	if len(s.opts.Protocols) == 0 {
		return true
	}
	for _, want := range s.opts.Protocols {
		if want == p {
			return true
		}
	}
	return false
}

func supported(t nfcmagic.Transceiver, d Detector) bool {
	if !nfcmagic.SupportsTech(t, d.Tech()) {
		return false
	}
	if req, ok := d.(CapabilityRequirer); ok {
		for _, c := range req.Requires() {
			if !nfcmagic.HasCapability(t, c) {
				return false
			}
		}
	}
	return true
}

func (s *Scanner) scanLoop(ctx context.Context, detectors []Detector, cb Callback) {
	s.loop.Store(goid.Get())
	defer s.wg.Done()
	defer s.running.Store(false)

	ev, ok := s.scan(ctx, detectors)
	if !ok {
		nfcmagic.Debugln("scanner: stopped")
		return
	}

	nfcmagic.Debugf("scanner: %s %s", ev.Type, ev.Protocol)
	cb(ev)
}

// scan runs passes over the detectors until one matches, a tag was seen
// on a full pass, or the budget runs out. ok is false when ctx ended.
func (s *Scanner) scan(ctx context.Context, detectors []Detector) (ev Event, ok bool) {
	deadline := time.Now().Add(s.opts.Timeout)

	for {
		present := false
		for _, d := range detectors {
			if ctx.Err() != nil {
				return Event{}, false
			}

			res, err := d.Detect(ctx, s.t)
			if err != nil {
				nfcmagic.Debugf("scanner: %s probe failed: %v", d.Protocol(), err)
				continue
			}
			if res.Detected {
				return Event{Type: EventTypeDetected, Protocol: d.Protocol()}, true
			}
			present = present || res.Present
		}

		if ctx.Err() != nil {
			return Event{}, false
		}
		if present {
			return Event{Type: EventTypeDetectedNotMagic}, true
		}
		if len(detectors) == 0 || !time.Now().Before(deadline) {
			return Event{Type: EventTypeNotDetected}, true
		}
	}
}
