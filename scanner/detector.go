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

package scanner

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/gen1a"
	"github.com/ZaparooProject/go-nfcmagic/gen4"
	"github.com/ZaparooProject/go-nfcmagic/slix"
)

// Detector probes a tag for one magic family without modifying it.
type Detector interface {
	// Protocol returns the family this detector recognizes
	Protocol() nfcmagic.Protocol
	// Tech returns the air interface the probe runs on
	Tech() nfcmagic.Tech
	// Detect runs one bounded probe
	Detect(ctx context.Context, t nfcmagic.Transceiver) (nfcmagic.DetectResult, error)
}

// CapabilityRequirer is implemented by detectors that need more from the
// transceiver than their tech.
type CapabilityRequirer interface {
	Requires() []nfcmagic.Capability
}

// Options configures a Scanner
type Options struct {
	// Protocols restricts the families tried (empty = all registered)
	Protocols []nfcmagic.Protocol
	// Timeout is the overall budget before NotDetected is reported
	Timeout time.Duration
}

// DefaultOptions returns the scanner defaults
func DefaultOptions() Options {
	return Options{
		Timeout: 3 * time.Second,
	}
}

// Option modifies Options
type Option func(*Options)

// WithTimeout sets the overall scan budget
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithProtocols limits scanning to the given families
func WithProtocols(p ...nfcmagic.Protocol) Option {
	return func(o *Options) { o.Protocols = append([]nfcmagic.Protocol(nil), p...) }
}

// gen1aDetector runs the Gen1a backdoor probe.
type gen1aDetector struct{}

func (gen1aDetector) Protocol() nfcmagic.Protocol { return nfcmagic.ProtocolGen1 }
func (gen1aDetector) Tech() nfcmagic.Tech         { return nfcmagic.TechISO14443A }

func (gen1aDetector) Requires() []nfcmagic.Capability {
	return []nfcmagic.Capability{nfcmagic.CapabilityBitFrames}
}

func (gen1aDetector) Detect(ctx context.Context, t nfcmagic.Transceiver) (nfcmagic.DetectResult, error) {
	return gen1a.Detect(ctx, t)
}

// gen4Detector asks for the Gen4 config with the scanner's password and
// stores what it learns on the scanner.
type gen4Detector struct {
	s *Scanner
}

func (gen4Detector) Protocol() nfcmagic.Protocol { return nfcmagic.ProtocolGen4 }
func (gen4Detector) Tech() nfcmagic.Tech         { return nfcmagic.TechISO14443A }

func (d gen4Detector) Detect(ctx context.Context, t nfcmagic.Transceiver) (nfcmagic.DetectResult, error) {
	d.s.mu.Lock()
	data := gen4.Data{Password: d.s.gen4.Password}
	d.s.mu.Unlock()

	res, err := gen4.Detect(ctx, t, &data)
	if err == nil && res.Detected {
		d.s.mu.Lock()
		d.s.gen4 = data
		d.s.mu.Unlock()
	}
	return res, err
}

// slixDetector runs a SLIX inventory and stores the UID on the scanner.
type slixDetector struct {
	s *Scanner
}

func (slixDetector) Protocol() nfcmagic.Protocol { return nfcmagic.ProtocolSlix }
func (slixDetector) Tech() nfcmagic.Tech         { return nfcmagic.TechISO15693 }

func (d slixDetector) Detect(ctx context.Context, t nfcmagic.Transceiver) (nfcmagic.DetectResult, error) {
	var rec slix.Record
	ok, err := slix.Detect(ctx, t, &rec)
	if err != nil || !ok {
		return nfcmagic.DetectResult{}, err
	}

	d.s.mu.Lock()
	d.s.slix = rec
	d.s.mu.Unlock()
	return nfcmagic.DetectResult{Detected: true, Present: true}, nil
}
