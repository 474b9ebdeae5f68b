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
	"errors"
	"sync"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
)

var errLinkClosed = errors.New("virtual link closed")

// VirtualLink is a reader link with a VirtualTag in its field. It satisfies
// transceiver.BitLink and transceiver.Resetter.
type VirtualLink struct {
	tag         VirtualTag
	caps        map[nfcmagic.Capability]bool
	activateErr error
	resetErr    error
	timeouts    []time.Duration
	mu          sync.Mutex
	tech        nfcmagic.Tech
	activations int
	releases    int
	resets      int
	active      bool
	closed      bool
}

// NewVirtualLink creates a link with tag in the field (nil for none)
func NewVirtualLink(tag VirtualTag) *VirtualLink {
	return &VirtualLink{tag: tag}
}

// SetTag replaces the tag in the field
func (l *VirtualLink) SetTag(tag VirtualTag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tag = tag
	l.active = false
}

// SetCapabilities restricts the reported capabilities
func (l *VirtualLink) SetCapabilities(caps ...nfcmagic.Capability) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.caps = make(map[nfcmagic.Capability]bool, len(caps))
	for _, c := range caps {
		l.caps[c] = true
	}
}

// SetActivateError makes every activation fail with err (nil clears it)
func (l *VirtualLink) SetActivateError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activateErr = err
}

// SetResetError makes Reset fail with err (nil clears it)
func (l *VirtualLink) SetResetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetErr = err
}

// SetTech implements transceiver.Link
func (l *VirtualLink) SetTech(tech nfcmagic.Tech) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.caps != nil {
		if tech == nfcmagic.TechISO15693 && !l.caps[nfcmagic.CapabilityISO15693] {
			return nfcmagic.ErrTechUnsupported
		}
		if tech == nfcmagic.TechISO14443A && !l.caps[nfcmagic.CapabilityISO14443A] {
			return nfcmagic.ErrTechUnsupported
		}
	}
	l.tech = tech
	return nil
}

// Activate implements transceiver.Link
func (l *VirtualLink) Activate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activations++
	switch {
	case l.closed:
		return errLinkClosed
	case l.activateErr != nil:
		return l.activateErr
	case ctx.Err() != nil:
		return nfcmagic.NewTimeoutError("activate")
	case l.tag == nil || l.tag.Tech() != l.tech:
		return nfcmagic.NewNotPresentError("activate")
	}
	l.active = true
	return nil
}

// Transceive implements transceiver.Link
func (l *VirtualLink) Transceive(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeouts = append(l.timeouts, timeout)
	if err := l.readyLocked(ctx); err != nil {
		return nil, err
	}
	return l.tag.Handle(tx)
}

// TransceiveBits implements transceiver.BitLink
func (l *VirtualLink) TransceiveBits(
	ctx context.Context, tx []byte, txBits int, timeout time.Duration,
) (rx []byte, rxBits int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeouts = append(l.timeouts, timeout)
	if err := l.readyLocked(ctx); err != nil {
		return nil, 0, err
	}
	bt, ok := l.tag.(BitTag)
	if !ok {
		return nil, 0, nfcmagic.NewTimeoutError("transceive bits")
	}
	return bt.HandleBits(tx, txBits)
}

func (l *VirtualLink) readyLocked(ctx context.Context) error {
	switch {
	case l.closed:
		return errLinkClosed
	case ctx.Err() != nil:
		return nfcmagic.NewTimeoutError("transceive")
	case !l.active || l.tag == nil:
		return nfcmagic.NewNotPresentError("transceive")
	}
	return nil
}

// Release implements transceiver.Link
func (l *VirtualLink) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	l.active = false
	return nil
}

// Close implements transceiver.Link
func (l *VirtualLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Reset implements transceiver.Resetter
func (l *VirtualLink) Reset(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	return l.resetErr
}

// HasCapability implements transceiver.Link
func (l *VirtualLink) HasCapability(c nfcmagic.Capability) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.caps != nil {
		return l.caps[c]
	}
	return true
}

func (*VirtualLink) String() string {
	return "virtual"
}

// Activations returns the number of activation attempts
func (l *VirtualLink) Activations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activations
}

// Releases returns the number of Release calls
func (l *VirtualLink) Releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}

// Resets returns the number of Reset calls
func (l *VirtualLink) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

// Closed reports whether Close was called
func (l *VirtualLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Timeouts returns the timeout passed to each exchange
func (l *VirtualLink) Timeouts() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.timeouts...)
}
