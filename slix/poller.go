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

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
)

// ErrModeNotSupported is the Fail cause when the callback picks a mode the
// poller does not implement.
var ErrModeNotSupported = errors.New("slix poller mode not supported")

// GuardTime is the field-on delay before the first request
const GuardTime = iso15693.GuardTimeUS * time.Microsecond

// Poller runs SLIX operations one step per transceiver ready event.
//
// Seed the poller with the record from Detect before Start. GetInfo also
// learns the UID from the system info response and Wipe runs an inventory
// first when no UID is known, so starting without a seed still works.
type Poller struct {
	t       nfcmagic.Transceiver
	ctx     context.Context
	cancel  context.CancelFunc // guarded by ctlMu
	cb      Callback
	ops     *Operations
	session string
	rec     Record
	cyc     cycle
	mu      syncutil.Mutex // held for a whole step
	ctlMu   syncutil.Mutex // taken before mu, never inside a step
	running atomic.Bool
}

// New creates a poller on top of t.
func New(t nfcmagic.Transceiver) *Poller {
	p := &Poller{t: t}
	p.ops = NewOperations(t, &p.rec)
	p.cyc.reset()
	return p
}

// SetData replaces the poller's record with a copy of rec.
func (p *Poller) SetData(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = rec
}

// Data returns a copy of the poller's record.
func (p *Poller) Data() Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Copy()
}

// State returns the current state machine position.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cyc.state
}

// Start configures the transceiver for ISO15693 and begins polling. Derived
// record fields are cleared; a UID seeded with SetData is kept. Starting a
// running poller fails with ErrTransceiverBusy and changes nothing.
func (p *Poller) Start(cb Callback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil slix poller callback", nfcmagic.ErrInvalidParameter)
	}
	if !p.running.CompareAndSwap(false, true) {
		return nfcmagic.ErrTransceiverBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := nfcmagic.NewSessionID()

	p.ctlMu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Lock()
	p.cb = cb
	p.cyc.reset()
	p.rec.clearDerived()
	p.session = session
	p.ctx = ctx
	p.mu.Unlock()
	p.ctlMu.Unlock()

	if err := p.t.Configure(nfcmagic.ModePoller, nfcmagic.TechISO15693); err != nil {
		p.abort()
		return fmt.Errorf("configure slix poller: %w", err)
	}
	p.t.SetGuardTime(GuardTime)
	p.t.SetPollDeadline(iso15693.FDTPollFC)

	if err := p.t.Start(p.onEvent); err != nil {
		p.abort()
		return err
	}
	nfcmagic.Debugf("[%s] slix poller started", session)
	return nil
}

// abort undoes a Start that did not get the transceiver running
func (p *Poller) abort() {
	p.ctlMu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.ctlMu.Unlock()
	p.running.Store(false)
}

// Stop ends polling. The context of an exchange in flight is cancelled
// before Stop waits for the transceiver, so a step blocked on the link
// returns early.
func (p *Poller) Stop() error {
	p.ctlMu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.ctlMu.Unlock()

	nfcmagic.Debugln("slix poller stopped")
	err := p.t.Stop()
	p.running.Store(false)
	if err != nil {
		return fmt.Errorf("stop slix poller: %w", err)
	}
	return nil
}

func (p *Poller) onEvent(ev nfcmagic.Event) nfcmagic.Command {
	if ev.Type != nfcmagic.EventTypePollerReady {
		return nfcmagic.CommandContinue
	}
	cmd := p.step()
	if cmd == nfcmagic.CommandStop {
		p.running.Store(false)
	}
	return cmd
}

// step runs the handler for the current state once.
func (p *Poller) step() nfcmagic.Command {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.cyc.state {
	case StateIdle:
		return p.handleIdle()
	case StateRequestMode:
		return p.handleRequestMode()
	case StateWipe:
		return p.handleWipe()
	case StateGetInfo:
		return p.handleGetInfo()
	case StateSuccess:
		return p.handleSuccess()
	case StateFail:
		return p.handleFail()
	default:
		p.cyc.transitionToFail(fmt.Errorf("invalid slix poller state %d", p.cyc.state))
		return nfcmagic.CommandContinue
	}
}

// emit calls the user callback without holding the lock so that it can
// call Data, SetData or Stop.
func (p *Poller) emit(ev Event) Response {
	cb := p.cb
	p.mu.Unlock()
	defer p.mu.Lock()
	return cb(ev)
}

func (p *Poller) handleIdle() nfcmagic.Command {
	p.cyc.currentBlock = 0
	p.cyc.state = StateRequestMode
	return p.emit(Event{Type: EventTypeCardDetected}).Command
}

func (p *Poller) handleRequestMode() nfcmagic.Command {
	resp := p.emit(Event{Type: EventTypeRequestMode})
	p.cyc.mode = resp.Mode

	switch resp.Mode {
	case ModeWipe:
		if p.rec.UID.IsZero() {
			if err := p.ops.Inventory(p.ctx); err != nil {
				nfcmagic.Debugf("[%s] slix wipe: inventory failed: %v", p.session, err)
				p.cyc.transitionToFail(err)
				return resp.Command
			}
		}
		p.cyc.state = StateWipe
	case ModeGetInfo:
		p.cyc.state = StateGetInfo
	default:
		p.cyc.transitionToFail(fmt.Errorf("%w: %s", ErrModeNotSupported, resp.Mode))
	}

	nfcmagic.Debugf("[%s] slix mode %s -> %s", p.session, resp.Mode, p.cyc.state)
	return resp.Command
}

// handleWipe writes one zero block per step. A failed write is taken as
// the end of the tag's memory and ends the wipe successfully.
func (p *Poller) handleWipe() nfcmagic.Command {
	if p.cyc.currentBlock >= TotalBlocks {
		p.cyc.transitionToSuccess()
		return nfcmagic.CommandContinue
	}

	block := p.cyc.currentBlock
	if err := p.ops.WriteBlock(p.ctx, uint8(block), [BlockSize]byte{}); err != nil {
		nfcmagic.Debugf("[%s] slix wipe: block %d write failed, treating as end of memory: %v",
			p.session, block, err)
		p.cyc.transitionToSuccess()
		return nfcmagic.CommandContinue
	}

	p.cyc.currentBlock++
	if p.cyc.currentBlock >= TotalBlocks {
		p.cyc.transitionToSuccess()
	}
	return nfcmagic.CommandContinue
}

// handleGetInfo reads everything in one step. Only the signature read may
// fail without failing the cycle.
func (p *Poller) handleGetInfo() nfcmagic.Command {
	p.rec.clearDerived()

	steps := []struct {
		run  func(context.Context) error
		name string
	}{
		{name: "get system info", run: p.ops.GetSystemInfo},
		{name: "select", run: p.ops.Select},
		{name: "get nxp system info", run: p.ops.GetNXPSystemInfo},
	}
	for _, s := range steps {
		if err := s.run(p.ctx); err != nil {
			nfcmagic.Debugf("[%s] slix get info: %s failed: %v", p.session, s.name, err)
			p.cyc.transitionToFail(err)
			return nfcmagic.CommandContinue
		}
	}

	p.rec.Type = DeriveType(p.rec.UID)
	if p.rec.Type == TypeSlix2 {
		if err := p.ops.ReadSignature(p.ctx); err != nil {
			nfcmagic.Debugf("[%s] slix get info: signature not read: %v", p.session, err)
		}
	}

	p.cyc.transitionToSuccess()
	return nfcmagic.CommandContinue
}

func (p *Poller) handleSuccess() nfcmagic.Command {
	p.cyc.transitionToIdle()
	return p.emit(Event{Type: EventTypeSuccess}).Command
}

func (p *Poller) handleFail() nfcmagic.Command {
	err := p.cyc.err
	p.cyc.transitionToIdle()
	return p.emit(Event{Type: EventTypeFail, Err: err}).Command
}
