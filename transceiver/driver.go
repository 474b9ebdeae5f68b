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

package transceiver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
	"github.com/petermattis/goid"
)

// Metrics are poll loop counters
type Metrics struct {
	PollCycles  int64 // Activation attempts
	PollErrors  int64 // Activations that failed for a reason other than an empty field
	TagsReady   int64 // Ready events delivered
	Recoveries  int64 // Successful link recoveries
	LastLatency time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithConfig replaces the default configuration
func WithConfig(cfg *Config) Option {
	return func(d *Driver) {
		d.cfg = cfg.withDefaults()
	}
}

// WithReopen lets recovery reopen the reader when a reset is not enough
func WithReopen(fn ReopenFunc) Option {
	return func(d *Driver) {
		d.reopen = fn
	}
}

type session struct {
	stopCh chan struct{}
	done   chan struct{}
	loop   atomic.Int64 // goroutine id of the poll loop
	once   sync.Once
}

// onLoop reports whether the caller is the poll loop goroutine, which is
// where callbacks run.
func (s *session) onLoop() bool {
	return s.loop.Load() == goid.Get()
}

func (s *session) stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *session) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Driver implements nfcmagic.Transceiver over a Link.
//
// Start runs a poll loop in its own goroutine: every PollInterval it tries to
// activate a tag and, after the guard time, hands the callback a ready event.
// A tag that stops answering activation produces one field lost event.
// Exchanges issued from the callback go straight to the link and are
// serialized with activation.
type Driver struct {
	link      Link
	cfg       *Config
	reopen    ReopenFunc
	trace     *nfcmagic.TraceBuffer
	sess      *session
	guard     time.Duration
	deadline  uint32
	tech      nfcmagic.Tech
	linkMu    syncutil.Mutex // guards link and trace
	stateMu   syncutil.Mutex // guards sess, guard, deadline, tech
	closed    atomic.Bool
	cycles    atomic.Int64
	errs      atomic.Int64
	ready     atomic.Int64
	recovered atomic.Int64
	latency   atomic.Int64
}

// New creates a driver over link
func New(link Link, opts ...Option) *Driver {
	d := &Driver{
		link:     link,
		cfg:      DefaultConfig(),
		tech:     nfcmagic.TechISO14443A,
		deadline: iso15693.FDTPollFC,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.trace = nfcmagic.NewTraceBuffer(link.String(), d.tech, d.cfg.TraceSize)
	return d
}

// Configure implements nfcmagic.Transceiver. Only the poller role is
// available on reader hardware.
func (d *Driver) Configure(mode nfcmagic.Mode, tech nfcmagic.Tech) error {
	if d.closed.Load() {
		return nfcmagic.ErrTransceiverClosed
	}
	if mode != nfcmagic.ModePoller {
		return fmt.Errorf("%w: %s mode", nfcmagic.ErrTechUnsupported, mode)
	}
	if !nfcmagic.SupportsTech(d, tech) {
		return fmt.Errorf("%w: %s on %s", nfcmagic.ErrTechUnsupported, tech, d.link)
	}

	if err := d.waitIdle(); err != nil {
		return err
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.sess != nil && !d.sess.finished() {
		return nfcmagic.ErrTransceiverBusy
	}

	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	if err := d.link.SetTech(tech); err != nil {
		return fmt.Errorf("set %s on %s: %w", tech, d.link, err)
	}
	d.tech = tech
	d.trace = nfcmagic.NewTraceBuffer(d.link.String(), tech, d.cfg.TraceSize)
	return nil
}

// SetGuardTime implements nfcmagic.Transceiver
func (d *Driver) SetGuardTime(guard time.Duration) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.guard = guard
}

// SetPollDeadline implements nfcmagic.Transceiver
func (d *Driver) SetPollDeadline(fc uint32) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.deadline = fc
}

// HasCapability implements nfcmagic.CapabilityChecker
func (d *Driver) HasCapability(c nfcmagic.Capability) bool {
	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	if c == nfcmagic.CapabilityBitFrames {
		if _, ok := d.link.(BitLink); !ok {
			return false
		}
	}
	return d.link.HasCapability(c)
}

func (d *Driver) timeout(fwt uint32) time.Duration {
	d.stateMu.Lock()
	if fwt == 0 {
		fwt = d.deadline
	}
	d.stateMu.Unlock()
	return nfcmagic.FCToDuration(fwt) + d.cfg.LinkLatency
}

// Exchange implements nfcmagic.Transceiver
func (d *Driver) Exchange(ctx context.Context, tx []byte, fwt uint32) ([]byte, error) {
	if d.closed.Load() {
		return nil, nfcmagic.ErrTransceiverClosed
	}
	timeout := d.timeout(fwt)

	d.linkMu.Lock()
	defer d.linkMu.Unlock()

	d.trace.RecordTX(tx, "exchange")
	rx, err := d.link.Transceive(ctx, tx, timeout)
	if err != nil {
		return nil, d.traceError(err)
	}
	d.trace.RecordRX(rx, "exchange")
	return rx, nil
}

// ExchangeBits implements nfcmagic.BitExchanger
func (d *Driver) ExchangeBits(
	ctx context.Context, tx []byte, txBits int, fwt uint32,
) (rx []byte, rxBits int, err error) {
	if d.closed.Load() {
		return nil, 0, nfcmagic.ErrTransceiverClosed
	}
	timeout := d.timeout(fwt)

	d.linkMu.Lock()
	defer d.linkMu.Unlock()

	bl, ok := d.link.(BitLink)
	if !ok || !d.link.HasCapability(nfcmagic.CapabilityBitFrames) {
		return nil, 0, fmt.Errorf("%w: short frames on %s", nfcmagic.ErrTechUnsupported, d.link)
	}

	d.trace.RecordTX(tx, fmt.Sprintf("%d bits", txBits))
	rx, rxBits, err = bl.TransceiveBits(ctx, tx, txBits, timeout)
	if err != nil {
		return nil, 0, d.traceError(err)
	}
	d.trace.RecordRX(rx, fmt.Sprintf("%d bits", rxBits))
	return rx, rxBits, nil
}

func (d *Driver) traceError(err error) error {
	if nfcmagic.IsTimeout(err) {
		d.trace.RecordTimeout(err.Error())
	}
	return d.trace.WrapError(err)
}

// Start implements nfcmagic.Transceiver. A previous session that was stopped
// from its own callback is waited for first.
func (d *Driver) Start(cb nfcmagic.Callback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", nfcmagic.ErrInvalidParameter)
	}
	if d.closed.Load() {
		return nfcmagic.ErrTransceiverClosed
	}
	if err := d.waitIdle(); err != nil {
		return err
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.sess != nil && !d.sess.finished() {
		return nfcmagic.ErrTransceiverBusy
	}

	s := &session{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	d.sess = s
	go d.pollLoop(s, cb)
	return nil
}

// waitIdle waits for a session that is already stopping to exit. A session
// that is still running makes it fail with ErrTransceiverBusy. It must not
// be reached from inside the callback.
func (d *Driver) waitIdle() error {
	d.stateMu.Lock()
	s := d.sess
	d.stateMu.Unlock()

	if s == nil || s.finished() {
		return nil
	}
	if !s.stopping() {
		return nfcmagic.ErrTransceiverBusy
	}
	<-s.done
	return nil
}

// Stop implements nfcmagic.Transceiver. It is safe to call repeatedly and
// from inside the callback; from anywhere else it waits for the poll loop
// to exit.
func (d *Driver) Stop() error {
	d.stateMu.Lock()
	s := d.sess
	d.stateMu.Unlock()
	if s == nil {
		return nil
	}

	s.stop()
	if !s.onLoop() {
		<-s.done
	}
	return nil
}

// Close stops any session and closes the link
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = d.Stop()

	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	if err := d.link.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.link, err)
	}
	return nil
}

// Metrics returns the poll loop counters
func (d *Driver) Metrics() Metrics {
	return Metrics{
		PollCycles:  d.cycles.Load(),
		PollErrors:  d.errs.Load(),
		TagsReady:   d.ready.Load(),
		Recoveries:  d.recovered.Load(),
		LastLatency: time.Duration(d.latency.Load()),
	}
}

// Trace returns the frames recorded since the last Configure
func (d *Driver) Trace() []nfcmagic.TraceEntry {
	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	return d.trace.Entries()
}

func (d *Driver) pollLoop(s *session, cb nfcmagic.Callback) {
	s.loop.Store(goid.Get())
	defer close(s.done)
	defer d.release()

	interval := d.cfg.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var present bool
	var failures int
	last := time.Now()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		cmd, err := d.poll(s, cb, &present)
		if cmd == nfcmagic.CommandStop {
			s.stop()
			return
		}
		if err != nil {
			failures++
		} else {
			failures = 0
		}

		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			slept := d.cfg.Recovery.DetectSleep(now.Sub(last), interval)
			last = now
			if slept || (d.cfg.Recovery.Enabled && failures >= d.cfg.Recovery.ErrorThreshold) {
				nfcmagic.Debugf("%s: recovering link (slept=%t, failures=%d)", d.link, slept, failures)
				d.recoverLink(s)
				failures = 0
			}
		}
	}
}

// poll runs one activation attempt and delivers at most one event. The
// returned error is set for reader failures, not for an empty field.
func (d *Driver) poll(s *session, cb nfcmagic.Callback, present *bool) (nfcmagic.Command, error) {
	d.cycles.Add(1)

	start := time.Now()
	err := d.activate()
	d.latency.Store(int64(time.Since(start)))

	if err != nil {
		var readerErr error
		if !nfcmagic.IsNotPresent(err) && !nfcmagic.IsTimeout(err) {
			d.errs.Add(1)
			readerErr = err
			nfcmagic.Debugf("%s: activation failed: %v", d.link, err)
		}
		if *present {
			*present = false
			return d.deliver(cb, nfcmagic.EventTypeFieldLost), readerErr
		}
		return nfcmagic.CommandContinue, readerErr
	}
	*present = true

	d.stateMu.Lock()
	guard := d.guard
	d.stateMu.Unlock()
	if guard > 0 {
		timer := time.NewTimer(guard)
		select {
		case <-s.stopCh:
			timer.Stop()
			return nfcmagic.CommandStop, nil
		case <-timer.C:
		}
	}

	d.ready.Add(1)
	cmd := d.deliver(cb, nfcmagic.EventTypePollerReady)
	d.release()
	return cmd, nil
}

func (d *Driver) deliver(cb nfcmagic.Callback, t nfcmagic.EventType) nfcmagic.Command {
	return cb(nfcmagic.Event{Type: t})
}

func (d *Driver) activate() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ActivateTimeout)
	defer cancel()

	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	return d.link.Activate(ctx)
}

func (d *Driver) release() {
	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	if err := d.link.Release(); err != nil {
		nfcmagic.Debugf("%s: release failed: %v", d.link, err)
	}
}

func (d *Driver) recoverLink(s *session) {
	tech := d.currentTech()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.linkMu.Lock()
	defer d.linkMu.Unlock()

	link, err := newRecoverer(d.cfg.Recovery, d.reopen).recover(ctx, d.link)
	if err != nil {
		nfcmagic.Debugf("%s: recovery failed: %v", d.link, err)
		return
	}
	if link != d.link {
		if err := link.SetTech(tech); err != nil {
			nfcmagic.Debugf("%s: set tech after reopen: %v", link, err)
		}
		d.link = link
	}
	d.recovered.Add(1)
}

func (d *Driver) currentTech() nfcmagic.Tech {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.tech
}

var (
	_ nfcmagic.Transceiver       = (*Driver)(nil)
	_ nfcmagic.BitExchanger      = (*Driver)(nil)
	_ nfcmagic.CapabilityChecker = (*Driver)(nil)
)
