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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/scanner"
	"github.com/ZaparooProject/go-nfcmagic/slix"
)

// errNoTag means nothing suitable came into the field before the timeout
var errNoTag = errors.New("no tag found")

// slixRetryInterval spaces Detect attempts while waiting for a SLIX tag
const slixRetryInterval = 100 * time.Millisecond

func printLines(out io.Writer, lines []string) {
	for _, l := range lines {
		_, _ = fmt.Fprintf(out, "  %s\n", l)
	}
}

// runScan classifies the next tag and prints what the matching family
// detector read.
func runScan(ctx context.Context, t nfcmagic.Transceiver, cfg *config, out io.Writer) error {
	s := scanner.New(t, scanner.WithTimeout(cfg.timeout))
	s.SetGen4Password(cfg.gen4Password)

	events := make(chan scanner.Event, 1)
	if err := s.Start(func(ev scanner.Event) { events <- ev }); err != nil {
		return fmt.Errorf("start scanner: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Place a tag on the reader...")

	var ev scanner.Event
	select {
	case ev = <-events:
		s.Stop()
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}

	switch ev.Type {
	case scanner.EventTypeDetected:
		_, _ = fmt.Fprintf(out, "Magic tag: %s\n", ev.Protocol)
		switch ev.Protocol {
		case nfcmagic.ProtocolGen4:
			data := s.Gen4Data()
			printLines(out, data.Summary())
		case nfcmagic.ProtocolSlix:
			rec := s.SlixData()
			printLines(out, rec.Summary())
		default:
		}
		return nil
	case scanner.EventTypeDetectedNotMagic:
		_, _ = fmt.Fprintln(out, "Tag present, not a known magic family")
		return nil
	default:
		return errNoTag
	}
}

type slixResult struct {
	err error
	rec slix.Record
	ok  bool
}

func slixMode(op string) slix.Mode {
	if op == opWipe {
		return slix.ModeWipe
	}
	return slix.ModeGetInfo
}

// waitSlix repeats Detect until a SLIX tag answers or ctx ends.
func waitSlix(ctx context.Context, t nfcmagic.Transceiver, rec *slix.Record) error {
	for {
		ok, err := slix.Detect(ctx, t, rec)
		if ctx.Err() != nil {
			return errNoTag
		}
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errNoTag
		case <-time.After(slixRetryInterval):
		}
	}
}

// runSlix detects a SLIX tag, then runs one poller cycle in the mode
// chosen by cfg.op and prints the record.
func runSlix(ctx context.Context, t nfcmagic.Transceiver, cfg *config, out io.Writer) error {
	mode := slixMode(cfg.op)
	if !nfcmagic.SupportsTech(t, nfcmagic.TechISO15693) {
		return fmt.Errorf("slix %s on %s: %w: reader has no ISO15693 support",
			mode, cfg.backend, nfcmagic.ErrTechUnsupported)
	}
	_, _ = fmt.Fprintf(out, "Place a SLIX tag on the reader (%s)...\n", mode)

	wctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var rec slix.Record
	if err := waitSlix(wctx, t, &rec); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	nfcmagic.Debugf("slix %s: tag %s", mode, rec.UID)

	p := slix.New(t)
	p.SetData(rec)

	done := make(chan slixResult, 1)
	report := func(r slixResult) {
		select {
		case done <- r:
		default:
		}
	}
	cb := func(ev slix.Event) slix.Response {
		switch ev.Type {
		case slix.EventTypeRequestMode:
			return slix.SelectMode(mode)
		case slix.EventTypeSuccess:
			report(slixResult{ok: true, rec: p.Data()})
			return slix.Stop()
		case slix.EventTypeFail:
			report(slixResult{err: ev.Err})
			return slix.Stop()
		default:
			return slix.Continue()
		}
	}
	if err := p.Start(cb); err != nil {
		return fmt.Errorf("start slix poller: %w", err)
	}

	var res slixResult
	select {
	case res = <-done:
	case <-wctx.Done():
		_ = p.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("slix %s: %w", mode, errNoTag)
	}
	if err := p.Stop(); err != nil {
		return err
	}

	if !res.ok {
		return fmt.Errorf("slix %s failed: %w", mode, res.err)
	}
	if mode == slix.ModeWipe {
		_, _ = fmt.Fprintln(out, "Wipe complete")
	}
	printLines(out, res.rec.Summary())
	return nil
}
