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
	"errors"
	"fmt"
	"sync"
	"time"
)

// SessionFunc runs once per bounded session, from inside the transceiver
// callback, with the tag ready for exchanges.
type SessionFunc func(ctx context.Context) error

// RunSession runs fn exactly once against the first tag the transceiver
// reports, blocking the caller until fn finishes or timeout elapses.
//
// The transceiver is configured as a poller for tech, started, and always
// stopped exactly once before RunSession returns, whether fn completed or
// the timeout fired. A timeout returns ErrSessionTimeout; otherwise the
// result of fn is returned.
func RunSession(ctx context.Context, t Transceiver, tech Tech, timeout time.Duration, fn SessionFunc) error {
	if t == nil || fn == nil {
		return fmt.Errorf("%w: nil transceiver or session func", ErrInvalidParameter)
	}
	if err := t.Configure(ModePoller, tech); err != nil {
		return fmt.Errorf("configure %s poller: %w", tech, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the callback never blocks on a caller that already gave up.
	done := make(chan error, 1)
	var once sync.Once

	cb := func(ev Event) Command {
		if ev.Type != EventTypePollerReady {
			return CommandContinue
		}
		once.Do(func() {
			done <- fn(sessionCtx)
		})
		return CommandStop
	}

	if err := t.Start(cb); err != nil {
		return fmt.Errorf("start %s session: %w", tech, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result error
	select {
	case result = <-done:
	case <-timer.C:
		result = ErrSessionTimeout
	case <-ctx.Done():
		result = ctx.Err()
	}

	// Unblock any exchange still in flight before stopping.
	cancel()
	if err := t.Stop(); err != nil && !errors.Is(err, ErrTransceiverClosed) {
		Debugf("session stop failed: %v", err)
	}
	return result
}
