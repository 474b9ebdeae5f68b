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
	"errors"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
)

var errNoRecovery = errors.New("link cannot be reset or reopened")

// recoverer brings a link back after sleep or a run of reader errors:
// first a soft reset through Resetter, then a full reopen when a
// ReopenFunc is set.
type recoverer struct {
	reopen      ReopenFunc
	backoff     time.Duration
	maxAttempts int
}

func newRecoverer(cfg RecoveryConfig, reopen ReopenFunc) *recoverer {
	r := &recoverer{
		reopen:      reopen,
		backoff:     cfg.Backoff,
		maxAttempts: cfg.MaxAttempts,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 3
	}
	if r.backoff <= 0 {
		r.backoff = 500 * time.Millisecond
	}
	return r
}

// recover returns the link to use from now on. On failure the returned
// link is the one passed in.
func (r *recoverer) recover(ctx context.Context, link Link) (Link, error) {
	lastErr := errNoRecovery

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return link, ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if resetter, ok := link.(Resetter); ok {
			err := resetter.Reset(ctx)
			if err == nil {
				nfcmagic.Debugf("%s: recovered with reset", link)
				return link, nil
			}
			lastErr = err
		}

		if r.reopen != nil {
			_ = link.Close()
			fresh, err := r.reopen()
			if err == nil {
				nfcmagic.Debugf("%s: recovered by reopening", fresh)
				return fresh, nil
			}
			lastErr = err
		}

		if r.reopen == nil {
			if _, ok := link.(Resetter); !ok {
				break
			}
		}
	}
	return link, lastErr
}
