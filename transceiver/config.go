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

import "time"

// RecoveryConfig configures link recovery after host sleep or repeated
// reader errors.
type RecoveryConfig struct {
	// Enabled turns recovery attempts on
	Enabled bool

	// TimeDiscontinuityThreshold is how far past the poll interval a tick may
	// arrive before the host is assumed to have slept. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// ErrorThreshold is the number of consecutive activation failures, other
	// than an empty field, that trigger recovery. Default: 3
	ErrorThreshold int

	// MaxAttempts is the number of recovery attempts per trigger. Default: 3
	MaxAttempts int

	// Backoff is the delay between recovery attempts
	Backoff time.Duration
}

// DefaultRecoveryConfig returns the default recovery settings
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		ErrorThreshold:             3,
		MaxAttempts:                3,
		Backoff:                    500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed time since the last poll means the
// host was suspended.
func (cfg RecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds Driver settings
type Config struct {
	Recovery RecoveryConfig
	// PollInterval is the delay between activation attempts
	PollInterval time.Duration
	// LinkLatency is added to every frame wait time to cover the host to
	// reader round trip
	LinkLatency time.Duration
	// ActivateTimeout bounds a single activation attempt
	ActivateTimeout time.Duration
	// TraceSize is the number of frames kept for error reports
	TraceSize int
}

// DefaultConfig returns the default driver configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:    50 * time.Millisecond,
		LinkLatency:     30 * time.Millisecond,
		ActivateTimeout: 500 * time.Millisecond,
		TraceSize:       16,
		Recovery:        DefaultRecoveryConfig(),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.ActivateTimeout <= 0 {
		out.ActivateTimeout = def.ActivateTimeout
	}
	if out.TraceSize <= 0 {
		out.TraceSize = def.TraceSize
	}
	if out.LinkLatency < 0 {
		out.LinkLatency = 0
	}
	return &out
}
