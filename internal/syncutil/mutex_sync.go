//go:build !deadlock

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

// Package syncutil holds the locks shared by pollers, detectors and
// transceiver drivers. The default build uses plain sync locks; build with
// -tags=deadlock for lock-order and timeout reports.
package syncutil

import (
	"sync"
	"time"
)

// Mutex is a plain sync.Mutex in the default build.
//
//nolint:gocritic // embedded to expose Lock and Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex in the default build.
//
//nolint:gocritic // embedded to expose the lock methods
type RWMutex struct {
	sync.RWMutex
}

// DetectionEnabled reports whether locks are instrumented.
const DetectionEnabled = false

// SetLockTimeout is a no-op without the deadlock tag.
func SetLockTimeout(time.Duration) {}
