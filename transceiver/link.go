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

// Package transceiver drives reader hardware as an nfcmagic.Transceiver.
//
// A Link is the minimal reader abstraction: select a tag, exchange raw
// frames, let go of it. Driver layers the poll loop, guard time, frame wait
// time accounting and wire tracing on top, so every reader backend only
// implements the Link methods.
package transceiver

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
)

// Link is a reader that can select one tag at a time and pass raw frames to it.
//
// Frames are sent verbatim: the link must not add or strip CRCs. Errors
// returned by Activate and Transceive should be *nfcmagic.ExchangeError so the
// caller can tell a silent tag from a broken reader.
type Link interface {
	// SetTech selects the air interface for the following activations
	SetTech(tech nfcmagic.Tech) error

	// Activate turns the field on and selects a tag. It returns a not-present
	// error when no tag answers.
	Activate(ctx context.Context) error

	// Transceive sends tx and waits up to timeout for the response
	Transceive(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error)

	// Release deselects the current tag
	Release() error

	// Close releases the reader
	Close() error

	// HasCapability reports an optional feature of the reader
	HasCapability(c nfcmagic.Capability) bool

	// String names the link for logs and traces
	String() string
}

// BitLink is a Link that can send short frames.
type BitLink interface {
	Link
	TransceiveBits(ctx context.Context, tx []byte, txBits int, timeout time.Duration) (rx []byte, rxBits int, err error)
}

// Resetter is implemented by links that can re-initialise the reader
// without reopening it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ReopenFunc opens a fresh link to the same reader
type ReopenFunc func() (Link, error)
