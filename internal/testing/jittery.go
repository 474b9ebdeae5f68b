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
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

// JitterConfig configures a JitteryPort.
type JitterConfig struct {
	MaxLatency       time.Duration
	StallDuration    time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	Seed             uint64
	FragmentReads    bool
}

// DefaultJitterConfig fragments reads and adds up to 2ms of latency
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryPort wraps a backend the way a USB serial bridge delivers it:
// reads arrive late, in fragments, sometimes after a stall. It also has the
// serial port methods a UART commander calls, so a simulator can stand in
// for the real port.
type JitteryPort struct {
	backend   io.ReadWriter
	rng       *rand.Rand
	buf       []byte
	config    JitterConfig
	mu        sync.Mutex
	delivered int
	stalled   bool
	closed    bool
}

// NewJitteryPort wraps backend
func NewJitteryPort(backend io.ReadWriter, config JitterConfig) *JitteryPort {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryPort{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test jitter
	}
}

// Write passes through unchanged
func (j *JitteryPort) Write(p []byte) (int, error) {
	if j.isClosed() {
		return 0, io.ErrClosedPipe
	}
	return j.backend.Write(p) //nolint:wrapcheck // pass-through
}

// Read returns buffered backend data in random fragments. An empty read
// sleeps briefly, standing in for the port's read timeout.
func (j *JitteryPort) Read(p []byte) (int, error) {
	if j.isClosed() {
		return 0, io.ErrClosedPipe
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.buf) == 0 {
		tmp := make([]byte, 512)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			return 0, nil
		}
		j.buf = append(j.buf, tmp[:n]...)
	}

	n := min(len(j.buf), len(p))
	if j.config.StallAfterBytes > 0 && !j.stalled {
		if j.delivered >= j.config.StallAfterBytes {
			j.stalled = true
			time.Sleep(j.config.StallDuration)
		} else {
			n = min(n, j.config.StallAfterBytes-j.delivered)
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(p, j.buf[:n])
	j.buf = j.buf[n:]
	j.delivered += n
	return n, nil
}

// Drain is a no-op; writes reach the backend synchronously
func (*JitteryPort) Drain() error {
	return nil
}

// ResetInputBuffer drops data read from the backend but not yet delivered
func (j *JitteryPort) ResetInputBuffer() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf = j.buf[:0]
	return nil
}

// Close makes further reads and writes fail
func (j *JitteryPort) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

func (j *JitteryPort) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

// Delivered returns the number of bytes handed to readers
func (j *JitteryPort) Delivered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.delivered
}
