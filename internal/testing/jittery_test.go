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
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteSource returns its data once and then reports nothing pending
type byteSource struct {
	bytes.Buffer
}

func (b *byteSource) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	return b.Buffer.Read(p) //nolint:wrapcheck // test helper
}

func readAll(t *testing.T, port *JitteryPort, want int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < want && time.Now().Before(deadline) {
		n, err := port.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)
	}
	return out
}

func TestJitteryPort_FragmentsWithoutLoss(t *testing.T) {
	t.Parallel()

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	src := &byteSource{}
	src.Write(data)

	port := NewJitteryPort(src, JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 42})
	got := readAll(t, port, len(data))

	assert.Equal(t, data, got)
	assert.Equal(t, len(data), port.Delivered())
}

func TestJitteryPort_StallLimitsFirstChunk(t *testing.T) {
	t.Parallel()

	src := &byteSource{}
	src.Write(bytes.Repeat([]byte{0xAA}, 20))

	port := NewJitteryPort(src, JitterConfig{StallAfterBytes: 5, StallDuration: time.Millisecond, Seed: 1})
	buf := make([]byte, 64)

	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rest := readAll(t, port, 15)
	assert.Len(t, rest, 15)
}

func TestJitteryPort_EmptyRead(t *testing.T) {
	t.Parallel()

	port := NewJitteryPort(&byteSource{}, JitterConfig{Seed: 7})
	n, err := port.Read(make([]byte, 8))

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJitteryPort_ResetAndClose(t *testing.T) {
	t.Parallel()

	src := &byteSource{}
	src.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	port := NewJitteryPort(src, JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 3})

	buf := make([]byte, 1)
	_, err := port.Read(buf)
	require.NoError(t, err)
	require.NoError(t, port.ResetInputBuffer())
	require.NoError(t, port.Drain())

	n, err := port.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, port.Close())
	_, err = port.Read(buf)
	require.ErrorIs(t, err, io.ErrClosedPipe)
	_, err = port.Write([]byte{0x00})
	require.ErrorIs(t, err, io.ErrClosedPipe)
}
