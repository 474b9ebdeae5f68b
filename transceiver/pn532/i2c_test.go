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

package pn532

import (
	"context"
	"errors"
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-nfcmagic/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowReady reports not-ready for the first polls of every transaction
type slowReady struct {
	*testutil.VirtualPN532
	busy int
	left int
}

func (s *slowReady) Tx(w, r []byte) error {
	if len(w) > 0 {
		s.left = s.busy
	}
	if len(r) == 1 && s.left > 0 {
		s.left--
		r[0] = 0x00
		return nil
	}
	return s.VirtualPN532.Tx(w, r)
}

type brokenBus struct{}

func (brokenBus) Tx([]byte, []byte) error { return errors.New("bus error") }

func TestI2C_Command(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532(nil)
	c := NewI2C(sim, "sim")

	resp, err := c.Command(context.Background(), CmdGetFirmwareVersion, nil)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, resp)
	assert.Equal(t, "i2c:sim", c.String())
	assert.NoError(t, c.Close())
}

func TestI2C_WaitsForReady(t *testing.T) {
	t.Parallel()

	dev := &slowReady{VirtualPN532: testutil.NewVirtualPN532(nil), busy: 3}
	c := NewI2C(dev, "slow")

	resp, err := c.Command(context.Background(), CmdSAMConfiguration, []byte{0x01, 0x14, 0x01})

	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestI2C_RetransmitOnCorruptResponse(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532(nil)
	sim.CorruptResponses(1)
	c := NewI2C(sim, "sim")

	resp, err := c.Command(context.Background(), CmdGetFirmwareVersion, nil)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, resp)
}

func TestI2C_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no ack", func(t *testing.T) {
		t.Parallel()
		sim := testutil.NewVirtualPN532(nil)
		sim.DropACKs(1)
		_, err := NewI2C(sim, "sim").Command(context.Background(), CmdGetFirmwareVersion, nil)
		require.ErrorIs(t, err, ErrNoACK)
	})

	t.Run("bus error", func(t *testing.T) {
		t.Parallel()
		_, err := NewI2C(brokenBus{}, "broken").Command(context.Background(), CmdGetFirmwareVersion, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus error")
	})

	t.Run("response timeout", func(t *testing.T) {
		t.Parallel()
		dev := &slowReady{VirtualPN532: testutil.NewVirtualPN532(nil), busy: 1 << 20}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewI2C(dev, "slow").Command(ctx, CmdGetFirmwareVersion, nil)
		require.Error(t, err)
	})
}
