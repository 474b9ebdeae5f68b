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
	"testing"

	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip writes one command and returns the ACK and response frames.
func roundTrip(t *testing.T, sim *VirtualPN532, cmd byte, args ...byte) (ack, resp frame.Frame) {
	t.Helper()

	req, err := frame.BuildCommand(cmd, args)
	require.NoError(t, err)
	_, err = sim.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := sim.Read(buf)
	require.NoError(t, err)
	out := buf[:n]

	ack, used, err := frame.Decode(out)
	require.NoError(t, err)
	resp, _, err = frame.Decode(out[used:])
	require.NoError(t, err)
	return ack, resp
}

func TestVirtualPN532_FirmwareVersion(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(nil)
	ack, resp := roundTrip(t, sim, pnGetFirmwareVersion)

	assert.Equal(t, frame.KindACK, ack.Kind)
	assert.Equal(t, byte(frame.PN532ToHost), resp.TFI)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, resp.Data)
	assert.Equal(t, []byte{pnGetFirmwareVersion}, sim.Commands())
}

func TestVirtualPN532_WakeUpPreamble(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(nil)
	req, err := frame.BuildCommand(pnSAMConfiguration, []byte{0x01})
	require.NoError(t, err)

	_, err = sim.Write(append([]byte{0x55, 0x00, 0x00, 0x00}, req...))
	require.NoError(t, err)
	assert.Equal(t, []byte{pnSAMConfiguration}, sim.Commands())
}

func TestVirtualPN532_SplitWrites(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(nil)
	req, err := frame.BuildCommand(pnGetFirmwareVersion, nil)
	require.NoError(t, err)

	for _, b := range req {
		_, err := sim.Write([]byte{b})
		require.NoError(t, err)
	}
	assert.True(t, sim.Pending())
	assert.Equal(t, []byte{pnGetFirmwareVersion}, sim.Commands())
}

func TestVirtualPN532_ListTarget(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(&VirtualPlainA{})
	_, resp := roundTrip(t, sim, pnInListPassiveTarget, 0x01, 0x00)

	want := append([]byte{pnInListPassiveTarget + 1, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04}, SimTargetUID...)
	assert.Equal(t, want, resp.Data)

	sim.SetTag(NewVirtualSlix(TestSlix2UID, 28))
	_, resp = roundTrip(t, sim, pnInListPassiveTarget, 0x01, 0x00)
	assert.Equal(t, []byte{pnInListPassiveTarget + 1, 0x00}, resp.Data)
}

func TestVirtualPN532_CommunicateRawGen4(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(NewVirtualGen4([4]byte{}))
	roundTrip(t, sim, pnInListPassiveTarget, 0x01, 0x00)
	roundTrip(t, sim, pnWriteRegister, 0x63, 0x02, 0x00, 0x63, 0x03, 0x00)

	req := iso14443a.AppendCRC([]byte{0xCF, 0x00, 0x00, 0x00, 0x00, 0xC6})
	_, resp := roundTrip(t, sim, pnInCommunicateThru, req...)

	require.Len(t, resp.Data, 2+len(DefaultGen4Config)+2)
	assert.Equal(t, byte(pnStatusOK), resp.Data[1])
	assert.True(t, iso14443a.CheckCRC(resp.Data[2:]))
}

func TestVirtualPN532_CommunicateShortFrame(t *testing.T) {
	t.Parallel()

	tag := &VirtualGen1a{}
	sim := NewVirtualPN532(tag)
	roundTrip(t, sim, pnInListPassiveTarget, 0x01, 0x00)
	roundTrip(t, sim, pnWriteRegister, 0x63, 0x02, 0x00, 0x63, 0x03, 0x00)

	_, resp := roundTrip(t, sim, pnInCommunicateThru, iso14443a.HLTA()...)
	assert.Equal(t, []byte{pnInCommunicateThru + 1, pnStatusTimeout}, resp.Data)

	roundTrip(t, sim, pnWriteRegister, 0x63, 0x3D, 0x07)
	_, resp = roundTrip(t, sim, pnInCommunicateThru, 0x40)
	assert.Equal(t, []byte{pnInCommunicateThru + 1, pnStatusOK, iso14443a.ACK}, resp.Data)
	assert.Equal(t, byte(iso14443a.ACKBits), sim.Register(regControl))
	assert.True(t, tag.Unlocked)
}

func TestVirtualPN532_NoTarget(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(&VirtualPlainA{})
	_, resp := roundTrip(t, sim, pnInCommunicateThru, 0x26)
	assert.Equal(t, []byte{pnInCommunicateThru + 1, pnStatusCommand}, resp.Data)
}

func TestVirtualPN532_Faults(t *testing.T) {
	t.Parallel()

	t.Run("application error", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532(nil)
		sim.FailCommand(pnSAMConfiguration)
		_, resp := roundTrip(t, sim, pnSAMConfiguration, 0x01)
		assert.Equal(t, frame.KindError, resp.Kind)
	})

	t.Run("unknown command", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532(nil)
		_, resp := roundTrip(t, sim, 0x60)
		assert.Equal(t, frame.KindError, resp.Kind)
	})

	t.Run("corrupt then retransmit", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532(nil)
		sim.CorruptResponses(1)

		req, err := frame.BuildCommand(pnGetFirmwareVersion, nil)
		require.NoError(t, err)
		_, err = sim.Write(req)
		require.NoError(t, err)

		buf := make([]byte, 64)
		n, _ := sim.Read(buf)
		_, used, err := frame.Decode(buf[:n])
		require.NoError(t, err)
		_, _, err = frame.Decode(buf[used:n])
		require.ErrorIs(t, err, frame.ErrDataChecksum)

		_, err = sim.Write(frame.NACK)
		require.NoError(t, err)
		n, _ = sim.Read(buf)
		resp, _, err := frame.Decode(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, byte(pnGetFirmwareVersion+1), resp.Data[0])
	})

	t.Run("dropped command", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualPN532(nil)
		sim.DropACKs(1)
		req, err := frame.BuildCommand(pnGetFirmwareVersion, nil)
		require.NoError(t, err)
		_, err = sim.Write(req)
		require.NoError(t, err)
		assert.False(t, sim.Pending())
		assert.Empty(t, sim.Commands())
	})
}

func TestVirtualPN532_I2CTransactions(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532(nil)
	status := make([]byte, 1)

	require.NoError(t, sim.Tx(nil, status))
	assert.Equal(t, byte(0x00), status[0])

	req, err := frame.BuildCommand(pnGetFirmwareVersion, nil)
	require.NoError(t, err)
	require.NoError(t, sim.Tx(req, nil))

	require.NoError(t, sim.Tx(nil, status))
	assert.Equal(t, byte(0x01), status[0])

	ack := make([]byte, 1+len(frame.ACK))
	require.NoError(t, sim.Tx(nil, ack))
	assert.Equal(t, frame.ACK, ack[1:])

	resp := make([]byte, 1+64)
	require.NoError(t, sim.Tx(nil, resp))
	f, _, err := frame.Decode(resp[1:])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, f.Data)
	assert.False(t, sim.Pending())
}
