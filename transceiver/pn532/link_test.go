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

	"github.com/ZaparooProject/go-nfcmagic"
	testutil "github.com/ZaparooProject/go-nfcmagic/internal/testing"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimLink(t *testing.T, tag testutil.VirtualTag) (*Link, *testutil.VirtualPN532) {
	t.Helper()
	u, sim := newSimUART(t, tag)
	return NewLink(u), sim
}

// scripted answers InCommunicateThru with a fixed payload
type scripted struct {
	thru []byte
	err  error
}

func (s *scripted) Command(_ context.Context, cmd byte, _ []byte) ([]byte, error) {
	switch cmd {
	case CmdGetFirmwareVersion:
		return []byte{0x32, 0x01, 0x06, 0x07}, nil
	case CmdInListPassiveTarget:
		return []byte{0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0x01, 0x02, 0x03, 0x04}, nil
	case CmdInCommunicateThru:
		return s.thru, s.err
	default:
		return nil, nil
	}
}

func (*scripted) Close() error   { return nil }
func (*scripted) String() string { return "scripted" }

func TestLink_InitAndActivate(t *testing.T) {
	t.Parallel()

	link, sim := newSimLink(t, &testutil.VirtualPlainA{})
	require.NoError(t, link.Activate(context.Background()))

	assert.Equal(t, "PN532 v1.6", link.Firmware().String())
	target := link.Target()
	assert.Equal(t, testutil.SimTargetUID, target.UID)
	assert.Equal(t, [2]byte{0x00, 0x04}, target.ATQA)
	assert.Equal(t, byte(0x08), target.SAK)

	assert.Equal(t, byte(0x00), sim.Register(RegTxMode))
	assert.Equal(t, byte(0x00), sim.Register(RegRxMode))
	assert.Equal(t, []byte{
		CmdGetFirmwareVersion, CmdSAMConfiguration, CmdRFConfiguration,
		CmdInListPassiveTarget, CmdWriteRegister,
	}, sim.Commands())

	require.NoError(t, link.Release())
	require.NoError(t, link.Release())
	assert.Equal(t, byte(CmdInRelease), sim.Commands()[len(sim.Commands())-1])
}

func TestLink_ActivateEmptyField(t *testing.T) {
	t.Parallel()

	link, _ := newSimLink(t, nil)
	err := link.Activate(context.Background())
	assert.True(t, nfcmagic.IsNotPresent(err))

	_, err = link.Transceive(context.Background(), []byte{0x26}, time.Millisecond)
	assert.True(t, nfcmagic.IsNotPresent(err))
}

func TestLink_TransceiveRaw(t *testing.T) {
	t.Parallel()

	link, sim := newSimLink(t, testutil.NewVirtualGen4([4]byte{}))
	ctx := context.Background()
	require.NoError(t, link.Activate(ctx))

	req := iso14443a.AppendCRC([]byte{0xCF, 0x00, 0x00, 0x00, 0x00, 0xC6})
	rx, err := link.Transceive(ctx, req, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, iso14443a.AppendCRC(append([]byte(nil), testutil.DefaultGen4Config...)), rx)

	_, err = link.Transceive(ctx, req, 20*time.Millisecond)
	require.NoError(t, err)

	// One RFConfiguration from Init, one timeout change
	assert.Len(t, sim.RFConfigurations(), 2)
	assert.Equal(t, []byte{rfItemTimings, 0x00, 0x0B, TimeoutCode(20 * time.Millisecond)}, sim.RFConfigurations()[1])
}

func TestLink_TransceiveTimeout(t *testing.T) {
	t.Parallel()

	link, _ := newSimLink(t, testutil.NewVirtualGen4([4]byte{0x01, 0x02, 0x03, 0x04}))
	ctx := context.Background()
	require.NoError(t, link.Activate(ctx))

	req := iso14443a.AppendCRC([]byte{0xCF, 0x00, 0x00, 0x00, 0x00, 0xC6})
	_, err := link.Transceive(ctx, req, 5*time.Millisecond)
	assert.True(t, nfcmagic.IsTimeout(err))
}

func TestLink_TransceiveBits(t *testing.T) {
	t.Parallel()

	tag := &testutil.VirtualGen1a{}
	link, sim := newSimLink(t, tag)
	ctx := context.Background()
	require.NoError(t, link.Activate(ctx))

	hlta := iso14443a.HLTA()
	_, _, err := link.TransceiveBits(ctx, hlta, len(hlta)*8, 5*time.Millisecond)
	assert.True(t, nfcmagic.IsTimeout(err))

	rx, rxBits, err := link.TransceiveBits(ctx, []byte{0x40}, 7, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{iso14443a.ACK}, rx)
	assert.Equal(t, iso14443a.ACKBits, rxBits)
	assert.Equal(t, byte(0x07), sim.Register(RegBitFraming))

	rx, rxBits, err = link.TransceiveBits(ctx, []byte{0x43}, 8, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{iso14443a.ACK}, rx)
	assert.Equal(t, iso14443a.ACKBits, rxBits)
	assert.Equal(t, byte(0x00), sim.Register(RegBitFraming))
	assert.True(t, tag.Unlocked)

	_, _, err = link.TransceiveBits(ctx, []byte{0x40, 0x00}, 7, time.Millisecond)
	require.ErrorIs(t, err, nfcmagic.ErrInvalidParameter)
}

func TestLink_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status byte
		kind   nfcmagic.ErrorKind
	}{
		{name: "timeout", status: StatusTimeout, kind: nfcmagic.KindTimeout},
		{name: "crc", status: StatusCRC, kind: nfcmagic.KindProtocol},
		{name: "parity", status: StatusParity, kind: nfcmagic.KindProtocol},
		{name: "collision", status: StatusCollision, kind: nfcmagic.KindProtocol},
		{name: "released", status: StatusReleased, kind: nfcmagic.KindNotPresent},
		{name: "rf off", status: StatusRFNotActive, kind: nfcmagic.KindNotPresent},
		{name: "nad bit set", status: 0x40 | StatusTimeout, kind: nfcmagic.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			link := NewLink(&scripted{thru: []byte{tt.status}})
			require.NoError(t, link.Activate(context.Background()))
			_, err := link.Transceive(context.Background(), []byte{0x26}, time.Millisecond)
			assert.Equal(t, tt.kind, nfcmagic.KindOf(err))
		})
	}
}

func TestLink_CommanderFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("serial gone")
	link := NewLink(&scripted{err: cause})
	require.NoError(t, link.Activate(context.Background()))

	_, err := link.Transceive(context.Background(), []byte{0x26}, time.Millisecond)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, nfcmagic.KindNone, nfcmagic.KindOf(err))

	link = NewLink(&scripted{})
	require.NoError(t, link.Activate(context.Background()))
	_, err = link.Transceive(context.Background(), []byte{0x26}, time.Millisecond)
	require.ErrorIs(t, err, nfcmagic.ErrFrameTooShort)
}

func TestLink_Tech(t *testing.T) {
	t.Parallel()

	link := NewLink(&scripted{})
	require.NoError(t, link.SetTech(nfcmagic.TechISO14443A))
	require.ErrorIs(t, link.SetTech(nfcmagic.TechISO15693), nfcmagic.ErrTechUnsupported)

	assert.True(t, link.HasCapability(nfcmagic.CapabilityISO14443A))
	assert.True(t, link.HasCapability(nfcmagic.CapabilityBitFrames))
	assert.False(t, link.HasCapability(nfcmagic.CapabilityISO15693))
	assert.Equal(t, "pn532/scripted", link.String())
}

func TestLink_ResetReinitialises(t *testing.T) {
	t.Parallel()

	link, sim := newSimLink(t, nil)
	require.NoError(t, link.Reset(context.Background()))
	require.NoError(t, link.Reset(context.Background()))
	assert.Equal(t, 2, countCommand(sim.Commands(), CmdGetFirmwareVersion))
}

func countCommand(cmds []byte, cmd byte) int {
	n := 0
	for _, c := range cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

func TestTimeoutCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want byte
	}{
		{d: 0, want: 0x01},
		{d: 100 * time.Microsecond, want: 0x01},
		{d: 101 * time.Microsecond, want: 0x02},
		{d: 5 * time.Millisecond, want: 0x07},
		{d: 51200 * time.Microsecond, want: 0x0A},
		{d: time.Second, want: 0x0F},
		{d: 10 * time.Second, want: 0x10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeoutCode(tt.d), tt.d.String())
	}
}
