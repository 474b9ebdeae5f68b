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

package slix

import (
	"context"
	"testing"

	"github.com/ZaparooProject/go-nfcmagic"
	testutil "github.com/ZaparooProject/go-nfcmagic/internal/testing"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOps(t *testing.T, tag *testutil.VirtualSlix, rec *Record) (*Operations, *testutil.SimTransceiver) {
	t.Helper()
	sim := testutil.NewSimTransceiver(tag)
	require.NoError(t, sim.Configure(nfcmagic.ModePoller, nfcmagic.TechISO15693))
	return NewOperations(sim, rec), sim
}

func TestOperations_InventorySeedsUID(t *testing.T) {
	t.Parallel()

	var rec Record
	ops, sim := newTestOps(t, testutil.NewVirtualSlix(testutil.TestSlix2UID, 32), &rec)

	require.NoError(t, ops.Inventory(context.Background()))
	assert.Equal(t, testutil.TestSlix2UID, rec.UID)

	log := sim.Log()
	require.Len(t, log, 1)
	assert.Equal(t, iso15693.InventoryRequest(), log[0].TX)
	assert.Equal(t, uint32(MaxFWT), log[0].FWT)
}

func TestOperations_InventoryUIDMismatch(t *testing.T) {
	t.Parallel()

	rec := Record{UID: testutil.TestSlixUID}
	ops, _ := newTestOps(t, testutil.NewVirtualSlix(testutil.TestSlix2UID, 32), &rec)

	err := ops.Inventory(context.Background())
	require.ErrorIs(t, err, nfcmagic.ErrUIDMismatch)
	assert.True(t, nfcmagic.IsProtocol(err))
	assert.Equal(t, testutil.TestSlixUID, rec.UID)
}

func TestOperations_SelectIsAddressed(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 32)
	rec := Record{UID: testutil.TestSlix2UID}
	ops, sim := newTestOps(t, tag, &rec)

	require.NoError(t, ops.Select(context.Background()))
	assert.True(t, tag.Selected)

	tx := sim.Log()[0].TX
	assert.Equal(t, byte(iso15693.FlagDataRateHigh|iso15693.FlagAddressed), tx[0])
	assert.Equal(t, byte(iso15693.CmdSelect), tx[1])
	assert.Equal(t, testutil.TestSlix2UID[:], tx[2:10])
}

func TestOperations_AddressedWithoutUID(t *testing.T) {
	t.Parallel()

	var rec Record
	ops, sim := newTestOps(t, testutil.NewVirtualSlix(testutil.TestSlix2UID, 32), &rec)
	ctx := context.Background()

	for name, run := range map[string]func(context.Context) error{
		"select":         ops.Select,
		"nxp info":       ops.GetNXPSystemInfo,
		"read signature": ops.ReadSignature,
		"write block": func(ctx context.Context) error {
			return ops.WriteBlock(ctx, 0, [BlockSize]byte{})
		},
	} {
		err := run(ctx)
		require.ErrorIs(t, err, nfcmagic.ErrInvalidParameter, name)
		assert.True(t, nfcmagic.IsProtocol(err), name)
	}
	assert.Empty(t, sim.Log())
}

func TestOperations_GetSystemInfo(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 80)
	tag.AFI = 0x3C
	var rec Record
	ops, sim := newTestOps(t, tag, &rec)

	require.NoError(t, ops.GetSystemInfo(context.Background()))

	assert.Equal(t, testutil.TestSlix2UID, rec.UID)
	assert.Equal(t, uint16(80), rec.ISOSystemInfo.BlockCount)
	assert.Equal(t, byte(4), rec.ISOSystemInfo.BlockSize)
	assert.Equal(t, byte(0x3C), rec.ISOSystemInfo.AFI)
	assert.Equal(t, byte(0x01), rec.ISOSystemInfo.ICRef)

	// unaddressed
	assert.Equal(t, []byte{iso15693.FlagDataRateHigh, iso15693.CmdGetSystemInfo}, sim.Log()[0].TX[:2])
	assert.Len(t, sim.Log()[0].TX, 2+iso15693.CRCLength)
}

func TestOperations_GetNXPSystemInfo(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 32)
	rec := Record{UID: testutil.TestSlix2UID}
	ops, sim := newTestOps(t, tag, &rec)

	require.NoError(t, ops.GetNXPSystemInfo(context.Background()))

	assert.Equal(t, VendorInfo{
		FeatureFlags:        testutil.TestFeatureFlags,
		ProtectionPointer:   0x10,
		ProtectionCondition: 0x02,
		LockPPL:             true,
	}, rec.VendorInfo)
	assert.Equal(t, ISOSettings{LockAFI: true}, rec.ISOSettings)

	tx := sim.Log()[0].TX
	assert.Equal(t, []byte{0x22, iso15693.CmdNXPGetSystemInfo, iso15693.ManufacturerNXP}, tx[:3])
}

func TestOperations_GetNXPSystemInfoLength(t *testing.T) {
	t.Parallel()

	rec := Record{UID: testutil.TestSlix2UID}
	ops, sim := newTestOps(t, testutil.NewVirtualSlix(testutil.TestSlix2UID, 32), &rec)
	sim.SetOverride(func([]byte) (testutil.Reply, bool) {
		return testutil.Reply{Data: iso15693.AppendCRC([]byte{0x00, 0x01, 0x02, 0x03})}, true
	})

	err := ops.GetNXPSystemInfo(context.Background())
	require.ErrorIs(t, err, nfcmagic.ErrUnexpectedLength)
	assert.True(t, nfcmagic.IsProtocol(err))
	assert.Equal(t, VendorInfo{}, rec.VendorInfo)
}

func TestOperations_ReadSignature(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 32)
	rec := Record{UID: testutil.TestSlix2UID}
	ops, sim := newTestOps(t, tag, &rec)

	require.NoError(t, ops.ReadSignature(context.Background()))
	assert.True(t, rec.SignatureRead)
	assert.Equal(t, tag.Signature, rec.Signature)
	assert.Equal(t, uint32(SignatureFWT), sim.Log()[0].FWT)
}

func TestOperations_WriteBlock(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 4)
	rec := Record{UID: testutil.TestSlix2UID}
	ops, sim := newTestOps(t, tag, &rec)

	require.NoError(t, ops.WriteBlock(context.Background(), 2, [BlockSize]byte{1, 2, 3, 4}))
	assert.Equal(t, [4]byte{1, 2, 3, 4}, tag.Blocks[2])

	tx := sim.Log()[0].TX
	assert.Equal(t, byte(iso15693.CmdWriteBlock), tx[1])
	assert.Equal(t, []byte{0x02, 1, 2, 3, 4}, tx[10:15])

	err := ops.WriteBlock(context.Background(), 4, [BlockSize]byte{})
	require.ErrorIs(t, err, nfcmagic.ErrCardError)
	assert.True(t, nfcmagic.IsProtocol(err))
}

func TestOperations_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check func(error) bool
		reply testutil.Reply
		name  string
	}{
		{
			name:  "silence is a timeout",
			reply: testutil.Reply{Err: nfcmagic.NewTimeoutError("exchange")},
			check: nfcmagic.IsTimeout,
		},
		{
			name:  "tag gone",
			reply: testutil.Reply{Err: nfcmagic.NewNotPresentError("exchange")},
			check: nfcmagic.IsNotPresent,
		},
		{
			name:  "bad crc",
			reply: testutil.Reply{Data: []byte{0x00, 0x12, 0x34}},
			check: nfcmagic.IsProtocol,
		},
		{
			name:  "single byte",
			reply: testutil.Reply{Data: []byte{0x00}},
			check: nfcmagic.IsProtocol,
		},
		{
			name:  "card error flag",
			reply: testutil.Reply{Data: iso15693.AppendCRC([]byte{iso15693.ResponseFlagError, 0x12})},
			check: nfcmagic.IsProtocol,
		},
		{
			name:  "unclassified transport failure",
			reply: testutil.Reply{Err: assert.AnError},
			check: nfcmagic.IsProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := Record{UID: testutil.TestSlix2UID}
			ops, sim := newTestOps(t, testutil.NewVirtualSlix(testutil.TestSlix2UID, 32), &rec)
			sim.SetOverride(func([]byte) (testutil.Reply, bool) { return tt.reply, true })

			err := ops.Select(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected kind %s for %v", nfcmagic.KindOf(err), err)
		})
	}
}

func TestOperations_CardErrorCode(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualSlix(testutil.TestSlix2UID, 32)
	tag.FailCommands[iso15693.CmdSelect] = 0x12
	rec := Record{UID: testutil.TestSlix2UID}
	ops, _ := newTestOps(t, tag, &rec)

	err := ops.Select(context.Background())
	var cardErr *nfcmagic.CardError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, byte(0x12), cardErr.Code)
	assert.Equal(t, byte(iso15693.CmdSelect), cardErr.Command)
}
