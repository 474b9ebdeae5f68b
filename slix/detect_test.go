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
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	testutil "github.com/ZaparooProject/go-nfcmagic/internal/testing"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inventoryReply(flags byte, uid []byte) testutil.Reply {
	frame := append([]byte{flags, 0x00}, uid...)
	return testutil.Reply{Data: iso15693.AppendCRC(frame)}
}

func TestDetect_UIDInReceivedOrder(t *testing.T) {
	t.Parallel()

	uid := []byte{0xE0, 0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	sim := testutil.NewSimTransceiver(testutil.NewVirtualSlix(testutil.TestSlix2UID, 32))
	sim.SetOverride(func([]byte) (testutil.Reply, bool) {
		return inventoryReply(0x00, uid), true
	})

	rec := Record{Type: TypeSlix2, SignatureRead: true}
	ok, err := Detect(context.Background(), sim, &rec)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uid, rec.UID[:])
	assert.Equal(t, Record{UID: rec.UID}, rec)
	assert.Equal(t, 1, sim.StopCount())

	log := sim.Log()
	require.Len(t, log, 1)
	assert.Equal(t, iso15693.InventoryRequest(), log[0].TX)
	assert.Equal(t, uint32(2*iso15693.FDTPollFC), log[0].FWT)
}

func TestDetect_VirtualTag(t *testing.T) {
	t.Parallel()

	sim := testutil.NewSimTransceiver(testutil.NewVirtualSlix(testutil.TestSlixUID, 32))
	var rec Record

	ok, err := Detect(context.Background(), sim, &rec)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testutil.TestSlixUID, rec.UID)
	assert.Equal(t, GuardTime, sim.GuardTime())
}

func TestDetect_NoTagTimesOut(t *testing.T) {
	t.Parallel()

	sim := testutil.NewSimTransceiver(nil)
	rec := Record{UID: testutil.TestSlix2UID}
	start := time.Now()

	ok, err := Detect(context.Background(), sim, &rec)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), DetectTimeout)
	assert.Equal(t, 1, sim.StartCount())
	assert.Equal(t, 1, sim.StopCount())
	assert.Equal(t, testutil.TestSlix2UID, rec.UID, "record untouched when nothing answers")
}

func TestDetect_RejectsBadResponses(t *testing.T) {
	t.Parallel()

	good := testutil.TestSlix2UID[:]
	tests := []struct {
		name  string
		reply testutil.Reply
	}{
		{name: "error flag", reply: inventoryReply(iso15693.ResponseFlagError, good)},
		{name: "short frame", reply: testutil.Reply{Data: iso15693.AppendCRC([]byte{0x00, 0x00, 0x01})}},
		{name: "bad crc", reply: testutil.Reply{Data: append([]byte{0x00, 0x00}, append(good, 0x00, 0x00)...)}},
		{name: "silence", reply: testutil.Reply{Err: nfcmagic.NewTimeoutError("exchange")}},
		{name: "tag removed", reply: testutil.Reply{Err: nfcmagic.NewNotPresentError("exchange")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := testutil.NewSimTransceiver(testutil.NewVirtualSlix(testutil.TestSlix2UID, 32))
			sim.SetOverride(func([]byte) (testutil.Reply, bool) { return tt.reply, true })
			var rec Record

			ok, err := Detect(context.Background(), sim, &rec)

			require.NoError(t, err)
			assert.False(t, ok)
			assert.True(t, rec.UID.IsZero())
			assert.Equal(t, 1, sim.StopCount())
		})
	}
}

func TestDetect_SessionErrors(t *testing.T) {
	t.Parallel()

	sim := testutil.NewSimTransceiver(nil)
	sim.SetCapabilities(nfcmagic.CapabilityISO14443A)
	var rec Record

	ok, err := Detect(context.Background(), sim, &rec)
	require.ErrorIs(t, err, nfcmagic.ErrTechUnsupported)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = Detect(ctx, testutil.NewSimTransceiver(nil), &rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	_, err = Detect(context.Background(), sim, nil)
	require.ErrorIs(t, err, nfcmagic.ErrInvalidParameter)
}
