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

package iso15693

import (
	"testing"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSystemInfo(t *testing.T) {
	t.Parallel()
	uid := []byte{0x06, 0x05, 0x04, 0x08, 0x01, 0x01, 0x04, 0xE0}

	tests := []struct {
		name    string
		payload []byte
		want    SystemInfo
	}{
		{
			name:    "all fields",
			payload: append(append([]byte{0x0F}, uid...), 0xAA, 0xBB, 0x4F, 0x03, 0x01),
			want: SystemInfo{
				Flags: 0x0F, DSFID: 0xAA, AFI: 0xBB,
				BlockCount: 80, BlockSize: 4, ICRef: 0x01,
			},
		},
		{
			name:    "no optional fields",
			payload: append([]byte{0x00}, uid...),
			want:    SystemInfo{},
		},
		{
			name:    "memory only",
			payload: append(append([]byte{0x04}, uid...), 0x1F, 0xE3),
			want:    SystemInfo{Flags: 0x04, BlockCount: 32, BlockSize: 4},
		},
		{
			name:    "afi and ic ref",
			payload: append(append([]byte{0x0A}, uid...), 0x07, 0x02),
			want:    SystemInfo{Flags: 0x0A, AFI: 0x07, ICRef: 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, gotUID, err := ParseSystemInfo(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info)
			assert.Equal(t, uid, gotUID[:])
		})
	}
}

func TestParseSystemInfo_Truncated(t *testing.T) {
	t.Parallel()

	_, _, err := ParseSystemInfo([]byte{0x0F, 0x01, 0x02})
	require.ErrorIs(t, err, nfcmagic.ErrUnexpectedLength)

	payload := append([]byte{0x04}, make([]byte, UIDLength)...)
	payload = append(payload, 0x1F)
	_, _, err = ParseSystemInfo(payload)
	require.ErrorIs(t, err, nfcmagic.ErrUnexpectedLength)
}

func TestParseInventory(t *testing.T) {
	t.Parallel()

	dsfid, uid, err := ParseInventory([]byte{0x11, 0xE0, 0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), dsfid)
	assert.Equal(t, UID{0xE0, 0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, uid)

	_, _, err = ParseInventory([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, nfcmagic.ErrUnexpectedLength)
}
