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
	"testing"

	testutil "github.com/ZaparooProject/go-nfcmagic/internal/testing"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
	"github.com/stretchr/testify/assert"
)

func TestDeriveType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		uid  iso15693.UID
		want Type
	}{
		{name: "slix", uid: testutil.TestSlixUID, want: TypeSlix},
		{name: "slix2", uid: testutil.TestSlix2UID, want: TypeSlix2},
		{name: "slix-s", uid: testutil.TestSlixSUID, want: TypeSlixS},
		{name: "slix-l", uid: testutil.TestSlixLUID, want: TypeSlixL},
		{name: "foreign manufacturer", uid: testutil.TestForeignUID, want: TypeUnknown},
		{name: "zero uid", uid: iso15693.UID{}, want: TypeUnknown},
		{
			name: "indicator bits 00",
			uid:  iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x00, 0x01, 0x04, 0xE0},
			want: TypeUnknown,
		},
		{
			name: "indicator bits 11",
			uid:  iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x18, 0x01, 0x04, 0xE0},
			want: TypeUnknown,
		},
		{
			name: "unknown sub-family",
			uid:  iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x08, 0x07, 0x04, 0xE0},
			want: TypeUnknown,
		},
		{
			name: "unrelated indicator bits ignored",
			uid:  iso15693.UID{0x06, 0x05, 0x04, 0x03, 0xE7 | 0x08, 0x01, 0x04, 0xE0},
			want: TypeSlix2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveType(tt.uid))
		})
	}
}

func TestDeriveType_ForeignManufacturerAlwaysUnknown(t *testing.T) {
	t.Parallel()

	for typeCode := 0; typeCode < 256; typeCode++ {
		uid := testutil.TestSlix2UID
		uid[uidManufacturerIndex] = 0x05
		uid[uidTypeIndex] = byte(typeCode)
		assert.Equal(t, TypeUnknown, DeriveType(uid), "type code 0x%02X", typeCode)
	}
}

func TestDeriveType_Idempotent(t *testing.T) {
	t.Parallel()

	for _, uid := range []iso15693.UID{
		testutil.TestSlixUID, testutil.TestSlix2UID, testutil.TestSlixSUID, testutil.TestForeignUID,
	} {
		first := DeriveType(uid)
		assert.Equal(t, first, DeriveType(uid))
	}
}

func TestType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SLIX", TypeSlix.String())
	assert.Equal(t, "SLIX-S", TypeSlixS.String())
	assert.Equal(t, "SLIX-L", TypeSlixL.String())
	assert.Equal(t, "SLIX2", TypeSlix2.String())
	assert.Equal(t, "Unknown", TypeUnknown.String())
	assert.Equal(t, "Unknown", Type(42).String())
}
