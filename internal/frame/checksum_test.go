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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumAndChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		sum  byte
	}{
		{name: "empty", data: []byte{}, sum: 0x00},
		{name: "single byte", data: []byte{0x42}, sum: 0x42},
		{name: "overflow wraps", data: []byte{0xFF, 0x01}, sum: 0x00},
		{name: "get firmware version", data: []byte{0xD4, 0x02}, sum: 0xD6},
		{name: "in communicate thru", data: []byte{0xD4, 0x42, 0x26, 0x01, 0x00}, sum: 0x3D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.sum, Sum(tt.data))
			assert.Equal(t, byte(0), Sum(append(append([]byte(nil), tt.data...), Checksum(tt.data))))
		})
	}
}
