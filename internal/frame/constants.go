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

// Package frame encodes and decodes PN532 host frames: the
// 00 00 FF LEN LCS TFI DATA DCS 00 envelope shared by every PN532 wire,
// plus the ACK, NACK and application error frames.
package frame

// Frame identifiers
const (
	HostToPN532 = 0xD4
	PN532ToHost = 0xD5
	ErrorTFI    = 0x7F
)

// Envelope bytes
const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

// Size limits for normal (non-extended) frames
const (
	// MaxDataLength is the largest LEN a normal frame carries, TFI included
	MaxDataLength = 0xFF
	// Overhead is every byte of a frame that is not TFI or data
	Overhead = 7
	// MinFrameLength is the size of an ACK frame
	MinFrameLength = 6
)

var (
	ACK  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NACK = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)
