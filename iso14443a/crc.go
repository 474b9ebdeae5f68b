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

// Package iso14443a holds the ISO14443 type A framing helpers used by the
// magic card detectors: CRC_A and short-frame constants.
package iso14443a

// Commands and replies used by the detectors
const (
	CmdREQA = 0x26
	CmdWUPA = 0x52
	CmdHLTA = 0x50

	// ShortFrameBits is the length of REQA, WUPA and the Gen1a backdoor frames
	ShortFrameBits = 7
	// ACK is the 4-bit acknowledge a tag returns to a short command
	ACK = 0x0A
	// ACKBits is the length of an ACK/NAK reply
	ACKBits = 4
)

// CRCLength is the size of the CRC_A trailer
const CRCLength = 2

// CRC computes CRC_A over data. The result is returned in transmission
// order: low byte first.
func CRC(data []byte) [2]byte {
	crc := uint32(0x6363)
	for _, bt := range data {
		bt ^= uint8(crc & 0xff)
		bt ^= bt << 4
		bt32 := uint32(bt)
		crc = (crc >> 8) ^ (bt32 << 8) ^ (bt32 << 3) ^ (bt32 >> 4)
	}
	return [2]byte{byte(crc & 0xff), byte((crc >> 8) & 0xff)}
}

// AppendCRC appends CRC_A to data.
func AppendCRC(data []byte) []byte {
	crc := CRC(data)
	return append(data, crc[0], crc[1])
}

// CheckCRC reports whether frame ends with a valid CRC_A.
func CheckCRC(frame []byte) bool {
	if len(frame) < CRCLength {
		return false
	}
	crc := CRC(frame[:len(frame)-CRCLength])
	return frame[len(frame)-2] == crc[0] && frame[len(frame)-1] == crc[1]
}

// TrimCRC returns frame without its CRC trailer.
func TrimCRC(frame []byte) []byte {
	if len(frame) < CRCLength {
		return nil
	}
	return frame[:len(frame)-CRCLength]
}

// HLTA returns the HALT command with its CRC.
func HLTA() []byte {
	return AppendCRC([]byte{CmdHLTA, 0x00})
}
