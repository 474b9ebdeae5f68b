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

// CRC-16/ISO13239 parameters: reflected polynomial 0x1021, initial value
// 0xFFFF, final XOR 0xFFFF. The CRC is sent low byte first.
const (
	crcPoly    = 0x8408
	crcInit    = 0xFFFF
	crcXorOut  = 0xFFFF
	CRCLength  = 2
	CRCResidue = 0xF0B8 // register value after running a valid frame through the CRC
)

func crcUpdate(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPoly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CRC computes the ISO13239 CRC over data.
func CRC(data []byte) uint16 {
	return crcUpdate(crcInit, data) ^ crcXorOut
}

// AppendCRC appends the CRC of buf to buf, low byte first.
func AppendCRC(buf []byte) []byte {
	crc := CRC(buf)
	return append(buf, byte(crc), byte(crc>>8))
}

// CheckCRC reports whether the last two bytes of frame are a valid CRC
// for the bytes preceding them.
func CheckCRC(frame []byte) bool {
	if len(frame) < CRCLength {
		return false
	}
	return crcUpdate(crcInit, frame) == CRCResidue
}
