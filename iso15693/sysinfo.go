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
	"fmt"

	"github.com/ZaparooProject/go-nfcmagic"
)

// SystemInfo is the parsed GET SYSTEM INFO response. Optional fields are
// only meaningful when the matching flag is set.
type SystemInfo struct {
	BlockCount uint16
	Flags      byte
	DSFID      byte
	AFI        byte
	BlockSize  byte
	ICRef      byte
}

// HasDSFID reports whether DSFID was present
func (s SystemInfo) HasDSFID() bool { return s.Flags&InfoFlagDSFID != 0 }

// HasAFI reports whether AFI was present
func (s SystemInfo) HasAFI() bool { return s.Flags&InfoFlagAFI != 0 }

// HasMemory reports whether block count and size were present
func (s SystemInfo) HasMemory() bool { return s.Flags&InfoFlagMemory != 0 }

// HasICRef reports whether the IC reference was present
func (s SystemInfo) HasICRef() bool { return s.Flags&InfoFlagICRef != 0 }

// ParseSystemInfo decodes a GET SYSTEM INFO payload (the bytes after the
// response flags) into the system info and the UID it reports.
func ParseSystemInfo(payload []byte) (SystemInfo, UID, error) {
	var info SystemInfo
	var uid UID

	if len(payload) < 1+UIDLength {
		return info, uid, fmt.Errorf("%w: system info needs %d bytes, got %d",
			nfcmagic.ErrUnexpectedLength, 1+UIDLength, len(payload))
	}

	info.Flags = payload[0]
	copy(uid[:], payload[1:1+UIDLength])
	rest := payload[1+UIDLength:]

	need := 0
	if info.HasDSFID() {
		need++
	}
	if info.HasAFI() {
		need++
	}
	if info.HasMemory() {
		need += 2
	}
	if info.HasICRef() {
		need++
	}
	if len(rest) < need {
		return info, uid, fmt.Errorf("%w: flags 0x%02X need %d optional bytes, got %d",
			nfcmagic.ErrUnexpectedLength, info.Flags, need, len(rest))
	}

	if info.HasDSFID() {
		info.DSFID = rest[0]
		rest = rest[1:]
	}
	if info.HasAFI() {
		info.AFI = rest[0]
		rest = rest[1:]
	}
	if info.HasMemory() {
		info.BlockCount = uint16(rest[0]) + 1
		info.BlockSize = (rest[1] & 0x1F) + 1
		rest = rest[2:]
	}
	if info.HasICRef() {
		info.ICRef = rest[0]
	}

	return info, uid, nil
}

// ParseInventory decodes an inventory payload (DSFID and UID).
func ParseInventory(payload []byte) (dsfid byte, uid UID, err error) {
	if len(payload) < 1+UIDLength {
		return 0, uid, fmt.Errorf("%w: inventory needs %d bytes, got %d",
			nfcmagic.ErrUnexpectedLength, 1+UIDLength, len(payload))
	}
	copy(uid[:], payload[1:1+UIDLength])
	return payload[0], uid, nil
}
