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

package testing

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
)

// Test UIDs in transport order (least significant byte first)
var (
	// TestSlix2UID decodes as SLIX2: NXP, indicator family, bits 36:35 = 01
	TestSlix2UID = iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x08, 0x01, 0x04, 0xE0}
	// TestSlixUID decodes as SLIX: bits 36:35 = 10
	TestSlixUID = iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x10, 0x01, 0x04, 0xE0}
	// TestSlixSUID decodes as SLIX-S
	TestSlixSUID = iso15693.UID{0x06, 0x05, 0x04, 0x00, 0x00, 0x02, 0x04, 0xE0}
	// TestSlixLUID decodes as SLIX-L
	TestSlixLUID = iso15693.UID{0x06, 0x05, 0x04, 0x00, 0x00, 0x03, 0x04, 0xE0}
	// TestForeignUID carries a non-NXP manufacturer code
	TestForeignUID = iso15693.UID{0x06, 0x05, 0x04, 0x03, 0x08, 0x01, 0x07, 0xE0}
)

// TestFeatureFlags is the feature word reported by NewVirtualSlix
const TestFeatureFlags = 0x0133_0F01

// VirtualTag answers raw frames the way a card in the field would.
// A returned timeout error means the card stayed silent.
type VirtualTag interface {
	Tech() nfcmagic.Tech
	Handle(tx []byte) ([]byte, error)
}

// BitTag is a VirtualTag that also answers short frames.
type BitTag interface {
	VirtualTag
	HandleBits(tx []byte, txBits int) (rx []byte, rxBits int, err error)
}

// VirtualSlix simulates an NXP SLIX-family ISO15693 tag.
type VirtualSlix struct {
	// FailCommands makes the tag answer a command with an error code
	FailCommands map[byte]byte
	// SilentCommands makes the tag ignore a command
	SilentCommands map[byte]bool
	// Blocks holds the user memory
	Blocks [][4]byte
	// WriteLog lists every block number a write was attempted on
	WriteLog []int
	// Requests lists every command byte received with a valid CRC
	Requests []byte

	Signature   [32]byte
	NXPInfo     [8]byte
	UID         iso15693.UID
	InfoFlags   byte
	DSFID       byte
	AFI         byte
	ICRef       byte
	Selected    bool
	NoSignature bool
	Quiet       bool
}

// NewVirtualSlix creates a tag with blockCount blocks of user memory,
// full system info and a readable signature.
func NewVirtualSlix(uid iso15693.UID, blockCount int) *VirtualSlix {
	tag := &VirtualSlix{
		UID:            uid,
		Blocks:         make([][4]byte, blockCount),
		InfoFlags:      iso15693.InfoFlagDSFID | iso15693.InfoFlagAFI | iso15693.InfoFlagMemory | iso15693.InfoFlagICRef,
		DSFID:          0x00,
		AFI:            0x00,
		ICRef:          0x01,
		FailCommands:   make(map[byte]byte),
		SilentCommands: make(map[byte]bool),
	}
	for i := range tag.Blocks {
		tag.Blocks[i] = [4]byte{0xDE, 0xAD, 0xBE, byte(i)}
	}
	for i := range tag.Signature {
		tag.Signature[i] = byte(0xA0 + i)
	}
	// Protection pointer, condition, lock bits (AFI + PPL), feature flags LE, reserved
	tag.NXPInfo = [8]byte{0x10, 0x02, 0x09}
	binary.LittleEndian.PutUint32(tag.NXPInfo[3:7], TestFeatureFlags)
	return tag
}

// Tech implements VirtualTag
func (*VirtualSlix) Tech() nfcmagic.Tech {
	return nfcmagic.TechISO15693
}

// Handle implements VirtualTag
func (v *VirtualSlix) Handle(tx []byte) ([]byte, error) {
	if len(tx) < 2+iso15693.CRCLength || !iso15693.CheckCRC(tx) {
		return nil, nfcmagic.NewTimeoutError("virtual slix")
	}
	body := tx[:len(tx)-iso15693.CRCLength]
	flags, cmd := body[0], body[1]
	rest := body[2:]
	v.Requests = append(v.Requests, cmd)

	if cmd >= 0xA0 && cmd <= 0xDF {
		if len(rest) < 1 || rest[0] != iso15693.ManufacturerNXP {
			return nil, nfcmagic.NewTimeoutError("virtual slix")
		}
		rest = rest[1:]
	}

	if flags&iso15693.FlagInventory == 0 && flags&iso15693.FlagAddressed != 0 {
		if len(rest) < iso15693.UIDLength || iso15693.UID(rest[:iso15693.UIDLength]) != v.UID {
			return nil, nfcmagic.NewTimeoutError("virtual slix")
		}
		rest = rest[iso15693.UIDLength:]
	}

	if v.Quiet || v.SilentCommands[cmd] {
		return nil, nfcmagic.NewTimeoutError("virtual slix")
	}
	if code, ok := v.FailCommands[cmd]; ok {
		return errorResponse(code), nil
	}

	switch cmd {
	case iso15693.CmdInventory:
		return okResponse(append([]byte{v.DSFID}, v.UID[:]...)), nil
	case iso15693.CmdGetSystemInfo:
		return okResponse(v.systemInfo()), nil
	case iso15693.CmdSelect:
		v.Selected = true
		return okResponse(nil), nil
	case iso15693.CmdReadBlock:
		if len(rest) < 1 || int(rest[0]) >= len(v.Blocks) {
			return errorResponse(0x10), nil
		}
		blk := v.Blocks[rest[0]]
		return okResponse(blk[:]), nil
	case iso15693.CmdWriteBlock:
		if len(rest) < 5 {
			return errorResponse(0x0F), nil
		}
		v.WriteLog = append(v.WriteLog, int(rest[0]))
		if int(rest[0]) >= len(v.Blocks) {
			return errorResponse(0x10), nil
		}
		copy(v.Blocks[rest[0]][:], rest[1:5])
		return okResponse(nil), nil
	case iso15693.CmdNXPGetSystemInfo:
		return okResponse(v.NXPInfo[:]), nil
	case iso15693.CmdNXPReadSignature:
		if v.NoSignature {
			return errorResponse(0x01), nil
		}
		return okResponse(v.Signature[:]), nil
	default:
		return errorResponse(0x01), nil
	}
}

func (v *VirtualSlix) systemInfo() []byte {
	out := append([]byte{v.InfoFlags}, v.UID[:]...)
	if v.InfoFlags&iso15693.InfoFlagDSFID != 0 {
		out = append(out, v.DSFID)
	}
	if v.InfoFlags&iso15693.InfoFlagAFI != 0 {
		out = append(out, v.AFI)
	}
	if v.InfoFlags&iso15693.InfoFlagMemory != 0 {
		out = append(out, byte(len(v.Blocks)-1), 0x03)
	}
	if v.InfoFlags&iso15693.InfoFlagICRef != 0 {
		out = append(out, v.ICRef)
	}
	return out
}

// IsWiped reports whether every block is zero
func (v *VirtualSlix) IsWiped() bool {
	for _, blk := range v.Blocks {
		if blk != [4]byte{} {
			return false
		}
	}
	return true
}

func okResponse(payload []byte) []byte {
	return iso15693.AppendCRC(append([]byte{0x00}, payload...))
}

func errorResponse(code byte) []byte {
	return iso15693.AppendCRC([]byte{iso15693.ResponseFlagError, code})
}
