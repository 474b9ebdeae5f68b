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
	"bytes"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
)

// Gen4 command bytes as seen on the air
const (
	gen4Prefix    = 0xCF
	gen4GetConfig = 0xC6
)

// DefaultGen4Config is a 32-byte Gen4 configuration for an emulated
// MIFARE Classic 1K with a 4-byte UID.
var DefaultGen4Config = []byte{
	0x00,                   // protocol: MIFARE Classic
	0x00,                   // uid length: 4 bytes
	0x00, 0x00, 0x00, 0x00, // password
	0x00,                   // gtu mode: pre-write
	0x00,                   // ats length

	// ats
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,

	0x00, 0x04, // atqa
	0x08,       // sak
	0x00,       // ultralight mode
	0x3F,       // max block
	0x00,       // direct write
	0x00, 0x00, // reserved
}

// VirtualGen4 simulates a Gen4 GTU card answering CF-prefixed commands.
type VirtualGen4 struct {
	Config   []byte
	Password [4]byte
	Requests [][]byte
}

// NewVirtualGen4 creates a Gen4 card with the given password and default config.
func NewVirtualGen4(password [4]byte) *VirtualGen4 {
	cfg := append([]byte(nil), DefaultGen4Config...)
	copy(cfg[2:6], password[:])
	return &VirtualGen4{Password: password, Config: cfg}
}

// Tech implements VirtualTag
func (*VirtualGen4) Tech() nfcmagic.Tech {
	return nfcmagic.TechISO14443A
}

// Handle implements VirtualTag
func (v *VirtualGen4) Handle(tx []byte) ([]byte, error) {
	v.Requests = append(v.Requests, append([]byte(nil), tx...))
	if !iso14443a.CheckCRC(tx) {
		return nil, nfcmagic.NewTimeoutError("virtual gen4")
	}
	body := iso14443a.TrimCRC(tx)
	if len(body) != 6 || body[0] != gen4Prefix || body[5] != gen4GetConfig {
		return nil, nfcmagic.NewTimeoutError("virtual gen4")
	}
	if !bytes.Equal(body[1:5], v.Password[:]) {
		return nil, nfcmagic.NewTimeoutError("virtual gen4")
	}
	return iso14443a.AppendCRC(append([]byte(nil), v.Config...)), nil
}

// VirtualGen1a simulates a Gen1a card with the 0x40/0x43 backdoor.
type VirtualGen1a struct {
	Unlocked bool
	halted   bool
}

// Tech implements VirtualTag
func (*VirtualGen1a) Tech() nfcmagic.Tech {
	return nfcmagic.TechISO14443A
}

// Handle implements VirtualTag. HLTA is never acknowledged.
func (v *VirtualGen1a) Handle(tx []byte) ([]byte, error) {
	if bytes.Equal(tx, iso14443a.HLTA()) {
		v.halted = true
	}
	if v.Unlocked && len(tx) == 1 && tx[0] == 0x43 {
		return []byte{iso14443a.ACK}, nil
	}
	return nil, nfcmagic.NewTimeoutError("virtual gen1a")
}

// HandleBits implements BitTag
func (v *VirtualGen1a) HandleBits(tx []byte, txBits int) ([]byte, int, error) {
	switch {
	case txBits == len(tx)*8 && bytes.Equal(tx, iso14443a.HLTA()):
		v.halted = true
		return nil, 0, nfcmagic.NewTimeoutError("virtual gen1a")
	case txBits == iso14443a.ShortFrameBits && len(tx) == 1 && tx[0] == 0x40 && v.halted:
		v.Unlocked = true
		return []byte{iso14443a.ACK}, iso14443a.ACKBits, nil
	case txBits == 8 && len(tx) == 1 && tx[0] == 0x43 && v.Unlocked:
		return []byte{iso14443a.ACK}, iso14443a.ACKBits, nil
	default:
		return nil, 0, nfcmagic.NewTimeoutError("virtual gen1a")
	}
}

// VirtualPlainA is a genuine ISO14443A tag that ignores every magic command.
type VirtualPlainA struct {
	Requests int
}

// Tech implements VirtualTag
func (*VirtualPlainA) Tech() nfcmagic.Tech {
	return nfcmagic.TechISO14443A
}

// Handle implements VirtualTag
func (v *VirtualPlainA) Handle([]byte) ([]byte, error) {
	v.Requests++
	return nil, nfcmagic.NewTimeoutError("virtual tag")
}

// HandleBits implements BitTag
func (v *VirtualPlainA) HandleBits([]byte, int) ([]byte, int, error) {
	v.Requests++
	return nil, 0, nfcmagic.NewTimeoutError("virtual tag")
}
