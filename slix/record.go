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

// Package slix implements NXP SLIX-family ISO15693 tag support: the tag
// record, the individual card operations, the poller state machine that
// wipes or interrogates a tag one step at a time, and a bounded detector.
package slix

import (
	"fmt"

	"github.com/ZaparooProject/go-nfcmagic/iso15693"
)

// Tag geometry
const (
	BlockSize       = 4
	SignatureLength = 32
	// TotalBlocks is how many blocks a wipe attempts. Smaller variants end
	// earlier, which the wipe detects as a failed write.
	TotalBlocks = 32
)

// Type is the SLIX variant derived from the UID.
type Type int

const (
	// TypeUnknown is a non-NXP tag or an unrecognized variant
	TypeUnknown Type = iota
	// TypeSlix is ICODE SLIX
	TypeSlix
	// TypeSlixS is ICODE SLIX-S
	TypeSlixS
	// TypeSlixL is ICODE SLIX-L
	TypeSlixL
	// TypeSlix2 is ICODE SLIX2
	TypeSlix2
)

// String returns the variant display name
func (t Type) String() string {
	switch t {
	case TypeSlix:
		return "SLIX"
	case TypeSlixS:
		return "SLIX-S"
	case TypeSlixL:
		return "SLIX-L"
	case TypeSlix2:
		return "SLIX2"
	default:
		return "Unknown"
	}
}

// ISOSettings shadows the standard lock bits reported through the NXP
// system info response.
type ISOSettings struct {
	LockAFI   bool
	LockDSFID bool
}

// VendorInfo holds the NXP system info fields.
type VendorInfo struct {
	FeatureFlags        uint32
	ProtectionPointer   byte
	ProtectionCondition byte
	LockEAS             bool
	LockPPL             bool
}

// Record is everything known about one SLIX tag. It is a plain value:
// assigning it copies all of it.
type Record struct {
	ISOSystemInfo iso15693.SystemInfo
	VendorInfo    VendorInfo
	Signature     [SignatureLength]byte
	UID           iso15693.UID
	ISOSettings   ISOSettings
	Type          Type
	SignatureRead bool
}

// Reset clears the record, UID included
func (r *Record) Reset() {
	*r = Record{}
}

// Copy returns an independent copy of the record
func (r *Record) Copy() Record {
	return *r
}

// clearDerived drops everything learned from the tag except its UID
func (r *Record) clearDerived() {
	*r = Record{UID: r.UID}
}

// Summary renders the record as display lines: type, UID, memory geometry
// and signature state.
func (r *Record) Summary() []string {
	lines := []string{
		"Type: " + r.Type.String(),
		"UID: " + r.UID.String(),
	}

	if r.ISOSystemInfo.HasMemory() {
		lines = append(lines, fmt.Sprintf("Mem: %d blocks x %d bytes",
			r.ISOSystemInfo.BlockCount, r.ISOSystemInfo.BlockSize))
	} else {
		lines = append(lines, "Mem: Info not available")
	}

	switch {
	case r.SignatureRead:
		lines = append(lines, "Signature: Read")
	case r.Type == TypeSlix2:
		lines = append(lines, "Signature: Not Read")
	default:
		lines = append(lines, "Signature: N/A")
	}
	return lines
}
