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

// Package iso15693 builds ISO15693 requests and validates responses.
//
// Frames are byte sequences in transport order:
//
//	[flags][command][manufacturer, vendor commands only][uid x8, addressed only][payload][crc lo][crc hi]
package iso15693

// Request flags. Bits 5..7 change meaning when FlagInventory is set.
const (
	FlagSubCarrier   = 0x01
	FlagDataRateHigh = 0x02
	FlagInventory    = 0x04
	FlagProtocolExt  = 0x08

	// Non-inventory requests
	FlagSelect    = 0x10
	FlagAddressed = 0x20
	FlagOption    = 0x40

	// Inventory requests
	FlagAFI       = 0x10
	FlagOneSlot   = 0x20
	FlagInvOption = 0x40
)

// ResponseFlagError is set in the response flags byte when the card
// rejected the command. The error code follows the flags byte.
const ResponseFlagError = 0x01

// Standard commands
const (
	CmdInventory     = 0x01
	CmdStayQuiet     = 0x02
	CmdReadBlock     = 0x20
	CmdWriteBlock    = 0x21
	CmdSelect        = 0x25
	CmdResetToReady  = 0x26
	CmdGetSystemInfo = 0x2B
)

// NXP custom commands. They carry the manufacturer code after the command byte.
const (
	CmdNXPGetSystemInfo = 0xAB
	CmdNXPReadSignature = 0xBD

	ManufacturerNXP = 0x04
)

// System information flags (GET SYSTEM INFO response)
const (
	InfoFlagDSFID  = 0x01
	InfoFlagAFI    = 0x02
	InfoFlagMemory = 0x04
	InfoFlagICRef  = 0x08
)

// Timing in carrier cycles (fc = 1/13.56 MHz)
const (
	// FDTPollFC is the poller frame delay time used for inventory
	FDTPollFC = 4202
	// GuardTimeUS is the field-on guard time before the first request
	GuardTimeUS = 5000
)

// Frame geometry
const (
	UIDLength = 8
	// MinResponseLength is a flags byte plus CRC
	MinResponseLength = 1 + CRCLength
	// InventoryResponseLength is flags, DSFID, UID and CRC
	InventoryResponseLength = 2 + UIDLength + CRCLength
	// InventoryUIDOffset is the UID position in an inventory response
	InventoryUIDOffset = 2
)
