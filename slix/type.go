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

import "github.com/ZaparooProject/go-nfcmagic/iso15693"

// UID byte positions in transport order
const (
	uidManufacturerIndex = 6
	uidTypeIndex         = 5
	uidIndicatorIndex    = 4
)

// Sub-family codes at uidTypeIndex
const (
	typeCodeSlixFamily = 0x01
	typeCodeSlixS      = 0x02
	typeCodeSlixL      = 0x03
)

// UID bits 36:35 distinguish SLIX from SLIX2 inside the 0x01 family
const (
	indicatorShift = 3
	indicatorMask  = 0x03
	indicatorSlix  = 0x02
	indicatorSlix2 = 0x01
)

// DeriveType identifies the SLIX variant from a UID. It is pure and only
// looks at the UID, so calling it again always yields the same answer.
func DeriveType(uid iso15693.UID) Type {
	if uid[uidManufacturerIndex] != iso15693.ManufacturerNXP {
		return TypeUnknown
	}

	switch uid[uidTypeIndex] {
	case typeCodeSlixFamily:
		switch (uid[uidIndicatorIndex] >> indicatorShift) & indicatorMask {
		case indicatorSlix:
			return TypeSlix
		case indicatorSlix2:
			return TypeSlix2
		default:
			return TypeUnknown
		}
	case typeCodeSlixS:
		return TypeSlixS
	case typeCodeSlixL:
		return TypeSlixL
	default:
		return TypeUnknown
	}
}
