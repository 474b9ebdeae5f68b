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

package nfcmagic

// Protocol identifies a magic card family.
type Protocol int

const (
	// ProtocolUnknown is not a recognized magic family
	ProtocolUnknown Protocol = iota
	// ProtocolGen1 is a Gen1a "backdoor" MIFARE Classic clone
	ProtocolGen1
	// ProtocolGen4 is a Gen4 GTU card with password-protected config
	ProtocolGen4
	// ProtocolSlix is an NXP SLIX-family ISO15693 tag
	ProtocolSlix
)

// String returns the display name of the protocol
func (p Protocol) String() string {
	switch p {
	case ProtocolGen1:
		return "Gen1A"
	case ProtocolGen4:
		return "Gen4"
	case ProtocolSlix:
		return "SLIX"
	default:
		return "Unknown"
	}
}

// Tech returns the air interface the protocol runs on
func (p Protocol) Tech() Tech {
	if p == ProtocolSlix {
		return TechISO15693
	}
	return TechISO14443A
}

// DetectResult is the outcome of a one-shot family probe. Present is set
// whenever a tag answered the activation, even if the probe itself failed.
type DetectResult struct {
	Detected bool
	Present  bool
}
