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
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-nfcmagic"
)

// UID is a tag identifier in transport order, least significant byte first.
// It is never reordered on the wire; String prints it most significant first.
type UID [UIDLength]byte

// IsZero reports whether no UID has been captured yet
func (u UID) IsZero() bool {
	return u == UID{}
}

// String formats the UID most significant byte first, e.g. "E0 04 01 08 ..."
func (u UID) String() string {
	parts := make([]string, UIDLength)
	for i := range UIDLength {
		parts[i] = fmt.Sprintf("%02X", u[UIDLength-1-i])
	}
	return strings.Join(parts, " ")
}

// CommandKind distinguishes standard commands from manufacturer-specific
// ones, which carry a manufacturer code right after the command byte.
type CommandKind struct {
	manufacturer byte
	vendor       bool
}

// Standard is the kind of every ISO15693 mandatory or optional command
var Standard = CommandKind{}

// Vendor returns the kind of a custom command for the given manufacturer
func Vendor(manufacturer byte) CommandKind {
	return CommandKind{vendor: true, manufacturer: manufacturer}
}

// Manufacturer returns the manufacturer code and whether the kind is vendor
func (k CommandKind) Manufacturer() (byte, bool) {
	return k.manufacturer, k.vendor
}

// Request describes one ISO15693 request frame.
type Request struct {
	UID     *UID // addressed when non-nil
	Payload []byte
	Kind    CommandKind
	Flags   byte
	Command byte
}

// Bytes encodes the request and appends its CRC. The addressed flag is
// set when a UID is present and cleared otherwise.
func (r Request) Bytes() []byte {
	flags := r.Flags
	if flags&FlagInventory == 0 {
		if r.UID != nil {
			flags |= FlagAddressed
		} else {
			flags &^= FlagAddressed
		}
	}

	size := 2 + len(r.Payload) + CRCLength
	if _, ok := r.Kind.Manufacturer(); ok {
		size++
	}
	if r.UID != nil {
		size += UIDLength
	}

	buf := make([]byte, 0, size)
	buf = append(buf, flags, r.Command)
	if mfg, ok := r.Kind.Manufacturer(); ok {
		buf = append(buf, mfg)
	}
	if r.UID != nil {
		buf = append(buf, r.UID[:]...)
	}
	buf = append(buf, r.Payload...)
	return AppendCRC(buf)
}

// BuildRequest encodes a standard command.
func BuildRequest(flags, command byte, uid *UID, payload []byte) []byte {
	return Request{Flags: flags, Command: command, UID: uid, Payload: payload}.Bytes()
}

// BuildVendorRequest encodes a custom command for the given manufacturer.
func BuildVendorRequest(flags, command, manufacturer byte, uid *UID, payload []byte) []byte {
	return Request{
		Flags:   flags,
		Command: command,
		Kind:    Vendor(manufacturer),
		UID:     uid,
		Payload: payload,
	}.Bytes()
}

// InventoryRequest builds a single-slot inventory with no AFI and an empty mask.
func InventoryRequest() []byte {
	return BuildRequest(FlagDataRateHigh|FlagInventory|FlagOneSlot, CmdInventory, nil, []byte{0x00})
}

// FrameError is returned when a response fails framing checks.
type FrameError struct {
	Reason error
	Len    int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("invalid iso15693 frame (%d bytes): %v", e.Len, e.Reason)
}

// Unwrap returns ErrFrameTooShort or ErrCRCMismatch
func (e *FrameError) Unwrap() error {
	return e.Reason
}

// Response is a validated response with the CRC removed.
type Response struct {
	Payload []byte // bytes after the flags byte
	Flags   byte
}

// IsError reports whether the card flagged the command as failed
func (r Response) IsError() bool {
	return r.Flags&ResponseFlagError != 0
}

// Err returns a *nfcmagic.CardError when the error flag is set, nil otherwise.
func (r Response) Err(command byte) error {
	if !r.IsError() {
		return nil
	}
	code := byte(0x0F)
	if len(r.Payload) > 0 {
		code = r.Payload[0]
	}
	return &nfcmagic.CardError{Command: command, Code: code}
}

// ValidateResponse checks length and CRC, then splits off the flags byte.
// minLen is the smallest acceptable frame including flags and CRC; it is
// never less than MinResponseLength, so a single-byte reply always fails.
// A valid CRC does not mean the command succeeded: check Response.Err.
func ValidateResponse(buf []byte, minLen int) (Response, error) {
	if minLen < MinResponseLength {
		minLen = MinResponseLength
	}
	if len(buf) < minLen {
		return Response{}, &FrameError{Len: len(buf), Reason: nfcmagic.ErrFrameTooShort}
	}
	if !CheckCRC(buf) {
		return Response{}, &FrameError{Len: len(buf), Reason: nfcmagic.ErrCRCMismatch}
	}

	body := buf[:len(buf)-CRCLength]
	payload := make([]byte, len(body)-1)
	copy(payload, body[1:])
	return Response{Flags: body[0], Payload: payload}, nil
}

// IsFrameError reports whether err came from ValidateResponse
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
