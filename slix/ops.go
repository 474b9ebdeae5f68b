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

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
)

// Frame wait times in carrier cycles
const (
	MaxFWT       = 60000
	SignatureFWT = 2 * MaxFWT
)

const (
	requestFlags     = iso15693.FlagDataRateHigh
	nxpInfoLength    = 8
	inventoryPayload = 1 + iso15693.UIDLength
)

// NXP lock bits in the system info response
const (
	lockBitAFI   = 1 << 0
	lockBitEAS   = 1 << 1
	lockBitDSFID = 1 << 2
	lockBitPPL   = 1 << 3
)

// Operations issues single SLIX commands against a tag and records the
// results. Every method performs exactly one exchange and never retries.
type Operations struct {
	t   nfcmagic.Transceiver
	rec *Record
}

// NewOperations binds operations to a transceiver and the record they update.
func NewOperations(t nfcmagic.Transceiver, rec *Record) *Operations {
	return &Operations{t: t, rec: rec}
}

// Inventory runs a single-slot inventory. An empty UID is seeded from the
// response; otherwise the response must carry the same UID.
func (o *Operations) Inventory(ctx context.Context) error {
	const op = "inventory"

	resp, err := o.transact(ctx, op, iso15693.CmdInventory, iso15693.InventoryRequest(), MaxFWT)
	if err != nil {
		return err
	}
	if len(resp.Payload) < inventoryPayload {
		return lengthError(op, inventoryPayload, len(resp.Payload))
	}

	_, uid, err := iso15693.ParseInventory(resp.Payload)
	if err != nil {
		return nfcmagic.NewProtocolError(op, err)
	}
	return o.seedOrConfirmUID(op, uid)
}

// Select moves the addressed tag into the selected state.
func (o *Operations) Select(ctx context.Context) error {
	const op = "select"

	uid, err := o.addressedUID(op)
	if err != nil {
		return err
	}
	tx := iso15693.BuildRequest(requestFlags, iso15693.CmdSelect, &uid, nil)
	_, err = o.transact(ctx, op, iso15693.CmdSelect, tx, MaxFWT)
	return err
}

// GetSystemInfo reads the standard system information unaddressed. The UID
// in the response seeds an empty record or must match the known one.
func (o *Operations) GetSystemInfo(ctx context.Context) error {
	const op = "get system info"

	tx := iso15693.BuildRequest(requestFlags, iso15693.CmdGetSystemInfo, nil, nil)
	resp, err := o.transact(ctx, op, iso15693.CmdGetSystemInfo, tx, MaxFWT)
	if err != nil {
		return err
	}

	info, uid, err := iso15693.ParseSystemInfo(resp.Payload)
	if err != nil {
		return nfcmagic.NewProtocolError(op, err)
	}
	if err := o.seedOrConfirmUID(op, uid); err != nil {
		return err
	}
	o.rec.ISOSystemInfo = info
	return nil
}

// GetNXPSystemInfo reads protection, lock and feature bits. The AFI and
// DSFID lock bits land in ISOSettings, the rest in VendorInfo.
func (o *Operations) GetNXPSystemInfo(ctx context.Context) error {
	const op = "get nxp system info"

	uid, err := o.addressedUID(op)
	if err != nil {
		return err
	}
	tx := iso15693.BuildVendorRequest(requestFlags, iso15693.CmdNXPGetSystemInfo, iso15693.ManufacturerNXP, &uid, nil)
	resp, err := o.transact(ctx, op, iso15693.CmdNXPGetSystemInfo, tx, MaxFWT)
	if err != nil {
		return err
	}
	if len(resp.Payload) != nxpInfoLength {
		return lengthError(op, nxpInfoLength, len(resp.Payload))
	}

	data := resp.Payload
	locks := data[2]
	o.rec.VendorInfo = VendorInfo{
		ProtectionPointer:   data[0],
		ProtectionCondition: data[1],
		LockEAS:             locks&lockBitEAS != 0,
		LockPPL:             locks&lockBitPPL != 0,
		FeatureFlags:        binary.LittleEndian.Uint32(data[3:7]),
	}
	o.rec.ISOSettings.LockAFI = locks&lockBitAFI != 0
	o.rec.ISOSettings.LockDSFID = locks&lockBitDSFID != 0
	return nil
}

// ReadSignature reads the 32-byte originality signature. It waits twice
// the usual frame wait time.
func (o *Operations) ReadSignature(ctx context.Context) error {
	const op = "read signature"

	uid, err := o.addressedUID(op)
	if err != nil {
		return err
	}
	tx := iso15693.BuildVendorRequest(requestFlags, iso15693.CmdNXPReadSignature, iso15693.ManufacturerNXP, &uid, nil)
	resp, err := o.transact(ctx, op, iso15693.CmdNXPReadSignature, tx, SignatureFWT)
	if err != nil {
		return err
	}
	if len(resp.Payload) != SignatureLength {
		return lengthError(op, SignatureLength, len(resp.Payload))
	}

	copy(o.rec.Signature[:], resp.Payload)
	o.rec.SignatureRead = true
	return nil
}

// WriteBlock writes one 4-byte block of the addressed tag.
func (o *Operations) WriteBlock(ctx context.Context, block uint8, data [BlockSize]byte) error {
	op := fmt.Sprintf("write block %d", block)

	uid, err := o.addressedUID(op)
	if err != nil {
		return err
	}
	payload := make([]byte, 0, 1+BlockSize)
	payload = append(payload, block)
	payload = append(payload, data[:]...)

	tx := iso15693.BuildRequest(requestFlags, iso15693.CmdWriteBlock, &uid, payload)
	_, err = o.transact(ctx, op, iso15693.CmdWriteBlock, tx, MaxFWT)
	return err
}

// transact performs the exchange and the checks shared by every command:
// transport error, framing and CRC, then the card error flag.
func (o *Operations) transact(
	ctx context.Context, op string, cmd byte, tx []byte, fwt uint32,
) (iso15693.Response, error) {
	rx, err := o.t.Exchange(ctx, tx, fwt)
	if err != nil {
		return iso15693.Response{}, classify(op, err)
	}

	resp, err := iso15693.ValidateResponse(rx, iso15693.MinResponseLength)
	if err != nil {
		return iso15693.Response{}, nfcmagic.NewProtocolError(op, err)
	}
	if cardErr := resp.Err(cmd); cardErr != nil {
		return resp, nfcmagic.NewProtocolError(op, cardErr)
	}
	return resp, nil
}

func (o *Operations) seedOrConfirmUID(op string, uid iso15693.UID) error {
	if o.rec.UID.IsZero() {
		o.rec.UID = uid
		return nil
	}
	if o.rec.UID != uid {
		return nfcmagic.NewProtocolError(op, fmt.Errorf("%w: expected %s, card reported %s",
			nfcmagic.ErrUIDMismatch, o.rec.UID, uid))
	}
	return nil
}

func (o *Operations) addressedUID(op string) (iso15693.UID, error) {
	if o.rec.UID.IsZero() {
		return iso15693.UID{}, nfcmagic.NewProtocolError(op,
			fmt.Errorf("%w: addressed command without a uid", nfcmagic.ErrInvalidParameter))
	}
	return o.rec.UID, nil
}

// classify maps a transceiver failure onto the exchange error taxonomy.
// Anything that is neither a timeout nor a lost tag counts as protocol.
func classify(op string, err error) error {
	switch nfcmagic.KindOf(err) {
	case nfcmagic.KindTimeout:
		return nfcmagic.NewExchangeError(op, nfcmagic.KindTimeout, err)
	case nfcmagic.KindNotPresent:
		return nfcmagic.NewExchangeError(op, nfcmagic.KindNotPresent, err)
	default:
		return nfcmagic.NewExchangeError(op, nfcmagic.KindProtocol, err)
	}
}

func lengthError(op string, want, got int) error {
	return nfcmagic.NewProtocolError(op, fmt.Errorf("%w: want %d payload bytes, got %d",
		nfcmagic.ErrUnexpectedLength, want, got))
}
