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
	"errors"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso15693"
)

// DetectTimeout bounds a Detect call when the tag never answers
const DetectTimeout = 200 * time.Millisecond

// detectFWT is the inventory frame wait time used while detecting
const detectFWT = 2 * iso15693.FDTPollFC

// Detect runs one inventory in a transient ISO15693 session. When a tag
// answers with a well-formed response, rec is reset and its UID set from
// the response and Detect returns true.
//
// Silence, a bad frame or a card error all report (false, nil). Errors are
// returned only when the session itself could not run or ctx ended.
func Detect(ctx context.Context, t nfcmagic.Transceiver, rec *Record) (bool, error) {
	if rec == nil {
		return false, nfcmagic.ErrInvalidParameter
	}

	var uid iso15693.UID
	fn := func(ctx context.Context) error {
		rx, err := t.Exchange(ctx, iso15693.InventoryRequest(), detectFWT)
		if err != nil {
			return classify("detect", err)
		}
		resp, err := iso15693.ValidateResponse(rx, iso15693.InventoryResponseLength)
		if err != nil {
			return nfcmagic.NewProtocolError("detect", err)
		}
		if cardErr := resp.Err(iso15693.CmdInventory); cardErr != nil {
			return nfcmagic.NewProtocolError("detect", cardErr)
		}
		_, got, err := iso15693.ParseInventory(resp.Payload)
		if err != nil {
			return nfcmagic.NewProtocolError("detect", err)
		}
		uid = got
		return nil
	}

	t.SetGuardTime(GuardTime)
	t.SetPollDeadline(iso15693.FDTPollFC)

	err := nfcmagic.RunSession(ctx, t, nfcmagic.TechISO15693, DetectTimeout, fn)
	switch {
	case err == nil:
		rec.Reset()
		rec.UID = uid
		nfcmagic.Debugf("slix detected: %s", uid)
		return true, nil
	case errors.Is(err, nfcmagic.ErrSessionTimeout), nfcmagic.KindOf(err) != nfcmagic.KindNone:
		nfcmagic.Debugf("slix not detected: %v", err)
		return false, nil
	default:
		return false, err
	}
}
