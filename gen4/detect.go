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

package gen4

import (
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
)

// Command bytes
const (
	cmdPrefix    = 0xCF
	cmdGetConfig = 0xC6
)

// MaxFWT is the frame wait time for Gen4 commands, in carrier cycles
const MaxFWT = 200000

// DetectTimeout bounds one Detect call
const DetectTimeout = 200 * time.Millisecond

// GetConfigRequest builds the get-config command for password, CRC included.
func GetConfigRequest(password Password) []byte {
	tx := make([]byte, 0, 6+iso14443a.CRCLength)
	tx = append(tx, cmdPrefix)
	tx = append(tx, password[:]...)
	tx = append(tx, cmdGetConfig)
	return iso14443a.AppendCRC(tx)
}

// Detect activates an ISO14443A tag and asks it for its Gen4 config
// using data.Password. On success data.Config is filled in.
//
// Only transceiver or context failures are returned as errors; a tag that
// ignores the command is reported as present but not detected.
func Detect(ctx context.Context, t nfcmagic.Transceiver, data *Data) (nfcmagic.DetectResult, error) {
	var res nfcmagic.DetectResult
	if data == nil {
		return res, nfcmagic.ErrInvalidParameter
	}

	password := data.Password
	var cfg Config
	fn := func(ctx context.Context) error {
		res.Present = true

		rx, err := t.Exchange(ctx, GetConfigRequest(password), MaxFWT)
		if err != nil {
			return err
		}
		if len(rx) < iso14443a.CRCLength || !iso14443a.CheckCRC(rx) {
			return nfcmagic.NewProtocolError("gen4 get config", nfcmagic.ErrCRCMismatch)
		}
		parsed, err := ParseConfig(iso14443a.TrimCRC(rx))
		if err != nil {
			return nfcmagic.NewProtocolError("gen4 get config", err)
		}
		cfg = parsed
		return nil
	}

	err := nfcmagic.RunSession(ctx, t, nfcmagic.TechISO14443A, DetectTimeout, fn)
	switch {
	case err == nil:
		data.Config = cfg
		res.Detected = true
		nfcmagic.Debugf("gen4 detected with password %s", password)
		return res, nil
	case errors.Is(err, nfcmagic.ErrSessionTimeout):
		return nfcmagic.DetectResult{}, nil
	case nfcmagic.KindOf(err) != nfcmagic.KindNone:
		nfcmagic.Debugf("gen4 not detected: %v", err)
		return nfcmagic.DetectResult{Present: true}, nil
	default:
		return nfcmagic.DetectResult{}, err
	}
}
