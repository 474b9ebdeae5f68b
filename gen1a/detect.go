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

// Package gen1a detects Gen1a "backdoor" MIFARE Classic clones. After a
// halt the card acknowledges the 7-bit 0x40 and 8-bit 0x43 unlock frames,
// which a genuine card never does.
package gen1a

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
)

// Backdoor commands
const (
	CmdUnlock1 = 0x40
	CmdUnlock2 = 0x43
)

// MaxFWT is the frame wait time for the unlock frames, in carrier cycles
const MaxFWT = 60000

// DetectTimeout bounds one Detect call
const DetectTimeout = 200 * time.Millisecond

// Detect activates an ISO14443A tag and tries the Gen1a unlock sequence.
// The transceiver must implement nfcmagic.BitExchanger.
func Detect(ctx context.Context, t nfcmagic.Transceiver) (nfcmagic.DetectResult, error) {
	bx, ok := t.(nfcmagic.BitExchanger)
	if !ok || !nfcmagic.HasCapability(t, nfcmagic.CapabilityBitFrames) {
		return nfcmagic.DetectResult{}, fmt.Errorf("%w: gen1a needs short frames", nfcmagic.ErrTechUnsupported)
	}

	fn := func(ctx context.Context) error {
		return unlock(ctx, bx)
	}

	err := nfcmagic.RunSession(ctx, t, nfcmagic.TechISO14443A, DetectTimeout, fn)
	switch {
	case err == nil:
		nfcmagic.Debugln("gen1a detected")
		return nfcmagic.DetectResult{Detected: true, Present: true}, nil
	case errors.Is(err, nfcmagic.ErrSessionTimeout):
		return nfcmagic.DetectResult{}, nil
	case nfcmagic.KindOf(err) != nfcmagic.KindNone:
		nfcmagic.Debugf("gen1a not detected: %v", err)
		return nfcmagic.DetectResult{Present: true}, nil
	default:
		return nfcmagic.DetectResult{}, err
	}
}

// unlock sends HLTA and both backdoor frames. HLTA is never answered, so
// its timeout is expected.
func unlock(ctx context.Context, bx nfcmagic.BitExchanger) error {
	hlta := iso14443a.HLTA()
	if _, _, err := bx.ExchangeBits(ctx, hlta, len(hlta)*8, MaxFWT); err != nil && !nfcmagic.IsTimeout(err) {
		return err
	}

	steps := []struct {
		cmd  byte
		bits int
	}{
		{cmd: CmdUnlock1, bits: iso14443a.ShortFrameBits},
		{cmd: CmdUnlock2, bits: 8},
	}
	for _, s := range steps {
		rx, rxBits, err := bx.ExchangeBits(ctx, []byte{s.cmd}, s.bits, MaxFWT)
		if err != nil {
			return err
		}
		if rxBits != iso14443a.ACKBits || len(rx) != 1 || rx[0]&0x0F != iso14443a.ACK {
			return nfcmagic.NewProtocolError(fmt.Sprintf("gen1a unlock 0x%02X", s.cmd),
				fmt.Errorf("%w: no ack", nfcmagic.ErrProtocol))
		}
	}
	return nil
}
