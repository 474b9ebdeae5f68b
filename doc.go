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

// Package nfcmagic identifies and reprograms "magic" contactless cards.
//
// The root package defines the Transceiver contract that every protocol
// engine drives, the error taxonomy shared by all exchanges, and the
// debug logging used throughout the module. Family support lives in
// subpackages:
//
//   - iso15693: request building, response validation and CRC
//   - iso14443a: CRC_A and short-frame constants
//   - slix: NXP SLIX record, operations, poller state machine and detection
//   - gen1a, gen4: lightweight detectors for ISO14443A magic cards
//   - scanner: runs the family detectors in priority order
//   - transceiver: Transceiver implementations for PN532, ACR122 and libnfc readers
//
// A typical SLIX wipe runs detection first, seeds the poller with the
// detected record, then drives the poller from a callback:
//
//	var rec slix.Record
//	if ok, _ := slix.Detect(ctx, t, &rec); !ok {
//	    return
//	}
//	p := slix.New(t)
//	p.SetData(rec)
//	_ = p.Start(func(ev slix.Event) slix.Response {
//	    switch ev.Type {
//	    case slix.EventTypeRequestMode:
//	        return slix.SelectMode(slix.ModeWipe)
//	    case slix.EventTypeSuccess, slix.EventTypeFail:
//	        return slix.Stop()
//	    }
//	    return slix.Continue()
//	})
package nfcmagic
