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

package pn532

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"go.bug.st/serial/enumerator"
)

// probeTimeout bounds the firmware query sent to each candidate port
const probeTimeout = 500 * time.Millisecond

// ErrNoDevice means no serial port answered like a PN532
var ErrNoDevice = errors.New("no pn532 found")

// USB serial bridges commonly found on PN532 boards, as VID:PID
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var (
	portNamePatterns = []string{"usbserial", "slab_usbtouart", "usbmodem", "ttyusb", "ttyacm"}
	productKeywords  = []string{"pn532", "nfc", "rfid", "13.56"}
)

// Candidate is a serial port that may have a PN532 behind it
type Candidate struct {
	Path    string
	VIDPID  string
	Product string
	// Known is set when the USB bridge or product string matched
	Known bool
}

// Candidates lists serial ports worth probing, known bridges first.
// Ports whose VID:PID is in blocklist are never returned.
func Candidates(blocklist []string) ([]Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return filterPorts(ports, blocklist), nil
}

func filterPorts(ports []*enumerator.PortDetails, blocklist []string) []Candidate {
	var out []Candidate
	for _, p := range ports {
		c := Candidate{Path: p.Name, Product: p.Product}
		if p.IsUSB {
			c.VIDPID = strings.ToUpper(p.VID + ":" + p.PID)
		}
		if c.VIDPID != "" && IsBlocked(c.VIDPID, blocklist) {
			nfcmagic.Debugf("skipping blocked port %s (%s)", c.Path, c.VIDPID)
			continue
		}
		c.Known = isKnownBridge(c.VIDPID) || containsAny(c.Product, productKeywords)
		if !c.Known && !containsAny(c.Path, portNamePatterns) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Known && !out[j].Known })
	return out
}

// IsBlocked reports whether vidpid is in blocklist, ignoring case
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, b := range blocklist {
		if strings.ToUpper(strings.TrimSpace(b)) == vidpid {
			return true
		}
	}
	return false
}

func isKnownBridge(vidpid string) bool {
	for _, k := range knownBridges {
		if vidpid == k {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FindUART probes the candidate ports in order and returns the first one
// that answers GetFirmwareVersion. Each port gets exactly one attempt.
func FindUART(ctx context.Context, blocklist []string) (string, error) {
	cands, err := Candidates(blocklist)
	if err != nil {
		return "", err
	}
	return findUART(ctx, cands, probeUART)
}

func findUART(ctx context.Context, cands []Candidate, probe func(context.Context, string) error) (string, error) {
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := probe(ctx, c.Path)
		if err == nil {
			nfcmagic.Debugf("found pn532 on %s", c.Path)
			return c.Path, nil
		}
		nfcmagic.Debugf("probe %s: %v", c.Path, err)
	}
	return "", ErrNoDevice
}

func probeUART(ctx context.Context, path string) error {
	u, err := OpenUART(path)
	if err != nil {
		return err
	}
	defer func() { _ = u.Close() }()

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err = u.Command(pctx, CmdGetFirmwareVersion, nil)
	return err
}
