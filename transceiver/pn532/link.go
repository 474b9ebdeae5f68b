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
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
)

// CIU registers used for raw ISO14443A framing
const (
	RegTxMode     = 0x6302
	RegRxMode     = 0x6303
	RegControl    = 0x633C
	RegBitFraming = 0x633D

	crcEnable    = 0x80
	lastBitsMask = 0x07
)

// RFConfiguration items
const (
	rfItemTimings    = 0x02
	rfItemMaxRetries = 0x05
)

// Status codes returned by InCommunicateThru, lower six bits
const (
	StatusOK          = 0x00
	StatusTimeout     = 0x01
	StatusCRC         = 0x02
	StatusParity      = 0x03
	StatusBitCount    = 0x04
	StatusFraming     = 0x05
	StatusCollision   = 0x06
	StatusRFNotActive = 0x0A
	StatusReleased    = 0x29
	statusMask        = 0x3F
)

// ErrStatus is the cause of a failed InCommunicateThru
var ErrStatus = errors.New("pn532 exchange status")

// commandOverhead is added to the PN532's own timeout to get the host
// deadline for one InCommunicateThru.
const commandOverhead = 100 * time.Millisecond

// FirmwareVersion is the GetFirmwareVersion response
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Target is the ISO14443A target selected by the last activation
type Target struct {
	UID  []byte
	ATQA [2]byte
	SAK  byte
}

// Link is a transceiver.Link over a PN532 Commander. Only ISO14443A at
// 106 kbit/s is available; the PN532 has no ISO15693 front end.
type Link struct {
	cmd         Commander
	firmware    FirmwareVersion
	target      Target
	timeoutCode byte
	bitFraming  byte
	ready       bool
	active      bool
}

// NewLink creates a link over c. The PN532 is configured on first use.
func NewLink(c Commander) *Link {
	return &Link{cmd: c}
}

func (l *Link) String() string {
	return "pn532/" + l.cmd.String()
}

// Firmware returns the version read during initialisation
func (l *Link) Firmware() FirmwareVersion {
	return l.firmware
}

// Target returns the tag selected by the last successful activation
func (l *Link) Target() Target {
	return l.target
}

// Init reads the firmware version, puts the SAM in normal mode and makes
// InListPassiveTarget try only once.
func (l *Link) Init(ctx context.Context) error {
	resp, err := l.cmd.Command(ctx, CmdGetFirmwareVersion, nil)
	if err != nil {
		return fmt.Errorf("get firmware version: %w", err)
	}
	if len(resp) < 4 {
		return fmt.Errorf("get firmware version: %w: % X", ErrUnexpectedResponse, resp)
	}
	l.firmware = FirmwareVersion{IC: resp[0], Version: resp[1], Revision: resp[2], Support: resp[3]}

	if _, err := l.cmd.Command(ctx, CmdSAMConfiguration, []byte{0x01, 0x14, 0x01}); err != nil {
		return fmt.Errorf("sam configuration: %w", err)
	}
	if _, err := l.cmd.Command(ctx, CmdRFConfiguration, []byte{rfItemMaxRetries, 0xFF, 0x01, 0x00}); err != nil {
		return fmt.Errorf("rf configuration: %w", err)
	}

	l.timeoutCode = 0
	l.ready = true
	nfcmagic.Debugf("%s: %s", l, l.firmware)
	return nil
}

// Reset re-runs Init
func (l *Link) Reset(ctx context.Context) error {
	l.ready = false
	l.active = false
	return l.Init(ctx)
}

// SetTech implements transceiver.Link
func (*Link) SetTech(tech nfcmagic.Tech) error {
	if tech != nfcmagic.TechISO14443A {
		return fmt.Errorf("%w: pn532 has no %s front end", nfcmagic.ErrTechUnsupported, tech)
	}
	return nil
}

// HasCapability implements transceiver.Link
func (*Link) HasCapability(c nfcmagic.Capability) bool {
	return c == nfcmagic.CapabilityISO14443A || c == nfcmagic.CapabilityBitFrames
}

// Activate selects one ISO14443A tag and switches the CIU to raw framing
// with CRC generation and checking off.
func (l *Link) Activate(ctx context.Context) error {
	if !l.ready {
		if err := l.Init(ctx); err != nil {
			return err
		}
	}
	l.active = false

	resp, err := l.cmd.Command(ctx, CmdInListPassiveTarget, []byte{0x01, 0x00})
	if err != nil {
		return fmt.Errorf("in list passive target: %w", err)
	}
	target, err := parseTarget(resp)
	if err != nil {
		return err
	}

	regs := []byte{
		RegTxMode >> 8, RegTxMode & 0xFF, 0x00,
		RegRxMode >> 8, RegRxMode & 0xFF, 0x00,
		RegBitFraming >> 8, RegBitFraming & 0xFF, 0x00,
	}
	if _, err := l.cmd.Command(ctx, CmdWriteRegister, regs); err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}

	l.target = target
	l.bitFraming = 0
	l.active = true
	return nil
}

// parseTarget decodes an InListPassiveTarget response for 106 kbit/s type A.
func parseTarget(resp []byte) (Target, error) {
	if len(resp) == 0 || resp[0] == 0 {
		return Target{}, nfcmagic.NewNotPresentError("activate")
	}
	// NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID...
	if len(resp) < 6 || len(resp) < 6+int(resp[5]) {
		return Target{}, nfcmagic.NewProtocolError("activate", fmt.Errorf("%w: % X", nfcmagic.ErrUnexpectedLength, resp))
	}
	return Target{
		ATQA: [2]byte{resp[2], resp[3]},
		SAK:  resp[4],
		UID:  append([]byte(nil), resp[6:6+int(resp[5])]...),
	}, nil
}

// Transceive implements transceiver.Link
func (l *Link) Transceive(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	if !l.active {
		return nil, nfcmagic.NewNotPresentError("transceive")
	}
	if err := l.setBitFraming(ctx, 0); err != nil {
		return nil, err
	}
	return l.communicate(ctx, tx, timeout)
}

// TransceiveBits implements transceiver.BitLink. A final partial byte is
// sent and received through the CIU bit framing registers.
func (l *Link) TransceiveBits(
	ctx context.Context, tx []byte, txBits int, timeout time.Duration,
) (rx []byte, rxBits int, err error) {
	if txBits <= 0 || (txBits+7)/8 != len(tx) {
		return nil, 0, fmt.Errorf("%w: %d bits in %d bytes", nfcmagic.ErrInvalidParameter, txBits, len(tx))
	}
	if !l.active {
		return nil, 0, nfcmagic.NewNotPresentError("transceive bits")
	}
	if err := l.setBitFraming(ctx, byte(txBits%8)); err != nil {
		return nil, 0, err
	}

	rx, err = l.communicate(ctx, tx, timeout)
	if err != nil {
		return nil, 0, err
	}
	if len(rx) == 0 {
		return rx, 0, nil
	}

	ctrl, err := l.readRegister(ctx, RegControl)
	if err != nil {
		return nil, 0, err
	}
	rxBits = len(rx) * 8
	if last := int(ctrl & lastBitsMask); last != 0 {
		rxBits = (len(rx)-1)*8 + last
	}
	return rx, rxBits, nil
}

func (l *Link) communicate(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	if err := l.setTimeout(ctx, timeout); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout+commandOverhead)
	defer cancel()

	resp, err := l.cmd.Command(cctx, CmdInCommunicateThru, tx)
	if err != nil {
		return nil, fmt.Errorf("in communicate thru: %w", err)
	}
	if len(resp) == 0 {
		return nil, nfcmagic.NewProtocolError("transceive", nfcmagic.ErrFrameTooShort)
	}
	if err := statusError(resp[0]); err != nil {
		return nil, err
	}
	return resp[1:], nil
}

// statusError maps an InCommunicateThru status byte to the exchange error
// taxonomy.
func statusError(status byte) error {
	code := status & statusMask
	switch code {
	case StatusOK:
		return nil
	case StatusTimeout:
		return nfcmagic.NewTimeoutError("transceive")
	case StatusRFNotActive, StatusReleased:
		return nfcmagic.NewNotPresentError("transceive")
	default:
		return nfcmagic.NewProtocolError("transceive", fmt.Errorf("%w 0x%02X", ErrStatus, code))
	}
}

// setTimeout programs the PN532's own InCommunicateThru timeout when it
// changes.
func (l *Link) setTimeout(ctx context.Context, timeout time.Duration) error {
	code := TimeoutCode(timeout)
	if code == l.timeoutCode {
		return nil
	}
	if _, err := l.cmd.Command(ctx, CmdRFConfiguration, []byte{rfItemTimings, 0x00, 0x0B, code}); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	l.timeoutCode = code
	return nil
}

// TimeoutCode returns the smallest RFConfiguration timeout code that is at
// least d. Code n means 100µs * 2^(n-1); 0x10 (about 3.3 s) is the largest.
func TimeoutCode(d time.Duration) byte {
	step := 100 * time.Microsecond
	for code := byte(0x01); code < 0x10; code++ {
		if d <= step {
			return code
		}
		step *= 2
	}
	return 0x10
}

func (l *Link) setBitFraming(ctx context.Context, lastBits byte) error {
	if lastBits == l.bitFraming {
		return nil
	}
	args := []byte{RegBitFraming >> 8, RegBitFraming & 0xFF, lastBits}
	if _, err := l.cmd.Command(ctx, CmdWriteRegister, args); err != nil {
		return fmt.Errorf("bit framing: %w", err)
	}
	l.bitFraming = lastBits
	return nil
}

func (l *Link) readRegister(ctx context.Context, reg uint16) (byte, error) {
	resp, err := l.cmd.Command(ctx, CmdReadRegister, []byte{byte(reg >> 8), byte(reg)})
	if err != nil {
		return 0, fmt.Errorf("read register 0x%04X: %w", reg, err)
	}
	if len(resp) != 1 {
		return 0, fmt.Errorf("read register 0x%04X: %w: % X", reg, ErrUnexpectedResponse, resp)
	}
	return resp[0], nil
}

// Release implements transceiver.Link
func (l *Link) Release() error {
	if !l.active {
		return nil
	}
	l.active = false

	ctx, cancel := context.WithTimeout(context.Background(), defaultResponseTimeout)
	defer cancel()
	if _, err := l.cmd.Command(ctx, CmdInRelease, []byte{0x00}); err != nil {
		return fmt.Errorf("in release: %w", err)
	}
	return nil
}

// Close closes the commander
func (l *Link) Close() error {
	l.active = false
	return l.cmd.Close()
}
