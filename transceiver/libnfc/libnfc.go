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

// Package libnfc is a transceiver.Link over libnfc, for readers that
// already have a libnfc driver (PN53x over USB, ACR122 through its own
// driver, and so on).
package libnfc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/transceiver"
	"github.com/clausecker/nfc/v2"
)

const (
	// pollPeriod is one libnfc poll period unit
	pollPeriod   = 150 * time.Millisecond
	rxBufferSize = 264
)

// device is the part of nfc.Device a Link uses
type device interface {
	InitiatorInit() error
	SetPropertyBool(property int, value bool) error
	InitiatorPollTarget(mods []nfc.Modulation, pollNr int, period time.Duration) (int, nfc.Target, error)
	InitiatorTransceiveBytes(tx, rx []byte, timeout int) (int, error)
	InitiatorTransceiveBits(tx, txPar []byte, cnt uint, rx, rxPar []byte) (int, error)
	InitiatorDeselectTarget() error
	Close() error
	String() string
}

var typeA = []nfc.Modulation{{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}}

// Link drives one libnfc device as a raw ISO14443A initiator
type Link struct {
	dev    device
	name   string
	uid    []byte
	sak    byte
	ready  bool
	raw    bool
	active bool
}

var (
	_ transceiver.BitLink  = (*Link)(nil)
	_ transceiver.Resetter = (*Link)(nil)
)

// Open opens a libnfc connection string such as "pn532_uart:/dev/ttyUSB0".
// An empty string lets libnfc pick the first device it finds.
func Open(conn string) (*Link, error) {
	dev, err := nfc.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open libnfc device %q: %w", conn, err)
	}
	return newLink(dev), nil
}

func newLink(dev device) *Link {
	return &Link{dev: dev, name: dev.String()}
}

// ListDevices returns the connection strings libnfc can see
func ListDevices() ([]string, error) {
	devices, err := nfc.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list libnfc devices: %w", err)
	}
	return devices, nil
}

func (l *Link) String() string {
	return "libnfc:" + l.name
}

// UID returns the UID of the last activated tag
func (l *Link) UID() []byte {
	return l.uid
}

// SAK returns the SAK of the last activated tag
func (l *Link) SAK() byte {
	return l.sak
}

// Init puts the device in initiator mode
func (l *Link) Init(context.Context) error {
	if err := l.dev.InitiatorInit(); err != nil {
		return fmt.Errorf("initiator init: %w", err)
	}
	if err := l.dev.SetPropertyBool(nfc.InfiniteSelect, false); err != nil {
		return fmt.Errorf("disable infinite select: %w", err)
	}
	l.raw = false
	l.ready = true
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
		return fmt.Errorf("%w: libnfc link only drives %s", nfcmagic.ErrTechUnsupported, nfcmagic.TechISO14443A)
	}
	return nil
}

// HasCapability implements transceiver.Link
func (*Link) HasCapability(c nfcmagic.Capability) bool {
	return c == nfcmagic.CapabilityISO14443A || c == nfcmagic.CapabilityBitFrames
}

// Activate polls once for a type A tag, then turns off CRC handling and
// easy framing so frames go out exactly as given.
func (l *Link) Activate(ctx context.Context) error {
	if !l.ready {
		if err := l.Init(ctx); err != nil {
			return err
		}
	}
	l.active = false

	if err := l.setRaw(false); err != nil {
		return err
	}
	count, target, err := l.dev.InitiatorPollTarget(typeA, 1, pollPeriod)
	if err != nil && !errors.Is(err, nfc.Error(nfc.ETIMEOUT)) {
		return fmt.Errorf("poll target: %w", err)
	}
	if count <= 0 || target == nil {
		return nfcmagic.NewNotPresentError("activate")
	}
	if a, ok := target.(*nfc.ISO14443aTarget); ok && int(a.UIDLen) <= len(a.UID) {
		l.uid = append([]byte(nil), a.UID[:a.UIDLen]...)
		l.sak = a.Sak
	}

	if err := l.setRaw(true); err != nil {
		return err
	}
	l.active = true
	return nil
}

func (l *Link) setRaw(raw bool) error {
	if l.raw == raw {
		return nil
	}
	if err := l.dev.SetPropertyBool(nfc.HandleCRC, !raw); err != nil {
		return fmt.Errorf("handle crc: %w", err)
	}
	if err := l.dev.SetPropertyBool(nfc.EasyFraming, !raw); err != nil {
		return fmt.Errorf("easy framing: %w", err)
	}
	l.raw = raw
	return nil
}

// Transceive implements transceiver.Link. libnfc takes whole
// milliseconds, so the timeout is rounded up.
func (l *Link) Transceive(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	if !l.active {
		return nil, nfcmagic.NewNotPresentError("transceive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rx := make([]byte, rxBufferSize)
	n, err := l.dev.InitiatorTransceiveBytes(tx, rx, timeoutMillis(timeout))
	if err != nil {
		return nil, exchangeError("transceive", err)
	}
	return rx[:n], nil
}

// TransceiveBits implements transceiver.BitLink. libnfc applies its own
// command timeout to bit frames.
func (l *Link) TransceiveBits(
	ctx context.Context, tx []byte, txBits int, _ time.Duration,
) (rx []byte, rxBits int, err error) {
	if txBits <= 0 || (txBits+7)/8 != len(tx) {
		return nil, 0, fmt.Errorf("%w: %d bits in %d bytes", nfcmagic.ErrInvalidParameter, txBits, len(tx))
	}
	if !l.active {
		return nil, 0, nfcmagic.NewNotPresentError("transceive bits")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	buf := make([]byte, rxBufferSize)
	n, err := l.dev.InitiatorTransceiveBits(tx, nil, uint(txBits), buf, nil)
	if err != nil {
		return nil, 0, exchangeError("transceive bits", err)
	}
	return buf[:(n+7)/8], n, nil
}

func timeoutMillis(d time.Duration) int {
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}

// exchangeError maps libnfc error codes to exchange error kinds. Anything
// not listed stays unclassified and counts as a reader failure.
func exchangeError(op string, err error) error {
	switch {
	case errors.Is(err, nfc.Error(nfc.ETIMEOUT)):
		return nfcmagic.NewExchangeError(op, nfcmagic.KindTimeout, err)
	case errors.Is(err, nfc.Error(nfc.ETGRELEASED)):
		return nfcmagic.NewExchangeError(op, nfcmagic.KindNotPresent, err)
	case errors.Is(err, nfc.Error(nfc.ERFTRANS)):
		return nfcmagic.NewExchangeError(op, nfcmagic.KindProtocol, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Release implements transceiver.Link
func (l *Link) Release() error {
	if !l.active {
		return nil
	}
	l.active = false
	if err := l.dev.InitiatorDeselectTarget(); err != nil {
		return fmt.Errorf("deselect target: %w", err)
	}
	return nil
}

// Close implements transceiver.Link
func (l *Link) Close() error {
	l.active = false
	if err := l.dev.Close(); err != nil {
		return fmt.Errorf("close %s: %w", l.name, err)
	}
	return nil
}
