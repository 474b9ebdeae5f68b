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

// Package acr122 carries PN532 commands to an ACS ACR122U over PC/SC.
//
// The ACR122U wraps its PN532 behind a CCID interface. Host commands go
// out as the pseudo-APDU FF 00 00 00 Lc D4 <cmd> <args> and come back as
// D5 <cmd+1> <payload> 90 00, so a Commander here plugs straight into
// pn532.NewLink.
package acr122

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/transceiver/pn532"
	"github.com/ebfe/scard"
)

// ReaderHint is matched against PC/SC reader names when none is given
const ReaderHint = "ACR122"

// maxArgs keeps Lc within one byte after the TFI and command code
const maxArgs = 0xFF - 2

var (
	// ErrNoReader means no PC/SC reader matched
	ErrNoReader = errors.New("no acr122 reader found")
	// ErrStatusWord means the reader answered with a status other than 90 00
	ErrStatusWord = errors.New("acr122 status word")
)

// card is the part of *scard.Card a Commander uses
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Commander implements pn532.Commander for one PC/SC reader. The card
// handle is connected lazily because PC/SC refuses a shared connection
// while the field is empty.
type Commander struct {
	connect func() (card, error)
	release func() error
	card    card
	reader  string
	mu      sync.Mutex
}

var _ pn532.Commander = (*Commander)(nil)

// Open establishes a PC/SC context and binds the named reader. An empty
// name picks the first reader whose name contains ReaderHint.
func Open(reader string) (*Commander, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}

	readers, err := sctx.ListReaders()
	if err != nil {
		_ = sctx.Release()
		return nil, fmt.Errorf("list pcsc readers: %w", err)
	}
	nfcmagic.Debugf("pcsc readers: %v", readers)

	name, err := pickReader(readers, reader)
	if err != nil {
		_ = sctx.Release()
		return nil, err
	}

	connect := func() (card, error) {
		c, err := sctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return newCommander(name, connect, sctx.Release), nil
}

func newCommander(reader string, connect func() (card, error), release func() error) *Commander {
	return &Commander{reader: reader, connect: connect, release: release}
}

// ListReaders returns the PC/SC readers that look like an ACR122
func ListReaders() ([]string, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}
	defer func() { _ = sctx.Release() }()

	readers, err := sctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list pcsc readers: %w", err)
	}
	var out []string
	for _, r := range readers {
		if strings.Contains(r, ReaderHint) {
			out = append(out, r)
		}
	}
	return out, nil
}

func pickReader(readers []string, want string) (string, error) {
	for _, r := range readers {
		if want != "" && r == want {
			return r, nil
		}
		if want == "" && strings.Contains(r, ReaderHint) {
			return r, nil
		}
	}
	if want != "" {
		return "", fmt.Errorf("%w: %q", ErrNoReader, want)
	}
	return "", ErrNoReader
}

func (c *Commander) String() string {
	return "acr122:" + c.reader
}

// Command wraps cmd in the direct transmit pseudo-APDU. An empty field
// surfaces as a not-present exchange error so a polling driver treats it
// like any other absent tag.
func (c *Commander) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(args) > maxArgs {
		return nil, fmt.Errorf("%w: %d argument bytes", nfcmagic.ErrInvalidParameter, len(args))
	}

	apdu := make([]byte, 0, 7+len(args))
	apdu = append(apdu, 0xFF, 0x00, 0x00, 0x00, byte(len(args)+2), frame.HostToPN532, cmd)
	apdu = append(apdu, args...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.card == nil {
		h, err := c.connect()
		if err != nil {
			if cardGone(err) {
				return nil, nfcmagic.NewNotPresentError("acr122 connect")
			}
			return nil, fmt.Errorf("connect %s: %w", c.reader, err)
		}
		c.card = h
	}

	nfcmagic.Debugf("acr122 TX: % X", apdu)
	resp, err := c.card.Transmit(apdu)
	if err != nil {
		c.disconnectLocked()
		if cardGone(err) {
			return nil, nfcmagic.NewNotPresentError("acr122 transmit")
		}
		return nil, fmt.Errorf("transmit: %w", err)
	}
	nfcmagic.Debugf("acr122 RX: % X", resp)

	return parseResponse(cmd, resp)
}

func parseResponse(cmd byte, resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: % X", pn532.ErrUnexpectedResponse, resp)
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, fmt.Errorf("%w %02X %02X: command 0x%02X", ErrStatusWord, sw1, sw2, cmd)
	}
	data := resp[:len(resp)-2]
	if len(data) >= 2 && data[0] == frame.PN532ToHost && data[1] == frame.ErrorTFI {
		return nil, fmt.Errorf("%w: command 0x%02X", pn532.ErrApplication, cmd)
	}
	if len(data) < 2 || data[0] != frame.PN532ToHost || data[1] != cmd+1 {
		return nil, fmt.Errorf("%w: command 0x%02X answered with % X", pn532.ErrUnexpectedResponse, cmd, data)
	}
	return data[2:], nil
}

func cardGone(err error) bool {
	return errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrUnpoweredCard)
}

func (c *Commander) disconnectLocked() {
	if c.card == nil {
		return
	}
	if err := c.card.Disconnect(scard.ResetCard); err != nil {
		nfcmagic.Debugf("acr122 disconnect: %v", err)
	}
	c.card = nil
}

// Close drops the card handle and releases the PC/SC context
func (c *Commander) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	if c.release == nil {
		return nil
	}
	release := c.release
	c.release = nil
	if err := release(); err != nil {
		return fmt.Errorf("release pcsc context: %w", err)
	}
	return nil
}
