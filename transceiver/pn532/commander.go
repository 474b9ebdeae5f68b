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

// Package pn532 drives an NXP PN532 as a transceiver.Link.
//
// The PN532 speaks the same host frames over every wire, so the package
// splits into a Commander per wire (UART, I2C, or the ACR122 pseudo-APDU
// commander in the acr122 package) and one Link that turns the PN532
// command set into raw ISO14443A exchanges.
package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
)

// Command codes
const (
	CmdGetFirmwareVersion  = 0x02
	CmdReadRegister        = 0x06
	CmdWriteRegister       = 0x08
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInCommunicateThru   = 0x42
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

const (
	defaultResponseTimeout = time.Second
	ackTimeout             = 100 * time.Millisecond
	maxResponseRetransmits = 3

	// maxFrameLength is the longest normal frame the PN532 sends
	maxFrameLength = frame.MaxDataLength + frame.Overhead
)

var (
	// ErrNoACK means the PN532 did not acknowledge a command frame
	ErrNoACK = errors.New("pn532 did not acknowledge command")
	// ErrNoResponse means the acknowledged command never produced a response
	ErrNoResponse = errors.New("pn532 response timeout")
	// ErrNotReady means the I2C ready byte never went high
	ErrNotReady = errors.New("pn532 not ready")
	// ErrApplication means the PN532 answered with an application error frame
	ErrApplication = errors.New("pn532 application error")
	// ErrUnexpectedResponse means the response did not match the command
	ErrUnexpectedResponse = errors.New("pn532 unexpected response")
)

// Commander sends one PN532 command and returns the response payload, which
// excludes the response code.
type Commander interface {
	Command(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
	String() string
}

// responseData validates that f answers cmd and strips the response code.
func responseData(cmd byte, f frame.Frame) ([]byte, error) {
	switch {
	case f.Kind == frame.KindError:
		return nil, fmt.Errorf("%w: command 0x%02X", ErrApplication, cmd)
	case f.Kind != frame.KindData || f.TFI != frame.PN532ToHost:
		return nil, fmt.Errorf("%w: %s frame with TFI 0x%02X", ErrUnexpectedResponse, f.Kind, f.TFI)
	case len(f.Data) == 0 || f.Data[0] != cmd+1:
		return nil, fmt.Errorf("%w: command 0x%02X answered with % X", ErrUnexpectedResponse, cmd, f.Data)
	}
	return f.Data[1:], nil
}

// responseDeadline is the context deadline, or the default response
// timeout when the context has none.
func responseDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(defaultResponseTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
