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
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"go.bug.st/serial"
)

// UARTBaudRate is the PN532 HSU default speed
const UARTBaudRate = 115200

// wakeUp takes the PN532 out of power-down before a command over HSU
var wakeUp = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// serialPort is the subset of serial.Port the UART commander uses. Read
// returns 0 bytes and no error when the read timeout expires.
type serialPort interface {
	io.ReadWriter
	Drain() error
	ResetInputBuffer() error
	Close() error
}

// UART is a Commander over the PN532 high speed UART.
type UART struct {
	port serialPort
	name string
	buf  []byte
	mu   syncutil.Mutex
}

func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// OpenUART opens a serial port at 115200 8N1
func OpenUART(name string) (*UART, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: UARTBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open uart %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set uart read timeout: %w", err)
	}
	return NewUART(port, name), nil
}

// NewUART wraps an already open port
func NewUART(port serialPort, name string) *UART {
	return &UART{port: port, name: name}
}

func (u *UART) String() string {
	return "uart:" + u.name
}

// Close closes the serial port
func (u *UART) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", u, err)
	}
	return nil
}

// Command implements Commander
func (u *UART) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	req, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.port.ResetInputBuffer(); err != nil {
		nfcmagic.Debugf("%s: reset input buffer: %v", u, err)
	}
	u.buf = u.buf[:0]

	if err := u.write(append(append([]byte{}, wakeUp...), req...)); err != nil {
		return nil, err
	}
	if err := u.waitACK(ctx); err != nil {
		return nil, fmt.Errorf("%s command 0x%02X: %w", u, cmd, err)
	}

	deadline := responseDeadline(ctx)
	for attempt := 0; ; attempt++ {
		f, err := u.readFrame(ctx, deadline)
		if err == nil {
			return responseData(cmd, f)
		}
		corrupt := errors.Is(err, frame.ErrDataChecksum) || errors.Is(err, frame.ErrLengthChecksum)
		if !corrupt || attempt >= maxResponseRetransmits {
			return nil, fmt.Errorf("%s command 0x%02X: %w", u, cmd, err)
		}
		nfcmagic.Debugf("%s: corrupt response, requesting retransmit: %v", u, err)
		if err := u.write(frame.NACK); err != nil {
			return nil, err
		}
	}
}

func (u *UART) write(b []byte) error {
	n, err := u.port.Write(b)
	if err != nil {
		return fmt.Errorf("%s write: %w", u, err)
	}
	if n != len(b) {
		return fmt.Errorf("%s write: short write %d of %d bytes", u, n, len(b))
	}
	return u.drain()
}

// drain retries interrupted system calls, which some USB serial drivers
// return on a busy bus.
func (u *UART) drain() error {
	const maxRetries = 3
	var err error
	for attempt := range maxRetries {
		if err = u.port.Drain(); err == nil || !isInterrupted(err) {
			break
		}
		time.Sleep(time.Duration(2<<attempt) * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("%s drain: %w", u, err)
	}
	return nil
}

// waitACK skips anything that is not an ACK until the ack timeout.
func (u *UART) waitACK(ctx context.Context) error {
	deadline := time.Now().Add(ackTimeout)
	for {
		f, err := u.readFrame(ctx, deadline)
		switch {
		case errors.Is(err, ErrNoResponse):
			return ErrNoACK
		case err != nil && !isFrameError(err):
			return err
		case err == nil && f.Kind == frame.KindACK:
			return nil
		}
	}
}

// readFrame returns the next complete frame, reading from the port until
// deadline. Bytes before the frame are dropped.
func (u *UART) readFrame(ctx context.Context, deadline time.Time) (frame.Frame, error) {
	tmp := make([]byte, 64)
	for {
		f, n, err := frame.Decode(u.buf)
		u.buf = u.buf[n:]
		if !errors.Is(err, frame.ErrIncomplete) {
			return f, err
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}
		if time.Now().After(deadline) {
			return frame.Frame{}, ErrNoResponse
		}

		m, err := u.port.Read(tmp)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("%s read: %w", u, err)
		}
		u.buf = append(u.buf, tmp[:m]...)
	}
}

func isInterrupted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

func isFrameError(err error) bool {
	return errors.Is(err, frame.ErrDataChecksum) ||
		errors.Is(err, frame.ErrLengthChecksum) ||
		errors.Is(err, frame.ErrExtended)
}

// ListSerialPorts returns the serial ports present on the system
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

var _ Commander = (*UART)(nil)
