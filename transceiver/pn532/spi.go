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
	"math/bits"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPI operation bytes, sent before every transfer
const (
	spiDataWrite  = 0x01
	spiStatusRead = 0x02
	spiDataRead   = 0x03
	spiReady      = 0x01

	spiSpeed = 1 * physic.MegaHertz
)

// spiConn is the full-duplex transfer a periph spi.Conn provides
type spiConn interface {
	Tx(w, r []byte) error
}

// SPI is a Commander over the PN532 SPI interface. The PN532 shifts bits
// LSB first while most SPI masters shift MSB first, so every byte is bit
// reversed on the way in and out.
type SPI struct {
	conn spiConn
	port spi.PortCloser
	name string
	mu   syncutil.Mutex
}

// OpenSPI opens the PN532 on an SPI port such as "/dev/spidev0.0".
func OpenSPI(portName string) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi port %s: %w", portName, err)
	}
	conn, err := port.Connect(spiSpeed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi %s: %w", portName, err)
	}

	// A dummy transfer wakes the PN532 from power down
	time.Sleep(time.Millisecond)
	_ = conn.Tx([]byte{0x00}, make([]byte, 1))
	time.Sleep(time.Millisecond)

	c := NewSPI(conn, portName)
	c.port = port
	return c, nil
}

// NewSPI wraps an SPI connection
func NewSPI(conn spiConn, name string) *SPI {
	return &SPI{conn: conn, name: name}
}

func (c *SPI) String() string {
	return "spi:" + c.name
}

// Close releases the port
func (c *SPI) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	if err := c.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c, err)
	}
	return nil
}

// Command implements Commander
func (c *SPI) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	req, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(req); err != nil {
		return nil, err
	}
	if err := c.waitACK(ctx); err != nil {
		return nil, fmt.Errorf("%s command 0x%02X: %w", c, cmd, err)
	}

	deadline := responseDeadline(ctx)
	for attempt := 0; ; attempt++ {
		if err := c.waitReady(ctx, deadline); err != nil {
			if errors.Is(err, ErrNotReady) {
				err = ErrNoResponse
			}
			return nil, fmt.Errorf("%s command 0x%02X: %w", c, cmd, err)
		}

		f, err := c.readFrame(maxFrameLength)
		if err == nil {
			return responseData(cmd, f)
		}
		if attempt >= maxResponseRetransmits {
			return nil, fmt.Errorf("%s command 0x%02X: %w", c, cmd, err)
		}
		nfcmagic.Debugf("%s: bad response, requesting retransmit: %v", c, err)
		if err := c.write(frame.NACK); err != nil {
			return nil, err
		}
	}
}

// transfer sends op followed by out and returns the n bytes clocked in
// after op. Both directions are bit reversed.
func (c *SPI) transfer(op byte, out []byte, n int) ([]byte, error) {
	w := make([]byte, 1+max(len(out), n))
	r := make([]byte, len(w))
	w[0] = bits.Reverse8(op)
	for i, b := range out {
		w[1+i] = bits.Reverse8(b)
	}
	if err := c.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("%s transfer: %w", c, err)
	}
	in := r[1 : 1+n]
	for i, b := range in {
		in[i] = bits.Reverse8(b)
	}
	return in, nil
}

func (c *SPI) write(b []byte) error {
	_, err := c.transfer(spiDataWrite, b, 0)
	return err
}

func (c *SPI) waitACK(ctx context.Context) error {
	if err := c.waitReady(ctx, time.Now().Add(ackTimeout)); err != nil {
		if errors.Is(err, ErrNotReady) {
			return ErrNoACK
		}
		return err
	}
	f, err := c.readFrame(len(frame.ACK))
	if err != nil || f.Kind != frame.KindACK {
		return ErrNoACK
	}
	return nil
}

// waitReady polls the status register with a backoff of up to maxReadyDelay.
func (c *SPI) waitReady(ctx context.Context, deadline time.Time) error {
	delay := time.Millisecond
	for {
		status, err := c.transfer(spiStatusRead, nil, 1)
		if err != nil {
			return err
		}
		if status[0] == spiReady {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotReady
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = min(2*delay, maxReadyDelay)
	}
}

func (c *SPI) readFrame(n int) (frame.Frame, error) {
	buf, err := c.transfer(spiDataRead, nil, n)
	if err != nil {
		return frame.Frame{}, err
	}
	f, _, err := frame.Decode(buf)
	return f, err
}

var _ Commander = (*SPI)(nil)
