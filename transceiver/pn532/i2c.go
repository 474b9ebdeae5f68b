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
	"strings"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// I2CAddr is the 7-bit PN532 address. The datasheet's 0x48 includes the
	// R/W bit.
	I2CAddr = 0x24

	i2cSpeed      = 400 * physic.KiloHertz
	i2cReady      = 0x01
	maxReadyDelay = 8 * time.Millisecond
)

// i2cConn is the half-duplex transaction a periph i2c.Dev provides
type i2cConn interface {
	Tx(w, r []byte) error
}

// I2C is a Commander over the PN532 I2C interface. Every read transaction
// starts with a status byte that is 0x01 once the PN532 has data.
type I2C struct {
	dev  i2cConn
	bus  io.Closer
	name string
	mu   syncutil.Mutex
}

// OpenI2C opens the PN532 on an I2C bus such as "/dev/i2c-1" or "1". A
// ":addr" suffix on the bus name is ignored.
func OpenI2C(busName string) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}

	name, _, _ := strings.Cut(busName, ":")
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", name, err)
	}
	if err := bus.SetSpeed(i2cSpeed); err != nil {
		nfcmagic.Debugf("i2c %s: keeping default speed: %v", name, err)
	}

	c := NewI2C(&i2c.Dev{Addr: I2CAddr, Bus: bus}, name)
	c.bus = bus
	return c, nil
}

// NewI2C wraps an I2C device
func NewI2C(dev i2cConn, name string) *I2C {
	return &I2C{dev: dev, name: name}
}

func (c *I2C) String() string {
	return "i2c:" + c.name
}

// Close releases the bus
func (c *I2C) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return nil
	}
	if err := c.bus.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c, err)
	}
	return nil
}

// Command implements Commander
func (c *I2C) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
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

func (c *I2C) write(b []byte) error {
	if err := c.dev.Tx(b, nil); err != nil {
		return fmt.Errorf("%s write: %w", c, err)
	}
	return nil
}

func (c *I2C) waitACK(ctx context.Context) error {
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

// waitReady polls the status byte with a backoff of up to maxReadyDelay.
func (c *I2C) waitReady(ctx context.Context, deadline time.Time) error {
	status := make([]byte, 1)
	delay := time.Millisecond
	for {
		if err := c.dev.Tx(nil, status); err != nil {
			return fmt.Errorf("%s status read: %w", c, err)
		}
		if status[0] == i2cReady {
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

// readFrame reads n bytes after the status byte and decodes them.
func (c *I2C) readFrame(n int) (frame.Frame, error) {
	buf := make([]byte, 1+n)
	if err := c.dev.Tx(nil, buf); err != nil {
		return frame.Frame{}, fmt.Errorf("%s read: %w", c, err)
	}
	if buf[0] != i2cReady {
		return frame.Frame{}, ErrNotReady
	}
	f, _, err := frame.Decode(buf[1:])
	return f, err
}

var _ Commander = (*I2C)(nil)
