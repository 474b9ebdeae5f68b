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

package main

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-nfcmagic/transceiver"
	"github.com/ZaparooProject/go-nfcmagic/transceiver/acr122"
	"github.com/ZaparooProject/go-nfcmagic/transceiver/libnfc"
	"github.com/ZaparooProject/go-nfcmagic/transceiver/pn532"
)

// Backends
const (
	backendUART   = "uart"
	backendI2C    = "i2c"
	backendSPI    = "spi"
	backendACR122 = "acr122"
	backendLibNFC = "libnfc"
)

// newOpener resolves cfg to a function that opens the reader. The driver
// calls the same function to reopen it during recovery. A UART backend
// without a device path probes the serial ports for a PN532 first.
func newOpener(ctx context.Context, cfg *config) (transceiver.ReopenFunc, error) {
	device := cfg.device

	switch cfg.backend {
	case backendUART:
		if device == "" {
			_, _ = fmt.Println("Auto-detecting PN532 on serial ports...")
			found, err := pn532.FindUART(ctx, cfg.blocklist)
			if err != nil {
				return nil, err
			}
			device = found
		}
		return func() (transceiver.Link, error) {
			u, err := pn532.OpenUART(device)
			if err != nil {
				return nil, err
			}
			return pn532.NewLink(u), nil
		}, nil
	case backendI2C:
		if device == "" {
			return nil, fmt.Errorf("%s backend needs -device", backendI2C)
		}
		return func() (transceiver.Link, error) {
			c, err := pn532.OpenI2C(device)
			if err != nil {
				return nil, err
			}
			return pn532.NewLink(c), nil
		}, nil
	case backendSPI:
		if device == "" {
			return nil, fmt.Errorf("%s backend needs -device", backendSPI)
		}
		return func() (transceiver.Link, error) {
			c, err := pn532.OpenSPI(device)
			if err != nil {
				return nil, err
			}
			return pn532.NewLink(c), nil
		}, nil
	case backendACR122:
		return func() (transceiver.Link, error) {
			c, err := acr122.Open(device)
			if err != nil {
				return nil, err
			}
			return pn532.NewLink(c), nil
		}, nil
	case backendLibNFC:
		return func() (transceiver.Link, error) {
			l, err := libnfc.Open(device)
			if err != nil {
				return nil, err
			}
			return l, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
}

func openTransceiver(ctx context.Context, cfg *config) (*transceiver.Driver, error) {
	open, err := newOpener(ctx, cfg)
	if err != nil {
		return nil, err
	}
	link, err := open()
	if err != nil {
		return nil, fmt.Errorf("open %s reader: %w", cfg.backend, err)
	}
	if cfg.debug {
		_, _ = fmt.Printf("Opened %s\n", link)
	}

	tcfg := transceiver.DefaultConfig()
	if cfg.pollInterval > 0 {
		tcfg.PollInterval = cfg.pollInterval
	}
	return transceiver.New(link,
		transceiver.WithConfig(tcfg),
		transceiver.WithReopen(open),
	), nil
}
