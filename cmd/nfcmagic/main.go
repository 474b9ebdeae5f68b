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

// Command nfcmagic classifies magic NFC tags and runs SLIX wipe and info
// cycles against a PN532, ACR122U or libnfc reader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/gen4"
	"golang.org/x/sync/errgroup"
)

// Operations
const (
	opScan = "scan"
	opWipe = "wipe"
	opInfo = "info"
)

const defaultTimeout = 10 * time.Second

type config struct {
	backend      string
	device       string
	op           string
	logDir       string
	blocklist    []string
	timeout      time.Duration
	pollInterval time.Duration
	gen4Password gen4.Password
	debug        bool
	sessionLog   bool
}

// Package-level flag variables
var (
	flagBackend      string
	flagDevice       string
	flagOp           string
	flagGen4Password string
	flagConfig       string
	flagLogDir       string
	flagTimeout      time.Duration
	flagDebug        bool
	flagLog          bool
)

func init() {
	flag.StringVar(&flagBackend, "backend", backendUART, "Reader backend: uart, i2c, spi, acr122 or libnfc")
	flag.StringVar(&flagDevice, "device", "", "Serial port, I2C bus, SPI port, PC/SC reader or libnfc connection string")
	flag.StringVar(&flagOp, "op", opScan, "Operation: scan, wipe or info (wipe and info need an ISO15693 reader; the built-in backends are ISO14443A only)")
	flag.StringVar(&flagGen4Password, "gen4-password", "", "Gen4 password as 8 hex digits")
	flag.StringVar(&flagConfig, "config", "", "Optional ini file; flags given on the command line win")
	flag.StringVar(&flagLogDir, "log-dir", "", "Directory for the session log")
	flag.DurationVar(&flagTimeout, "timeout", defaultTimeout, "How long to wait for a tag")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagLog, "log", false, "Write a session log file")
}

// setFlags returns the names of the flags given on the command line
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// buildConfig layers the command line over the ini file over the defaults.
func buildConfig(file fileConfig, set map[string]bool) (*config, error) {
	cfg := &config{
		backend:      backendUART,
		op:           opScan,
		timeout:      defaultTimeout,
		gen4Password: gen4.DefaultPassword,
	}
	if err := file.apply(cfg); err != nil {
		return nil, err
	}

	if set["backend"] {
		cfg.backend = flagBackend
	}
	if set["device"] {
		cfg.device = flagDevice
	}
	if set["op"] {
		cfg.op = flagOp
	}
	if set["timeout"] {
		cfg.timeout = flagTimeout
	}
	if set["log-dir"] {
		cfg.logDir = flagLogDir
	}
	if set["debug"] {
		cfg.debug = flagDebug
	}
	if set["log"] {
		cfg.sessionLog = flagLog
	}
	if set["gen4-password"] {
		p, err := gen4.ParsePassword(flagGen4Password)
		if err != nil {
			return nil, fmt.Errorf("-gen4-password: %w", err)
		}
		cfg.gen4Password = p
	}

	switch cfg.op {
	case opScan, opWipe, opInfo:
	default:
		return nil, fmt.Errorf("unknown operation %q", cfg.op)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.timeout)
	}
	return cfg, nil
}

func parseConfig() (*config, error) {
	var file fileConfig
	if flagConfig != "" {
		var err error
		file, err = loadFileConfig(flagConfig)
		if err != nil {
			return nil, err
		}
	}
	cfg, err := buildConfig(file, setFlags())
	if err != nil {
		return nil, err
	}

	if cfg.debug {
		nfcmagic.SetDebugEnabled(true)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config) error {
	if cfg.sessionLog {
		path, err := nfcmagic.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		_, _ = fmt.Printf("Session log: %s\n", path)
		defer func() { _ = nfcmagic.CloseSessionLog() }()
	}

	d, err := openTransceiver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
		}
	}()

	switch cfg.op {
	case opWipe, opInfo:
		return runSlix(ctx, d, cfg, os.Stdout)
	default:
		return runScan(ctx, d, cfg, os.Stdout)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sigChan:
			_, _ = fmt.Print("\nShutting down gracefully...\n")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return run(gctx, cfg)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
