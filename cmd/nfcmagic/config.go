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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nfcmagic/gen4"
	"gopkg.in/ini.v1"
)

// fileConfig mirrors the ini file:
//
//	[reader]
//	backend = uart
//	device = /dev/ttyUSB0
//	poll_interval_ms = 50
//	blocklist = 10C4:EA60
//
//	[scan]
//	op = info
//	timeout_ms = 5000
//	gen4_password = 00000000
//
//	[log]
//	debug = true
//	session = true
//	dir = /tmp/nfcmagic
type fileConfig struct {
	Reader readerSection `ini:"reader"`
	Scan   scanSection   `ini:"scan"`
	Log    logSection    `ini:"log"`
}

type readerSection struct {
	Backend        string   `ini:"backend"`
	Device         string   `ini:"device"`
	Blocklist      []string `ini:"blocklist"`
	PollIntervalMS int      `ini:"poll_interval_ms"`
}

type scanSection struct {
	Op           string `ini:"op"`
	Gen4Password string `ini:"gen4_password"`
	TimeoutMS    int    `ini:"timeout_ms"`
}

type logSection struct {
	Dir     string `ini:"dir"`
	Debug   bool   `ini:"debug"`
	Session bool   `ini:"session"`
}

// loadFileConfig reads an ini file path or raw ini bytes. A value that
// does not parse as its field type is an error.
func loadFileConfig(source any) (fileConfig, error) {
	var fc fileConfig
	f, err := ini.Load(source)
	if err != nil {
		return fc, fmt.Errorf("load config: %w", err)
	}
	if err := f.StrictMapTo(&fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

// apply copies every value set in the file onto cfg
func (fc fileConfig) apply(cfg *config) error {
	if fc.Reader.Backend != "" {
		cfg.backend = fc.Reader.Backend
	}
	if fc.Reader.Device != "" {
		cfg.device = fc.Reader.Device
	}
	if len(fc.Reader.Blocklist) > 0 {
		cfg.blocklist = fc.Reader.Blocklist
	}
	if fc.Reader.PollIntervalMS > 0 {
		cfg.pollInterval = time.Duration(fc.Reader.PollIntervalMS) * time.Millisecond
	}

	if fc.Scan.Op != "" {
		cfg.op = fc.Scan.Op
	}
	if fc.Scan.TimeoutMS > 0 {
		cfg.timeout = time.Duration(fc.Scan.TimeoutMS) * time.Millisecond
	}
	if fc.Scan.Gen4Password != "" {
		p, err := gen4.ParsePassword(fc.Scan.Gen4Password)
		if err != nil {
			return fmt.Errorf("gen4_password: %w", err)
		}
		cfg.gen4Password = p
	}

	cfg.logDir = fc.Log.Dir
	cfg.debug = fc.Log.Debug
	cfg.sessionLog = fc.Log.Session
	return nil
}
