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

package testing

import (
	"errors"
	"sync"

	"github.com/ZaparooProject/go-nfcmagic"
	"github.com/ZaparooProject/go-nfcmagic/internal/frame"
	"github.com/ZaparooProject/go-nfcmagic/iso14443a"
)

// PN532 commands the simulator answers
const (
	pnGetFirmwareVersion  = 0x02
	pnReadRegister        = 0x06
	pnWriteRegister       = 0x08
	pnSAMConfiguration    = 0x14
	pnRFConfiguration     = 0x32
	pnInCommunicateThru   = 0x42
	pnInListPassiveTarget = 0x4A
	pnInRelease           = 0x52
)

// CIU registers the simulator honours
const (
	regTxMode     = 0x6302
	regRxMode     = 0x6303
	regControl    = 0x633C
	regBitFraming = 0x633D
)

// InCommunicateThru status codes
const (
	pnStatusOK      = 0x00
	pnStatusTimeout = 0x01
	pnStatusCRC     = 0x02
	pnStatusCommand = 0x27
)

// SimTargetUID is the NFCID1 the simulator reports for any ISO14443A tag
var SimTargetUID = []byte{0x04, 0xA1, 0xB2, 0xC3}

// VirtualPN532 simulates a PN532 at the host frame level with a VirtualTag
// in its field. It is an io.ReadWriter for the UART commander and has the
// Tx method the I2C commander needs.
type VirtualPN532 struct {
	tag          VirtualTag
	regs         map[uint16]byte
	failCommands map[byte]bool
	in           []byte
	out          []byte
	lastResponse []byte
	commands     []byte
	rfConfigs    [][]byte
	mu           sync.Mutex
	firmware     [4]byte
	corruptNext  int
	dropACKs     int
	targetActive bool
}

// NewVirtualPN532 creates a PN532 v1.6 with tag in its field
func NewVirtualPN532(tag VirtualTag) *VirtualPN532 {
	return &VirtualPN532{
		tag:      tag,
		firmware: [4]byte{0x32, 0x01, 0x06, 0x07},
		regs: map[uint16]byte{
			regTxMode: 0x80,
			regRxMode: 0x80,
		},
		failCommands: map[byte]bool{},
	}
}

// SetTag replaces the tag in the field
func (v *VirtualPN532) SetTag(tag VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.targetActive = false
}

// CorruptResponses makes the next n transmissions, retransmissions
// included, carry a bad data checksum.
func (v *VirtualPN532) CorruptResponses(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = n
}

// DropACKs makes the simulator ignore the next n commands entirely
func (v *VirtualPN532) DropACKs(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropACKs = n
}

// FailCommand answers cmd with an application error frame
func (v *VirtualPN532) FailCommand(cmd byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failCommands[cmd] = true
}

// Commands returns the command codes received, in order
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// RFConfigurations returns the arguments of every RFConfiguration command
func (v *VirtualPN532) RFConfigurations() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.rfConfigs))
	copy(out, v.rfConfigs)
	return out
}

// Register returns the current value of a CIU register
func (v *VirtualPN532) Register(addr uint16) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[addr]
}

// Write implements io.Writer. Complete frames are processed immediately.
func (v *VirtualPN532) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.in = append(v.in, p...)
	for {
		f, n, err := frame.Decode(v.in)
		v.in = v.in[n:]
		if errors.Is(err, frame.ErrIncomplete) {
			return len(p), nil
		}
		if err != nil {
			continue
		}
		v.handleFrame(f)
	}
}

// Read implements io.Reader. It returns 0 bytes when nothing is pending,
// like a serial port whose read timeout expired.
func (v *VirtualPN532) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := copy(p, v.out)
	v.out = v.out[n:]
	return n, nil
}

// Tx is one I2C transaction. Reads start with the ready byte; a one byte
// read only polls it and consumes nothing.
func (v *VirtualPN532) Tx(w, r []byte) error {
	if len(w) > 0 {
		if _, err := v.Write(w); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	clear(r)
	if len(v.out) == 0 {
		return nil
	}
	r[0] = 0x01
	n := copy(r[1:], v.out)
	v.out = v.out[n:]
	return nil
}

// Pending reports whether response bytes are waiting to be read
func (v *VirtualPN532) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.out) > 0
}

func (v *VirtualPN532) handleFrame(f frame.Frame) {
	switch {
	case f.Kind == frame.KindNACK:
		v.send(v.lastResponse)
		return
	case f.Kind != frame.KindData || f.TFI != frame.HostToPN532 || len(f.Data) == 0:
		return
	}

	if v.dropACKs > 0 {
		v.dropACKs--
		return
	}

	cmd, args := f.Data[0], f.Data[1:]
	v.commands = append(v.commands, cmd)
	v.out = append(v.out, frame.ACK...)

	var resp []byte
	if v.failCommands[cmd] {
		resp = frame.ErrorFrame()
	} else if payload, ok := v.execute(cmd, args); ok {
		resp, _ = frame.BuildResponse(cmd, payload)
	} else {
		resp = frame.ErrorFrame()
	}
	v.lastResponse = resp
	v.send(resp)
}

// send queues a response, corrupting its checksum while CorruptResponses
// has budget left.
func (v *VirtualPN532) send(resp []byte) {
	if v.corruptNext > 0 && len(resp) >= 2 {
		v.corruptNext--
		bad := append([]byte(nil), resp...)
		bad[len(bad)-2] ^= 0xFF
		resp = bad
	}
	v.out = append(v.out, resp...)
}

func (v *VirtualPN532) execute(cmd byte, args []byte) ([]byte, bool) {
	switch cmd {
	case pnGetFirmwareVersion:
		return v.firmware[:], true
	case pnSAMConfiguration:
		return nil, len(args) >= 1
	case pnRFConfiguration:
		v.rfConfigs = append(v.rfConfigs, append([]byte(nil), args...))
		return nil, len(args) >= 1
	case pnReadRegister:
		if len(args)%2 != 0 {
			return nil, false
		}
		out := make([]byte, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			out = append(out, v.regs[uint16(args[i])<<8|uint16(args[i+1])])
		}
		return out, true
	case pnWriteRegister:
		if len(args)%3 != 0 {
			return nil, false
		}
		for i := 0; i < len(args); i += 3 {
			v.regs[uint16(args[i])<<8|uint16(args[i+1])] = args[i+2]
		}
		return nil, true
	case pnInListPassiveTarget:
		return v.listTarget(args)
	case pnInRelease:
		v.targetActive = false
		return []byte{pnStatusOK}, true
	case pnInCommunicateThru:
		return v.communicate(args), true
	default:
		return nil, false
	}
}

func (v *VirtualPN532) listTarget(args []byte) ([]byte, bool) {
	if len(args) < 2 {
		return nil, false
	}
	if args[1] != 0x00 || v.tag == nil || v.tag.Tech() != nfcmagic.TechISO14443A {
		return []byte{0x00}, true
	}

	// Selecting a target puts the CIU back into CRC mode
	v.regs[regTxMode] = 0x80
	v.regs[regRxMode] = 0x80
	v.targetActive = true

	out := []byte{0x01, 0x01, 0x00, 0x04, 0x08, byte(len(SimTargetUID))}
	return append(out, SimTargetUID...), true
}

func (v *VirtualPN532) communicate(tx []byte) []byte {
	if !v.targetActive || v.tag == nil {
		return []byte{pnStatusCommand}
	}

	data := append([]byte(nil), tx...)
	if v.regs[regTxMode]&0x80 != 0 {
		data = iso14443a.AppendCRC(data)
	}
	lastBits := int(v.regs[regBitFraming] & 0x07)
	bits := len(data) * 8
	if lastBits != 0 {
		bits = (len(data)-1)*8 + lastBits
	}

	var rx []byte
	var rxBits int
	var err error
	if bt, ok := v.tag.(BitTag); ok {
		rx, rxBits, err = bt.HandleBits(data, bits)
	} else {
		rx, err = v.tag.Handle(data)
		rxBits = len(rx) * 8
	}
	switch {
	case nfcmagic.IsTimeout(err):
		return []byte{pnStatusTimeout}
	case err != nil:
		return []byte{pnStatusCRC}
	}

	if v.regs[regRxMode]&0x80 != 0 {
		if !iso14443a.CheckCRC(rx) {
			return []byte{pnStatusCRC}
		}
		rx = iso14443a.TrimCRC(rx)
	}
	v.regs[regControl] = byte(rxBits % 8)
	return append([]byte{pnStatusOK}, rx...)
}
