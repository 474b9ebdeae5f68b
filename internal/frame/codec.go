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

package frame

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed to finish the frame
	ErrIncomplete = errors.New("incomplete pn532 frame")
	// ErrLengthChecksum means LEN + LCS did not sum to zero
	ErrLengthChecksum = errors.New("pn532 frame length checksum mismatch")
	// ErrDataChecksum means TFI + DATA + DCS did not sum to zero
	ErrDataChecksum = errors.New("pn532 frame data checksum mismatch")
	// ErrTooLarge means the payload does not fit a normal frame
	ErrTooLarge = errors.New("pn532 frame payload too large")
	// ErrExtended means an extended frame was received
	ErrExtended = errors.New("pn532 extended frames not supported")
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindData Kind = iota
	KindACK
	KindNACK
	KindError
)

// String returns the frame kind name
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindACK:
		return "ack"
	case KindNACK:
		return "nack"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one decoded frame. Data excludes the TFI.
type Frame struct {
	Data []byte
	Kind Kind
	TFI  byte
}

// Build wraps tfi and data in a normal information frame.
func Build(tfi byte, data []byte) ([]byte, error) {
	n := 1 + len(data)
	if n > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}

	out := make([]byte, 0, n+Overhead)
	out = append(out, Preamble, StartCode1, StartCode2, byte(n), Checksum([]byte{byte(n)}), tfi)
	out = append(out, data...)
	out = append(out, Checksum(out[5:]), Postamble)
	return out, nil
}

// BuildCommand builds a host-to-PN532 frame for cmd.
func BuildCommand(cmd byte, args []byte) ([]byte, error) {
	data := make([]byte, 0, 1+len(args))
	data = append(data, cmd)
	data = append(data, args...)
	return Build(HostToPN532, data)
}

// BuildResponse builds a PN532-to-host frame answering cmd.
func BuildResponse(cmd byte, payload []byte) ([]byte, error) {
	data := make([]byte, 0, 1+len(payload))
	data = append(data, cmd+1)
	data = append(data, payload...)
	return Build(PN532ToHost, data)
}

// ErrorFrame is the application error frame
func ErrorFrame() []byte {
	out, _ := Build(ErrorTFI, nil)
	return out
}

// Decode finds the first frame in buf. n is how many bytes of buf were
// consumed, including any garbage before the start code; it is valid with
// checksum errors too so the caller can skip a bad frame. With
// ErrIncomplete, n is how much leading garbage can be discarded.
func Decode(buf []byte) (f Frame, n int, err error) {
	start := bytes.Index(buf, []byte{StartCode1, StartCode2})
	if start < 0 {
		if len(buf) > 0 && buf[len(buf)-1] == StartCode1 {
			return f, len(buf) - 1, ErrIncomplete
		}
		return f, len(buf), ErrIncomplete
	}

	p := start + 2
	if len(buf) < p+2 {
		return f, start, ErrIncomplete
	}
	length, lcs := buf[p], buf[p+1]

	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindACK}, trailing(buf, p+2), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNACK}, trailing(buf, p+2), nil
	case length == 0xFF && lcs == 0xFF:
		return f, p + 2, ErrExtended
	case length+lcs != 0:
		return f, p + 2, ErrLengthChecksum
	}

	body := p + 2
	end := body + int(length) + 1 // + DCS
	if len(buf) < end {
		return f, start, ErrIncomplete
	}
	if Sum(buf[body:end]) != 0 {
		return f, trailing(buf, end), ErrDataChecksum
	}

	f.TFI = buf[body]
	f.Data = append([]byte(nil), buf[body+1:end-1]...)
	f.Kind = KindData
	if f.TFI == ErrorTFI {
		f.Kind = KindError
	}
	return f, trailing(buf, end), nil
}

// trailing skips the postamble after a frame if it has already arrived.
func trailing(buf []byte, i int) int {
	if i < len(buf) && buf[i] == Postamble {
		return i + 1
	}
	return i
}

// IsACK reports whether b is exactly an ACK frame
func IsACK(b []byte) bool { return bytes.Equal(b, ACK) }

// IsNACK reports whether b is exactly a NACK frame
func IsNACK(b []byte) bool { return bytes.Equal(b, NACK) }
