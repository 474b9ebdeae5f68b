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

package nfcmagic

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "timeout", err: NewTimeoutError("inventory"), want: KindTimeout},
		{name: "not present", err: NewNotPresentError("select"), want: KindNotPresent},
		{name: "protocol crc", err: NewProtocolError("select", ErrCRCMismatch), want: KindProtocol},
		{name: "wrapped exchange error", err: fmt.Errorf("wipe: %w", NewTimeoutError("write")), want: KindTimeout},
		{name: "bare crc sentinel", err: ErrCRCMismatch, want: KindProtocol},
		{name: "card error", err: &CardError{Command: 0x21, Code: 0x10}, want: KindProtocol},
		{name: "bare timeout sentinel", err: ErrTimeout, want: KindTimeout},
		{name: "unrelated", err: errors.New("boom"), want: KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestExchangeError_Is(t *testing.T) {
	t.Parallel()

	err := NewProtocolError("get nxp system info", ErrUnexpectedLength)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorIs(t, err, ErrUnexpectedLength)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.True(t, IsProtocol(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "get nxp system info: unexpected response length", err.Error())

	timeout := NewTimeoutError("inventory")
	assert.ErrorIs(t, timeout, ErrTimeout)
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsRetryable(timeout))

	gone := NewNotPresentError("select")
	assert.ErrorIs(t, gone, ErrNotPresent)
	assert.True(t, IsNotPresent(gone))
}

func TestExchangeError_CardErrorCause(t *testing.T) {
	t.Parallel()

	err := NewProtocolError("write block", &CardError{Command: 0x21, Code: 0x12})
	assert.ErrorIs(t, err, ErrCardError)
	assert.ErrorIs(t, err, ErrProtocol)

	var ce *CardError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0x12), ce.Code)
	assert.Contains(t, err.Error(), "block is locked")
}

func TestCardErrorMeaning(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want string
		code byte
	}{
		{code: 0x01, want: "command not supported"},
		{code: 0x02, want: "command not recognized"},
		{code: 0x03, want: "option not supported"},
		{code: 0x0F, want: "unknown error"},
		{code: 0x10, want: "block not available"},
		{code: 0x11, want: "block already locked"},
		{code: 0x12, want: "block is locked"},
		{code: 0x13, want: "block not programmed"},
		{code: 0x14, want: "block not locked"},
		{code: 0xB0, want: "custom command error"},
		{code: 0x55, want: "unknown error code"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CardErrorMeaning(tt.code), "code 0x%02X", tt.code)
	}
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "protocol", KindProtocol.String())
	assert.Equal(t, "not present", KindNotPresent.String())
	assert.Equal(t, "none", KindNone.String())
}

func TestTraceBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("sim", TechISO15693, 3)
	tb.RecordTX([]byte{0x26, 0x01, 0x00}, "inventory")
	tb.RecordRX([]byte{0x00, 0x00}, "")
	tb.RecordTX([]byte{0x22, 0x25}, "select")
	tb.RecordTimeout("select")

	entries := tb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, TraceRX, entries[0].Direction)
	assert.Equal(t, "select", entries[1].Note)
	assert.Equal(t, "TIMEOUT: select", entries[2].Note)
	assert.Nil(t, tb.WrapError(nil))
}

func TestTraceBuffer_WrapError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("pn532", TechISO14443A, 0)
	data := []byte{0xCF, 0x00, 0x00, 0x00, 0x00, 0xC6}
	tb.RecordTX(data, "gen4 get config")
	data[0] = 0x00 // recorded copy must not alias
	tb.RecordTimeout("gen4 get config")

	err := tb.WrapError(NewTimeoutError("gen4 detect"))
	require.Error(t, err)
	assert.True(t, HasTrace(err))
	assert.ErrorIs(t, err, ErrTimeout)

	te := GetTrace(fmt.Errorf("scan: %w", err))
	require.NotNil(t, te)
	require.Len(t, te.Trace, 2)
	assert.Equal(t, byte(0xCF), te.Trace[0].Data[0])

	formatted := te.FormatTrace()
	assert.True(t, strings.HasPrefix(formatted, "[pn532:ISO14443A] RF trace (2 entries):"))
	assert.Contains(t, formatted, "> CF 00 00 00 00 C6 (gen4 get config)")
	assert.Contains(t, formatted, "< (empty) (TIMEOUT: gen4 get config)")

	tb.Clear()
	assert.Empty(t, tb.Entries())
	assert.Nil(t, GetTrace(errors.New("plain")))
}

func TestFormatHexBytes_Truncates(t *testing.T) {
	t.Parallel()

	data := make([]byte, 40)
	out := formatHexBytes(data)
	assert.True(t, strings.HasSuffix(out, "... (40 bytes total)"))
	assert.Equal(t, "(empty)", formatHexBytes(nil))
}
