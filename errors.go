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
	"time"
)

// Error taxonomy. Every failed exchange is classified as exactly one of these.
var (
	// ErrTimeout means no response arrived within the frame wait time.
	ErrTimeout = errors.New("exchange timeout")
	// ErrProtocol means a response arrived but was malformed, failed its CRC,
	// had the wrong length or carried a card error.
	ErrProtocol = errors.New("protocol error")
	// ErrNotPresent means the tag left the field or the link dropped it.
	ErrNotPresent = errors.New("tag not present")
)

// Causes wrapped inside an ExchangeError
var (
	ErrCRCMismatch      = errors.New("crc mismatch")
	ErrFrameTooShort    = errors.New("frame too short")
	ErrCardError        = errors.New("card reported error")
	ErrUIDMismatch      = errors.New("uid mismatch")
	ErrUnexpectedLength = errors.New("unexpected response length")
)

// Transceiver and API usage errors
var (
	ErrTechUnsupported   = errors.New("technology not supported by transceiver")
	ErrTransceiverBusy   = errors.New("transceiver already running")
	ErrTransceiverClosed = errors.New("transceiver is closed")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrSessionTimeout    = errors.New("session timed out")
)

// ErrorKind classifies an exchange failure.
type ErrorKind int

const (
	// KindNone is returned for nil or unclassified errors
	KindNone ErrorKind = iota
	// KindTimeout is a missing response
	KindTimeout
	// KindProtocol is a malformed or rejected response
	KindProtocol
	// KindNotPresent is a tag that left the field
	KindNotPresent
)

// String returns the human-readable kind name
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindNotPresent:
		return "not present"
	default:
		return "none"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindProtocol:
		return ErrProtocol
	case KindNotPresent:
		return ErrNotPresent
	default:
		return nil
	}
}

// ExchangeError wraps a failed card operation with its kind and cause.
// errors.Is matches both the cause and the kind sentinel:
//
//	errors.Is(err, nfcmagic.ErrProtocol)    // any protocol-kind failure
//	errors.Is(err, nfcmagic.ErrCRCMismatch) // that specific cause
type ExchangeError struct {
	Err  error     // Underlying cause
	Op   string    // Operation that failed
	Kind ErrorKind // Error category
}

func (e *ExchangeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ExchangeError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewExchangeError creates an ExchangeError of the given kind
func NewExchangeError(op string, kind ErrorKind, err error) *ExchangeError {
	return &ExchangeError{Op: op, Kind: kind, Err: err}
}

// NewTimeoutError creates a timeout-kind error for op
func NewTimeoutError(op string) *ExchangeError {
	return NewExchangeError(op, KindTimeout, ErrTimeout)
}

// NewProtocolError creates a protocol-kind error wrapping cause
func NewProtocolError(op string, cause error) *ExchangeError {
	return NewExchangeError(op, KindProtocol, cause)
}

// NewNotPresentError creates a not-present-kind error for op
func NewNotPresentError(op string) *ExchangeError {
	return NewExchangeError(op, KindNotPresent, ErrNotPresent)
}

// KindOf returns the classification of err, or KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNotPresent):
		return KindNotPresent
	case errors.Is(err, ErrProtocol),
		errors.Is(err, ErrCRCMismatch),
		errors.Is(err, ErrFrameTooShort),
		errors.Is(err, ErrCardError),
		errors.Is(err, ErrUIDMismatch),
		errors.Is(err, ErrUnexpectedLength):
		return KindProtocol
	default:
		return KindNone
	}
}

// IsTimeout reports whether err is a timeout-kind failure
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsProtocol reports whether err is a protocol-kind failure
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}

// IsNotPresent reports whether err means the tag is gone
func IsNotPresent(err error) bool {
	return KindOf(err) == KindNotPresent
}

// IsRetryable returns true if the failed exchange may succeed on a later
// poll step. Only timeouts qualify; nothing in this module re-issues a
// command on its own.
func IsRetryable(err error) bool {
	return IsTimeout(err)
}

// CardError is an ISO15693 error response (response flag bit 0 set).
type CardError struct {
	Command byte
	Code    byte
}

func (e *CardError) Error() string {
	return fmt.Sprintf("command 0x%02X rejected by card: %s (0x%02X)",
		e.Command, CardErrorMeaning(e.Code), e.Code)
}

// Unwrap lets errors.Is match ErrCardError
func (*CardError) Unwrap() error {
	return ErrCardError
}

// CardErrorMeaning returns a description for an ISO15693 error code
func CardErrorMeaning(code byte) string {
	switch code {
	case 0x01:
		return "command not supported"
	case 0x02:
		return "command not recognized"
	case 0x03:
		return "option not supported"
	case 0x0F:
		return "unknown error"
	case 0x10:
		return "block not available"
	case 0x11:
		return "block already locked"
	case 0x12:
		return "block is locked"
	case 0x13:
		return "block not programmed"
	case 0x14:
		return "block not locked"
	default:
		if code >= 0xA0 && code <= 0xDF {
			return "custom command error"
		}
		return "unknown error code"
	}
}

// =============================================================================
// RF Trace Logging
// =============================================================================
// TraceableError embeds the last raw exchanges in an error so that callers
// can see what went over the air when an operation fails.

// TraceDirection indicates the direction of RF data
type TraceDirection string

const (
	// TraceTX indicates data sent to the card
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the card
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single raw exchange half
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError wraps an error with RF trace data for debugging.
//
//	if te := nfcmagic.GetTrace(err); te != nil {
//	    log.Printf("RF trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err   error
	Link  string
	Tech  Tech
	Trace []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Link, e.Tech)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] RF trace (%d entries):\n", e.Link, e.Tech, len(e.Trace))

	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		hexData := formatHexBytes(entry.Data)
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, hexData, entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, hexData)
		}
	}

	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	limit := len(data)
	if limit > 32 {
		limit = 32
	}
	parts := make([]string, limit)
	for i := range limit {
		parts[i] = fmt.Sprintf("%02X", data[i])
	}
	if len(data) > limit {
		return strings.Join(parts, " ") + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return strings.Join(parts, " ")
}

// TraceBuffer keeps the most recent exchanges in a fixed-size window.
// It is not safe for concurrent use; owners serialize access.
type TraceBuffer struct {
	link    string
	entries []TraceEntry
	maxSize int
	tech    Tech
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(link string, tech Tech, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries: make([]TraceEntry, 0, maxSize),
		maxSize: maxSize,
		link:    link,
		tech:    tech,
	}
}

// RecordTX records a frame sent to the card
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records a frame received from the card
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a missing response
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	entry := TraceEntry{
		Direction: dir,
		Data:      dataCopy,
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// Entries returns a copy of the recorded entries, oldest first
func (tb *TraceBuffer) Entries() []TraceEntry {
	out := make([]TraceEntry, len(tb.entries))
	copy(out, tb.entries)
	return out
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:   err,
		Trace: tb.Entries(),
		Link:  tb.link,
		Tech:  tb.tech,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// HasTrace checks if an error contains trace data
func HasTrace(err error) bool {
	var te *TraceableError
	return errors.As(err, &te)
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
