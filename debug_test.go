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
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// withSessionBuffer routes session log output into a buffer for one test.
func withSessionBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()

	origEnabled := debugEnabled
	sessionMu.Lock()
	origOut := sessionOut
	var buf bytes.Buffer
	sessionOut = &buf
	sessionMu.Unlock()
	debugEnabled = false

	t.Cleanup(func() {
		debugEnabled = origEnabled
		sessionMu.Lock()
		sessionOut = origOut
		sessionMu.Unlock()
	})
	return &buf
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	buf := withSessionBuffer(t)

	Debugf("test message %d", 42)

	content := buf.String()
	assert.Contains(t, content, "DEBUG: test message 42")
	assert.Contains(t, content, "\n")
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	buf := withSessionBuffer(t)

	Debugf("test message")

	matched, err := regexp.MatchString(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: `, buf.String())
	assert.NoError(t, err)
	assert.True(t, matched, "expected timestamp prefix, got %q", buf.String())
}

func TestDebugln_WritesToSessionLog(t *testing.T) {
	buf := withSessionBuffer(t)

	Debugln("slix", "wipe", 3)

	assert.Contains(t, buf.String(), "DEBUG: slixwipe3")
}

func TestDebugf_NoSessionLog(t *testing.T) {
	origEnabled := debugEnabled
	sessionMu.Lock()
	origOut := sessionOut
	sessionOut = nil
	sessionMu.Unlock()
	t.Cleanup(func() {
		debugEnabled = origEnabled
		sessionMu.Lock()
		sessionOut = origOut
		sessionMu.Unlock()
	})
	debugEnabled = false

	assert.NotPanics(t, func() {
		Debugf("nobody is listening")
		Debugln("nobody is listening")
	})
}

func TestSetDebugEnabled(t *testing.T) {
	orig := IsDebugEnabled()
	t.Cleanup(func() { SetDebugEnabled(orig) })

	SetDebugEnabled(true)
	assert.True(t, IsDebugEnabled())
	SetDebugEnabled(false)
	assert.False(t, IsDebugEnabled())
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	a := NewSessionID()
	b := NewSessionID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9a-f]{8}$`, a)
}
