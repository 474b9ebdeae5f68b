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
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSessionLog_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { _ = CloseSessionLog() })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	_, err = os.Stat(path)
	require.NoError(t, err, "log file should exist")

	matched, err := regexp.MatchString(`^nfcmagic_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected log file name: %s", path)
}

func TestInitSessionLog_WritesHeaderAndFooter(t *testing.T) {
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	Debugf("poller state %s", "wipe")
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "=== nfcmagic Debug Session Log ===")
	assert.Contains(t, text, "PID:")
	assert.Contains(t, text, "Go Version:")
	assert.Contains(t, text, "DEBUG: poller state wipe")
	assert.Contains(t, text, "=== Session ended ===")
	assert.Empty(t, GetSessionLogPath())
}

func TestInitSessionLog_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	t.Cleanup(func() { _ = CloseSessionLog() })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestCloseSessionLog_WithoutInit(t *testing.T) {
	assert.NoError(t, CloseSessionLog())
}
