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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Session log limits
const (
	SessionLogMaxSizeMB  = 1
	SessionLogMaxBackups = 2
)

// Session log state
var (
	sessionMu      sync.RWMutex
	sessionLog     *lumberjack.Logger
	sessionOut     io.Writer
	sessionLogPath string
)

func sessionWriter() io.Writer {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return sessionOut
}

// InitSessionLog opens a size-capped session log in dir (the current
// directory when empty). Returns the log file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create session log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("nfcmagic_%s.log", timestamp))

	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    SessionLogMaxSizeMB,
		MaxBackups: SessionLogMaxBackups,
	}

	sessionMu.Lock()
	if sessionLog != nil {
		_ = sessionLog.Close()
	}
	sessionLog = logger
	sessionOut = logger
	sessionLogPath = filename
	sessionMu.Unlock()

	writeSessionHeader(logger)

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionLog == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(sessionLog, "\n%s === Session ended ===\n", timestamp)

	err := sessionLog.Close()
	sessionLog = nil
	sessionOut = nil
	sessionLogPath = ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return sessionLogPath
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(writer io.Writer) {
	_, _ = fmt.Fprint(writer, "=== nfcmagic Debug Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(writer, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(writer, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(writer, "==================================\n\n")
}
