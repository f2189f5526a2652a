// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	prev := GetLevel()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelWarn)

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("ring buffer overrun by %d samples", 480)
	Error("receiver failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "ring buffer overrun by 480 samples")
	assert.Contains(t, out, "receiver failed")
}

func TestSetLevelRoundTrip(t *testing.T) {
	captureOutput(t, LevelDebug)
	assert.Equal(t, LevelDebug, GetLevel())

	SetLevel(LevelError)
	assert.Equal(t, LevelError, GetLevel())
	assert.False(t, shouldLog(LevelWarn))
	assert.True(t, shouldLog(LevelError))
}

var timestamp = regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{6}`)

func TestTimestampsHaveMicroseconds(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Info("first")
	time.Sleep(2 * time.Millisecond)
	Info("second")

	stamps := timestamp.FindAllString(buf.String(), -1)
	require.Len(t, stamps, 2, buf.String())
	assert.NotEqual(t, stamps[0], stamps[1])
}

func TestRegularFileGetsNoColour(t *testing.T) {
	captureOutput(t, LevelInfo)
	f, err := os.Create(filepath.Join(t.TempDir(), "spectrum.log"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, isTerminal(f))
	SetOutput(f)
	Warnf("overrun by %d samples", 480)

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "overrun by 480 samples")
	assert.False(t, strings.Contains(string(data), "\x1b["), "unexpected ANSI escape in %q", data)
}
