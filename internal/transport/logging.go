// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "spectrum/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary of
// every payload at debug level. Useful when no network sink is configured.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Info("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)

	logger := applog.Logger()
	event := logger.Debug().Uint64("seq", n).Type("type", data)
	switch v := data.(type) {
	case map[string]any:
		event = event.Fields(v)
	case [][]float32:
		event = event.Int("channels", len(v))
	case []float32:
		event = event.Int("values", len(v))
	}
	event.Msg("Transport: payload")
	return nil
}

// Sent returns how many payloads were logged.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.sent.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("Transport: LoggingTransport closed after %d payloads", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
