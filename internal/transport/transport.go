// SPDX-License-Identifier: MIT

// Package transport moves analysis results and events out of the process.
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations must be safe for concurrent use and must not block the
// caller for long; a transport that cannot keep up drops data.
type Transport interface {
	Send(data any) error
	Close() error
}

// Periodic is implemented by payloads that are one sample of a regular
// stream, such as per-frame spectra. Rate limits apply per Stream name and
// only to Periodic payloads; everything else is an event and always goes out.
type Periodic interface {
	Stream() string
}

// Multi sends to several transports, returning the first error after trying
// all of them.
type Multi []Transport

// Send implements Transport.
func (m Multi) Send(data any) error {
	var first error
	for _, t := range m {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Transport.
func (m Multi) Close() error {
	var first error
	for _, t := range m {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Transport = Multi(nil)
