// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"spectrum/internal/analysis"
	applog "spectrum/internal/log"
)

// Mode selects what the publisher sends.
type Mode int

const (
	ModeSpectrum Mode = iota // W/2 magnitudes per channel
	ModeMel                  // one value per mel filter per channel
)

// ParseMode converts "spectrum" or "mel" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "spectrum":
		return ModeSpectrum, nil
	case "mel":
		return ModeMel, nil
	default:
		return ModeSpectrum, fmt.Errorf("unknown UDP publish mode %q", s)
	}
}

// packetSender is the part of UDPSender the publisher needs.
type packetSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically polls an analysis Provider, packs the latest
// frame into a datagram and sends it. A frame is sent at most once; ticks
// with no new frame are skipped.
type UDPPublisher struct {
	sender   packetSender
	provider analysis.Provider
	interval time.Duration
	mode     Mode

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Closed to stop the publisher goroutine.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.
	lastFrame   uint64
	packet      []byte // reused between ticks
}

// NewUDPPublisher creates a publisher. If the interval is invalid (<= 0) it
// defaults to the analyzer's refresh period.
func NewUDPPublisher(interval time.Duration, mode Mode, sender packetSender, provider analysis.Provider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("UDPPublisher: analysis provider cannot be nil")
	}

	params := provider.AnalyzerParameters()
	if interval <= 0 {
		interval = params.RefreshPeriod
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Channels: %d, Bins: %d)",
		interval, params.Channels, params.Bins())

	return &UDPPublisher{
		sender:   sender,
		provider: provider,
		interval: interval,
		mode:     mode,
		packet:   make([]byte, 0, HeaderSize+4*params.Channels*max(params.Bins(), params.MelFilters)),
	}, nil
}

// Start begins the periodic publishing process. Calling Start while running
// is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished after %d packets.", p.sequenceNum)
	return nil
}

// publish sends the newest frame if it has not been sent yet. It reports
// whether a packet went out.
func (p *UDPPublisher) publish() bool {
	frame := p.provider.Frames()
	if frame == 0 || frame == p.lastFrame {
		return false
	}

	var values [][]float32
	switch p.mode {
	case ModeMel:
		values = p.provider.LatestMelBands()
	default:
		latest := p.provider.LatestSpectrum()
		values = make([][]float32, len(latest))
		for ch, spectrum := range latest {
			values[ch] = spectrum
		}
	}

	packet, err := AppendPacket(p.packet[:0], p.sequenceNum+1, time.Now().UnixNano(), values)
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing frame %d: %v", frame, err)
		return false
	}
	p.packet = packet

	if err := p.sender.Send(packet); err != nil {
		return false
	}
	p.sequenceNum++
	p.lastFrame = frame
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	return true
}

// Close implements io.Closer by stopping the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}
