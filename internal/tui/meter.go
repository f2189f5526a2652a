// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"spectrum/internal/analysis"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MeterFloorDB is the level drawn as an empty bar.
const MeterFloorDB = -80.0

var (
	lowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	midStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E8C547"))
	highStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0525B"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

type tickMsg time.Time

// MeterModel polls an analysis provider and draws one bar per mel band for
// the selected channel.
type MeterModel struct {
	provider analysis.Provider
	params   analysis.AnalyzerParameters
	interval time.Duration
	centers  []float64

	channel  int
	bands    []float32
	peakHz   float64
	peakDB   float64
	frames   uint64
	barWidth int
}

// NewMeterModel creates a meter refreshing every interval. centers labels
// the bands and may be nil.
func NewMeterModel(provider analysis.Provider, interval time.Duration, centers []float64) MeterModel {
	params := provider.AnalyzerParameters()
	if interval <= 0 {
		interval = max(params.RefreshPeriod, 16*time.Millisecond)
	}
	return MeterModel{
		provider: provider,
		params:   params,
		interval: interval,
		centers:  centers,
		barWidth: 50,
	}
}

func (m MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m MeterModel) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.poll()
		return m, m.tick()

	case tea.WindowSizeMsg:
		// Label and dB columns take about 22 cells.
		m.barWidth = max(msg.Width-22, 10)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, leftKey):
			if m.channel > 0 {
				m.channel--
				m.poll()
			}
		case key.Matches(msg, rightKey):
			if m.channel < m.params.Channels-1 {
				m.channel++
				m.poll()
			}
		}
	}
	return m, nil
}

// poll copies the newest frame of the selected channel out of the provider.
func (m *MeterModel) poll() {
	m.frames = m.provider.Frames()
	if bands := m.provider.LatestMelBands(); m.channel < bands.Channels() {
		m.bands = bands.Channel(m.channel)
	}

	spectra := m.provider.LatestSpectrum()
	if m.channel < len(spectra) {
		bin, peak := spectra[m.channel].Peak()
		m.peakHz = m.params.FrequencyForBin(bin)
		m.peakDB = toDB(float64(peak))
	}
}

// toDB converts a magnitude to decibels, clamped at MeterFloorDB.
func toDB(v float64) float64 {
	if v <= 0 {
		return MeterFloorDB
	}
	return max(20*math.Log10(v), MeterFloorDB)
}

// barLength maps a magnitude onto [0, width] cells on a dB scale.
func barLength(v float32, width int) int {
	frac := (toDB(float64(v)) - MeterFloorDB) / -MeterFloorDB
	return int(math.Round(min(max(frac, 0), 1) * float64(width)))
}

func (m MeterModel) renderBar(v float32) string {
	n := barLength(v, m.barWidth)
	var sb strings.Builder
	for i := range n {
		cell := "█"
		switch frac := float64(i) / float64(m.barWidth); {
		case frac >= 0.85:
			sb.WriteString(highStyle.Render(cell))
		case frac >= 0.6:
			sb.WriteString(midStyle.Render(cell))
		default:
			sb.WriteString(lowStyle.Render(cell))
		}
	}
	sb.WriteString(dimStyle.Render(strings.Repeat("·", m.barWidth-n)))
	return sb.String()
}

// View implements tea.Model.
func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Mel Bands • channel %d/%d", m.channel+1, m.params.Channels)))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "%d Hz • W=%d • every %s • frame %d • peak %.0f Hz %.1f dB\n\n",
		m.params.SampleRate, m.params.SpectrumWidth, m.params.RefreshPeriod, m.frames, m.peakHz, m.peakDB)

	if m.frames == 0 {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n")
	}
	for i, v := range m.bands {
		label := fmt.Sprintf("%2d", i)
		if i < len(m.centers) {
			label = fmt.Sprintf("%6.0f Hz", m.centers[i])
		}
		fmt.Fprintf(&sb, "%s %s %6.1f\n", label, m.renderBar(v), toDB(float64(v)))
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("←/→: Channel • q: Quit"))
	return sb.String()
}

// RunMeter shows the meter until the user quits or ctx is done.
func RunMeter(ctx context.Context, provider analysis.Provider, interval time.Duration, centers []float64) error {
	p := tea.NewProgram(
		NewMeterModel(provider, interval, centers),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
