// SPDX-License-Identifier: MIT

// Package tui holds the bubbletea screens: a capture device picker and a live
// mel band meter.
package tui

import (
	"fmt"
	"strings"

	"spectrum/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	quitKey  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKey    = key.NewBinding(key.WithKeys("up", "k"))
	downKey  = key.NewBinding(key.WithKeys("down", "j"))
	enterKey = key.NewBinding(key.WithKeys("enter"))
	backKey  = key.NewBinding(key.WithKeys("esc"))
	leftKey  = key.NewBinding(key.WithKeys("left", "h"))
	rightKey = key.NewBinding(key.WithKeys("right", "l"))
)

// headerPad is the number of lines around the viewport.
const headerPad = 4

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// StandardSampleRates are offered on the configuration screen.
var StandardSampleRates = []uint32{44100, 48000, 88200, 96000}

// DeviceLister enumerates capture devices, usually audio.PortAudioDevices or
// audio.MalgoDevices.
type DeviceLister func() ([]audio.Device, error)

// Selection is the device and rate the user confirmed.
type Selection struct {
	Device     audio.Device
	SampleRate uint32
}

// DeviceListModel represents the Bubble Tea model for picking a capture device.
type DeviceListModel struct {
	list          DeviceLister
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model that lists devices from every lister in
// turn.
func NewDeviceListModel(listers ...DeviceLister) DeviceListModel {
	return DeviceListModel{
		list:         joinListers(listers),
		activeScreen: ListScreen,
	}
}

// joinListers concatenates the devices of several backends. A backend that
// fails is skipped as long as another one succeeds.
func joinListers(listers []DeviceLister) DeviceLister {
	return func() ([]audio.Device, error) {
		var (
			all     []audio.Device
			lastErr error
		)
		for _, list := range listers {
			devices, err := list()
			if err != nil {
				lastErr = err
				continue
			}
			all = append(all, devices...)
		}
		if len(all) == 0 && lastErr != nil {
			return nil, lastErr
		}
		return all, nil
	}
}

// Init initializes the Bubble Tea model
func (m DeviceListModel) Init() tea.Cmd {
	list := m.list
	return func() tea.Msg {
		devices, err := list()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Update handles input and updates the model
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerPad)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerPad
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = 0
		for i, d := range m.devices {
			if d.IsDefault {
				m.selectedIndex = i
				break
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKey):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = closestRate(m.devices[m.selectedIndex].DefaultSampleRate)
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, backKey):
				m.activeScreen = ListScreen
			case key.Matches(msg, upKey):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, downKey):
				if m.sampleRateIndex < len(StandardSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, enterKey):
				m.selection = &Selection{
					Device:     m.devices[m.selectedIndex],
					SampleRate: StandardSampleRates[m.sampleRateIndex],
				}
				return m, tea.Quit
			}
		}
		m.refresh()
		// Arrow keys are ours, not the viewport's.
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Selection returns what the user confirmed, if anything.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// closestRate picks the standard rate nearest to a device default.
func closestRate(rate float64) int {
	best := 0
	for i, r := range StandardSampleRates {
		if abs(float64(r)-rate) < abs(float64(StandardSampleRates[best])-rate) {
			best = i
		}
	}
	return best
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Use • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		marker := ""
		if device.IsDefault {
			marker = " *default*"
		}
		deviceInfo := fmt.Sprintf("[%s %d] %s (%s)%s\n",
			device.Backend, device.ID, device.Name, device.Kind(), marker)
		if device.MaxInputChannels > 0 || device.MaxOutputChannels > 0 {
			deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
				device.MaxInputChannels, device.MaxOutputChannels)
		}
		if device.DefaultSampleRate > 0 {
			deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		}

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")
	for i, rate := range StandardSampleRates {
		cursor := " "
		if i == m.sampleRateIndex {
			cursor = "▶"
		}
		line := fmt.Sprintf("  %s %d Hz\n", cursor, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI runs the device picker and returns the confirmed choice.
// ok is false when the user quit without choosing.
func StartDeviceListUI(listers ...DeviceLister) (sel Selection, ok bool, err error) {
	p := tea.NewProgram(NewDeviceListModel(listers...), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(DeviceListModel).Selection()
	return sel, ok, nil
}
