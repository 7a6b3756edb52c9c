package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stemdeck/clock"
	"stemdeck/dispatch"
	"stemdeck/mapping"
	"stemdeck/registry"
)

const feedDepth = 8

type Model struct {
	devices  <-chan registry.Event
	clocks   <-chan clock.Event
	actions  <-chan mapping.ActionEvent
	messages <-chan dispatch.PortMessage

	list      []registry.Device
	transport clock.TransportState
	bpm       float64
	feed      []string
	traffic   []string
	quitting  bool
}

type DeviceEventMsg registry.Event

type ClockEventMsg clock.Event

type ActionEventMsg mapping.ActionEvent

type PortMessageMsg dispatch.PortMessage

// Feeds carries the event channels the monitor renders. A nil actions
// channel is allowed when no session is active.
type Feeds struct {
	Devices  <-chan registry.Event
	Clocks   <-chan clock.Event
	Actions  <-chan mapping.ActionEvent
	Messages <-chan dispatch.PortMessage
}

func NewModel(feeds Feeds, devices []registry.Device) Model {
	return Model{
		devices:  feeds.Devices,
		clocks:   feeds.Clocks,
		actions:  feeds.Actions,
		messages: feeds.Messages,
		list:     devices,
	}
}

func listenForDevices(ch <-chan registry.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return DeviceEventMsg(ev)
	}
}

func listenForClock(ch <-chan clock.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ClockEventMsg(ev)
	}
}

func listenForActions(ch <-chan mapping.ActionEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ActionEventMsg(ev)
	}
}

func listenForMessages(ch <-chan dispatch.PortMessage) tea.Cmd {
	return func() tea.Msg {
		pm, ok := <-ch
		if !ok {
			return nil
		}
		return PortMessageMsg(pm)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listenForDevices(m.devices),
		listenForClock(m.clocks),
		listenForMessages(m.messages),
	}
	if m.actions != nil {
		cmds = append(cmds, listenForActions(m.actions))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case DeviceEventMsg:
		ev := registry.Event(msg)
		m.list = applyDeviceEvent(m.list, ev)
		verb := "connected"
		if ev.Type == registry.DeviceDisconnected {
			verb = "disconnected"
		}
		m.feed = pushLine(m.feed, fmt.Sprintf("%s %s", ev.Device.Name, verb))
		return m, listenForDevices(m.devices)

	case ClockEventMsg:
		ev := clock.Event(msg)
		switch ev.Type {
		case clock.EventTransport:
			m.transport = ev.Transport
		case clock.EventBPM:
			m.bpm = ev.BPM
		}
		return m, listenForClock(m.clocks)

	case ActionEventMsg:
		ev := mapping.ActionEvent(msg)
		m.feed = pushLine(m.feed, formatAction(ev))
		return m, listenForActions(m.actions)

	case PortMessageMsg:
		pm := dispatch.PortMessage(msg)
		m.traffic = pushLine(m.traffic, fmt.Sprintf("%-18s %s", pm.Device, pm.Msg))
		return m, listenForMessages(m.messages)
	}

	return m, nil
}

func applyDeviceEvent(list []registry.Device, ev registry.Event) []registry.Device {
	out := list[:0:0]
	for _, d := range list {
		if d.ID != ev.Device.ID {
			out = append(out, d)
		}
	}
	if ev.Type == registry.DeviceConnected {
		out = append(out, ev.Device)
	}
	return out
}

func pushLine(feed []string, line string) []string {
	feed = append(feed, line)
	if len(feed) > feedDepth {
		feed = feed[len(feed)-feedDepth:]
	}
	return feed
}

func formatAction(ev mapping.ActionEvent) string {
	switch ev.Action {
	case mapping.ActionStemVolume:
		return fmt.Sprintf("%s %.2f", ev.Action, ev.Value)
	case mapping.ActionStemSolo, mapping.ActionStemMute:
		state := "off"
		if ev.On {
			state = "on"
		}
		return fmt.Sprintf("%s %s", ev.Action, state)
	default:
		return ev.Action.String()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	bpm := "---.-"
	if m.bpm > 0 {
		bpm = fmt.Sprintf("%5.1f", m.bpm)
	}
	header := headerStyle.Render(fmt.Sprintf("stemdeck  %-7s  %sbpm", m.transport, bpm))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	out.WriteString(dimStyle.Render("devices"))
	out.WriteString("\n")
	if len(m.list) == 0 {
		out.WriteString(dimStyle.Render("  (none)"))
		out.WriteString("\n")
	}
	for _, d := range m.list {
		out.WriteString(rowStyle.Render(fmt.Sprintf("  %-24s %-7s %-8s", d.Name, d.Direction, d.Transport)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("activity"))
	out.WriteString("\n")
	for _, line := range m.feed {
		out.WriteString(rowStyle.Render("  " + line))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("traffic"))
	out.WriteString("\n")
	for _, line := range m.traffic {
		out.WriteString(dimStyle.Render("  " + line))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("q:quit"))

	return out.String()
}
