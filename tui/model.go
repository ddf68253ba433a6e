// Package tui терминальный пульт управления машинкой.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"microrail-remote/common"
	"microrail-remote/view"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Sender отправляет одну команду в машинку
type Sender interface {
	Send(ctx context.Context, cmd common.Command) error
}

// StatusMsg новый статус от сессии
type StatusMsg common.Status

// SessionEndedMsg сессия завершилась, пульт закрывается
type SessionEndedMsg struct {
	Err error
}

// sentMsg результат отправки команды
type sentMsg struct {
	cmd common.Command
	err error
}

const sendTimeout = 3 * time.Second

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle    = lipgloss.NewStyle().Bold(true)
	speedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Padding(0, 1)
	activeIcon    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

// Model модель пульта для bubbletea
type Model struct {
	keys   KeyMap
	help   help.Model
	sender Sender
	title  string

	status common.Status
	view   view.View
	ended  bool
}

// NewModel создает пульт, который отправляет команды через sender
func NewModel(sender Sender, title string) Model {
	status := common.NewStatus()
	return Model{
		keys:   DefaultKeyMap,
		help:   help.New(),
		sender: sender,
		title:  title,
		status: status,
		view:   view.Render(status),
	}
}

// Status последний показанный статус
func (m Model) Status() common.Status {
	return m.status
}

// Init для tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update для tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		m.status = common.Status(msg)
		m.view = view.Render(m.status)
		return m, nil

	case sentMsg:
		// Ошибка уже в журнале сессии, на экране пульта ее нет
		return m, nil

	case SessionEndedMsg:
		m.ended = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.ChangeDirection):
			if !m.view.DirectionEnabled {
				return m, nil
			}
			return m, m.send(common.ChangeDirection)
		case key.Matches(msg, m.keys.Slower):
			return m, m.send(common.Slower)
		case key.Matches(msg, m.keys.Faster):
			return m, m.send(common.Faster)
		case key.Matches(msg, m.keys.Stop):
			return m, m.send(common.Stop)
		}
	}
	return m, nil
}

func (m Model) send(cmd common.Command) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return sentMsg{cmd: cmd, err: sender.Send(ctx, cmd)}
	}
}

// View для tea.Model
func (m Model) View() string {
	v := m.view

	forward := disabledStyle.Render("▲ forward")
	if v.ForwardVisible {
		forward = activeIcon.Render("▲ forward")
	}
	reverse := disabledStyle.Render("▼ reverse")
	if v.ReverseVisible {
		reverse = activeIcon.Render("▼ reverse")
	}

	direction := disabledStyle.Render("[d] change direction")
	if v.DirectionEnabled {
		direction = valueStyle.Render("[d] change direction")
	}

	rows := []string{
		titleStyle.Render(m.title),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render("Speed"), speedStyle.Render(v.Speed+" %")),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Direction"), forward, "  ", reverse),
		direction,
		"",
		row("Battery", fmt.Sprintf("%s V  %s %%", v.Voltage, v.Capacity)),
		row("Name", v.Name),
		row("WLAN", v.SSID),
		row("Firmware", v.Version),
	}

	if m.ended {
		rows = append(rows, "", disabledStyle.Render("Connection closed"))
	}

	return panelStyle.Render(strings.Join(rows, "\n")) + "\n" + m.help.View(m.keys) + "\n"
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
