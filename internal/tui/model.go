package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

const noticeTimeout = 4 * time.Second

// Model is the root Bubbletea model.
type Model struct {
	ctx  context.Context
	ctrl Controls

	view controller.View

	// Host field
	host    textinput.Model
	editing bool

	spinner spinner.Model
	help    help.Model
	width   int

	// Last action outcome
	notice   string
	noticeOK bool
	noticeID int
}

// NewModel creates the model. The cached view is shown immediately.
func NewModel(ctx context.Context, ctrl Controls) Model {
	ti := textinput.New()
	ti.Placeholder = "http://pi.hole"
	ti.Prompt = ""
	ti.CharLimit = 256
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		view:    ctrl.View(),
		host:    ti,
		spinner: sp,
		help:    help.New(),
	}
	m.host.SetValue(m.view.Host)
	return m
}

// Init starts the spinner. The controller refreshes on its own.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case ViewMsg:
		m.view = msg.View
		if !m.editing {
			m.host.SetValue(m.view.Host)
		}
		return m, nil

	case resultMsg:
		m.noticeID++
		switch {
		case msg.err != nil:
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.noticeOK = false
		case !msg.result.OK:
			m.notice = fmt.Sprintf("%s failed: %s", msg.action, msg.result.Error())
			m.noticeOK = false
		default:
			m.notice = msg.action + " ok"
			m.noticeOK = true
		}
		return m, clearNoticeAfter(m.noticeID, noticeTimeout)

	case clearNoticeMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Toggle):
		want := m.view.Status != store.StatusEnabled
		m.view.Status = store.FromEnabled(want)
		m.view.Pending = true
		return m, toggleCmd(m.ctx, m.ctrl, want)

	case key.Matches(msg, keys.Enable):
		m.view.Status = store.StatusEnabled
		m.view.Pending = true
		return m, toggleCmd(m.ctx, m.ctrl, true)

	case key.Matches(msg, keys.Disable):
		m.view.Status = store.StatusDisabled
		m.view.Pending = true
		return m, toggleCmd(m.ctx, m.ctrl, false)

	case key.Matches(msg, keys.Refresh):
		m.view.Connection = controller.Connecting
		return m, refreshCmd(m.ctx, m.ctrl)

	case key.Matches(msg, keys.Edit):
		m.editing = true
		return m, m.host.Focus()
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Save):
		m.editing = false
		m.host.Blur()
		host := strings.TrimSpace(m.host.Value())
		m.host.SetValue(host)
		m.view.Host = host
		m.view.HostValid = controller.ValidHost(host)
		m.view.Connection = controller.Connecting
		return m, setHostCmd(m.ctx, m.ctrl, host)

	case key.Matches(msg, keys.Cancel):
		m.editing = false
		m.host.Blur()
		m.host.SetValue(m.view.Host)
		return m, nil

	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.host, cmd = m.host.Update(msg)
	return m, cmd
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("blockyswitch"))
	b.WriteString("\n")

	// Host
	b.WriteString(labelStyle.Render("Host"))
	if m.editing {
		b.WriteString(m.host.View())
	} else if m.view.Host == "" {
		b.WriteString(dimStyle.Render("not set"))
	} else {
		b.WriteString(m.fit(m.view.Host))
	}
	if !m.view.HostValid {
		b.WriteString("  " + warnStyle.Render("must start with http:// or https://"))
	}
	b.WriteString("\n")

	// Blocking toggle
	b.WriteString(labelStyle.Render("Blocking"))
	b.WriteString(renderBadge(m.view.Status))
	if m.view.Pending {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")

	// Connection
	b.WriteString(labelStyle.Render("Remote"))
	b.WriteString(m.renderConnection())
	b.WriteString("\n")

	if !m.view.LastRefresh.IsZero() {
		b.WriteString(labelStyle.Render("Updated"))
		b.WriteString(dimStyle.Render(m.view.LastRefresh.Local().Format("15:04:05")))
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		if m.noticeOK {
			b.WriteString(dimStyle.Render(m.fit(m.notice)))
		} else {
			b.WriteString(errorStyle.Render(m.fit(m.notice)))
		}
		b.WriteString("\n")
	}

	body := frameStyle.Render(strings.TrimRight(b.String(), "\n"))

	var km help.KeyMap = keys
	if m.editing {
		km = editKeys{}
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.help.View(km))
}

// fit truncates s to the space left of a labelled row inside the frame.
func (m Model) fit(s string) string {
	if m.width == 0 {
		return s
	}
	room := m.width - labelWidth - frameOverhead
	if room < 8 {
		room = 8
	}
	return ansi.Truncate(s, room, "…")
}

func (m Model) renderConnection() string {
	switch m.view.Connection {
	case controller.Connected:
		return dotConnectedStyle.Render("●") + " connected"
	case controller.NotConnected:
		return dotNotConnectedStyle.Render("●") + " not connected"
	default:
		return m.spinner.View() + " connecting"
	}
}

func renderBadge(status store.Status) string {
	badge := indicator.For(status)
	switch status {
	case store.StatusEnabled:
		return badgeOnStyle.Render(badge.Text)
	case store.StatusDisabled:
		return badgeOffStyle.Render(badge.Text)
	default:
		return badgeUnknownStyle.Render("unknown")
	}
}
