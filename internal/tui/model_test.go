package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

type fakeControls struct {
	mu      sync.Mutex
	view    controller.View
	toggles []bool
	hosts   []string
	refresh int
	result  reconcile.Result
}

func (f *fakeControls) View() controller.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeControls) SetHost(ctx context.Context, host string) (reconcile.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	return f.result, nil
}

func (f *fakeControls) Refresh(ctx context.Context) reconcile.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return f.result
}

func (f *fakeControls) Toggle(ctx context.Context, want bool) reconcile.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, want)
	return f.result
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends msg to the model without running the returned command.
func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// settle runs an action command and feeds its result back.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("no command returned")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func newTestModel(view controller.View) (Model, *fakeControls) {
	enabled := true
	f := &fakeControls{view: view, result: reconcile.Result{OK: true, Enabled: &enabled}}
	return NewModel(context.Background(), f), f
}

func TestNewModel_ShowsCachedView(t *testing.T) {
	m, _ := newTestModel(controller.View{Host: "http://pi.hole", HostValid: true, Status: store.StatusDisabled})

	out := m.View()
	if !strings.Contains(out, "http://pi.hole") || !strings.Contains(out, "OFF") {
		t.Errorf("View() = %q", out)
	}
	if !strings.Contains(out, "connecting") {
		t.Errorf("View() should show connecting before the first check: %q", out)
	}
}

func TestToggleKey(t *testing.T) {
	tests := []struct {
		name   string
		status store.Status
		key    tea.KeyMsg
		want   bool
	}{
		{"space from enabled", store.StatusEnabled, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}, false},
		{"t from disabled", store.StatusDisabled, runes("t"), true},
		{"t from unknown", store.StatusUnknown, runes("t"), true},
		{"e", store.StatusEnabled, runes("e"), true},
		{"d", store.StatusDisabled, runes("d"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f := newTestModel(controller.View{Host: "http://h", HostValid: true, Status: tt.status})

			next, cmd := m.Update(tt.key)
			m = next.(Model)
			if !m.view.Pending || m.view.Status != store.FromEnabled(tt.want) {
				t.Errorf("optimistic view = %+v", m.view)
			}
			if cmd == nil {
				t.Fatal("no command returned")
			}
			cmd()
			if len(f.toggles) != 1 || f.toggles[0] != tt.want {
				t.Errorf("toggles = %v, want [%v]", f.toggles, tt.want)
			}
		})
	}
}

func TestRefreshKey(t *testing.T) {
	m, f := newTestModel(controller.View{Host: "http://h", HostValid: true, Connection: controller.Connected})

	m, cmd := press(t, m, runes("r"))
	m = settle(t, m, cmd)
	if f.refresh != 1 {
		t.Errorf("refresh calls = %d, want 1", f.refresh)
	}
	if m.notice != "refresh ok" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestEditHost(t *testing.T) {
	m, f := newTestModel(controller.View{HostValid: true})

	m, _ = press(t, m, runes("h"))
	if !m.editing {
		t.Fatal("h did not focus the host field")
	}
	for _, r := range "pi.hole" {
		m, _ = press(t, m, runes(string(r)))
	}
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = settle(t, m, cmd)

	if m.editing {
		t.Error("still editing after enter")
	}
	if len(f.hosts) != 1 || f.hosts[0] != "pi.hole" {
		t.Errorf("hosts = %v", f.hosts)
	}
	if m.view.HostValid {
		t.Error("HostValid = true for a host without a scheme")
	}
	if !strings.Contains(m.View(), "must start with http://") {
		t.Errorf("View() missing invalid host warning: %q", m.View())
	}
}

func TestEditHost_Cancel(t *testing.T) {
	m, f := newTestModel(controller.View{Host: "http://a", HostValid: true})

	m, _ = press(t, m, runes("h"))
	m, _ = press(t, m, runes("x"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.editing || m.host.Value() != "http://a" {
		t.Errorf("editing = %v, value = %q", m.editing, m.host.Value())
	}
	if len(f.hosts) != 0 {
		t.Errorf("hosts = %v, want none", f.hosts)
	}
}

func TestEditing_KeysGoToField(t *testing.T) {
	m, f := newTestModel(controller.View{HostValid: true})

	m, _ = press(t, m, runes("h"))
	m, _ = press(t, m, runes("t"))
	m, _ = press(t, m, runes("q"))

	if len(f.toggles) != 0 {
		t.Error("t toggled while editing the host")
	}
	if m.host.Value() != "tq" {
		t.Errorf("host value = %q, want %q", m.host.Value(), "tq")
	}
}

func TestViewMsg(t *testing.T) {
	m, _ := newTestModel(controller.View{HostValid: true})

	next, _ := m.Update(ViewMsg{View: controller.View{
		Host:       "http://h",
		HostValid:  true,
		Status:     store.StatusEnabled,
		Connection: controller.NotConnected,
	}})
	m = next.(Model)

	out := m.View()
	for _, want := range []string{"http://h", "ON", "not connected"} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q: %q", want, out)
		}
	}
}

func TestResultMsg_Failure(t *testing.T) {
	m, _ := newTestModel(controller.View{HostValid: true})

	res := reconcile.Result{Err: &transport.Error{Kind: transport.KindNetwork, Err: errors.New("refused")}}
	next, cmd := m.Update(resultMsg{action: "enable", result: res})
	m = next.(Model)

	if !strings.HasPrefix(m.notice, "enable failed") || m.noticeOK {
		t.Errorf("notice = %q, ok = %v", m.notice, m.noticeOK)
	}
	if cmd == nil {
		t.Error("no clear timer scheduled")
	}

	// a stale clear does not hide a newer notice
	next, _ = m.Update(clearNoticeMsg{id: m.noticeID - 1})
	if next.(Model).notice == "" {
		t.Error("stale clear removed the notice")
	}
	next, _ = m.Update(clearNoticeMsg{id: m.noticeID})
	if next.(Model).notice != "" {
		t.Error("notice not cleared")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(controller.View{HostValid: true})

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestProgramRef_SendWithoutProgram(t *testing.T) {
	ref := NewProgramRef()
	// must not block or panic
	ref.Observe(controller.View{Host: "http://h"})
}

func TestView_TruncatesLongHost(t *testing.T) {
	host := "http://" + strings.Repeat("a", 80) + ".example"
	m, _ := newTestModel(controller.View{Host: host, HostValid: true})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	out := next.(Model).View()

	if strings.Contains(out, host) {
		t.Error("long host was not truncated")
	}
	if !strings.Contains(out, "…") {
		t.Errorf("View() missing ellipsis: %q", out)
	}
}
