package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
)

// Controls are the controller operations the UI drives.
type Controls interface {
	View() controller.View
	SetHost(ctx context.Context, host string) (reconcile.Result, error)
	Refresh(ctx context.Context) reconcile.Result
	Toggle(ctx context.Context, want bool) reconcile.Result
}

func toggleCmd(ctx context.Context, ctrl Controls, want bool) tea.Cmd {
	return func() tea.Msg {
		action := "disable"
		if want {
			action = "enable"
		}
		return resultMsg{action: action, result: ctrl.Toggle(ctx, want)}
	}
}

func refreshCmd(ctx context.Context, ctrl Controls) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: "refresh", result: ctrl.Refresh(ctx)}
	}
}

func setHostCmd(ctx context.Context, ctrl Controls, host string) tea.Cmd {
	return func() tea.Msg {
		res, err := ctrl.SetHost(ctx, host)
		return resultMsg{action: "save host", result: res, err: err}
	}
}

func clearNoticeAfter(id int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNoticeMsg{id: id}
	})
}
