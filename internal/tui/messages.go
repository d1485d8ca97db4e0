package tui

import (
	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
)

// ViewMsg carries a new controller view.
type ViewMsg struct {
	View controller.View
}

// resultMsg reports the outcome of a user action.
type resultMsg struct {
	action string
	result reconcile.Result
	err    error
}

// clearNoticeMsg hides the last action notice.
type clearNoticeMsg struct {
	id int
}
