package cache

import (
	"github.com/agentic-research/rota/internal/calendar"
)

// Callback receives data-availability events from the Manager. The
// manager publishes one-directionally and holds no reference into the
// consumer beyond this interface; Subscribe returns the handle that
// severs the link.
//
// For a single month key, OnDataStateChanged calls arrive in transition
// order; a transition superseded before delivery (a refresh landing on
// a just-completed load) may be skipped in favor of the newer one. No
// ordering holds across different keys.
type Callback interface {
	// OnDataStateChanged fires on every state transition of a month
	// entry. days is non-nil only for StateLoaded.
	OnDataStateChanged(month calendar.MonthKey, state DataState, days []*calendar.Day)

	// OnLoadingProgress is best-effort and may be skipped entirely for
	// fast loads. percent is in [0, 100].
	OnLoadingProgress(month calendar.MonthKey, percent int)
}
