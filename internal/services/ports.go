package services

import (
	"context"

	"donations/internal/broadcast"
	"donations/internal/core"
)

type (
	// ChangeNotifier is told about every mutation of a store. persisted is
	// false when the durable write failed and only memory changed.
	ChangeNotifier interface {
		Notify(ctx context.Context, scope broadcast.Scope, persisted bool)
	}

	// Reloader re-reads its state from persistence.
	Reloader interface {
		Reload(ctx context.Context) error
	}

	// Refresher rebuilds the derived view.
	Refresher interface {
		Refresh(ctx context.Context, reason string) core.View
	}

	// ViewSink receives every freshly computed default view.
	ViewSink interface {
		ViewUpdated(ctx context.Context, v core.View)
	}
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, broadcast.Scope, bool) {}
