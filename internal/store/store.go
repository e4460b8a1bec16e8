// Package store persists decoded stream events for dashboard queries
// and end-of-day archival.
package store

import (
	"context"
	"time"

	"flowdash/internal/stream"
)

// FlowStore persists and retrieves options-flow prints.
type FlowStore interface {
	// WriteFlowEvents persists a batch of flow events.
	WriteFlowEvents(ctx context.Context, events []stream.FlowEvent) error

	// RecentFlowEvents returns the most recent flow events, newest
	// first, up to limit.
	RecentFlowEvents(ctx context.Context, limit int) ([]stream.FlowEvent, error)

	// FlowEventsSince returns flow events with timestamps at or after
	// since, oldest first.
	FlowEventsSince(ctx context.Context, since time.Time) ([]stream.FlowEvent, error)
}

// GammaStore persists and retrieves gamma-exposure snapshots.
type GammaStore interface {
	// WriteGammaSnapshot persists one surface snapshot.
	WriteGammaSnapshot(ctx context.Context, snap stream.GammaSnapshot) error

	// LatestGammaSnapshot returns the newest snapshot for a symbol,
	// or nil if none has been recorded.
	LatestGammaSnapshot(ctx context.Context, symbol string) (*stream.GammaSnapshot, error)
}
