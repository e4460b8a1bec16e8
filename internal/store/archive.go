package store

import (
	"context"
	"log/slog"
	"time"
)

// Archiver exports one day's recorded flow events from SQLite to the
// Parquet archive. It is run by the server's cron schedule after the
// close, and can be invoked manually for backfills.
type Archiver struct {
	flow    FlowStore
	archive *ParquetArchive
	log     *slog.Logger
}

// NewArchiver creates an archiver reading from flow and writing to
// archive.
func NewArchiver(flow FlowStore, archive *ParquetArchive, log *slog.Logger) *Archiver {
	return &Archiver{
		flow:    flow,
		archive: archive,
		log:     log.With("component", "archiver"),
	}
}

// RunOnce exports the events recorded on day (midnight to midnight in
// day's location).
func (a *Archiver) RunOnce(ctx context.Context, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	events, err := a.flow.FlowEventsSince(ctx, start)
	if err != nil {
		return err
	}
	// FlowEventsSince has no upper bound; trim anything after midnight.
	trimmed := events[:0]
	for _, ev := range events {
		if ev.Timestamp < end.UnixMilli() {
			trimmed = append(trimmed, ev)
		}
	}
	if len(trimmed) == 0 {
		a.log.Info("nothing to archive", "day", start.Format("2006-01-02"))
		return nil
	}
	if err := a.archive.WriteDay(start, trimmed); err != nil {
		return err
	}
	a.log.Info("archived flow events", "day", start.Format("2006-01-02"), "count", len(trimmed))
	return nil
}
