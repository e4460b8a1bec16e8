package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"flowdash/internal/stream"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "flowdash.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleFlowEvents(base int64) []stream.FlowEvent {
	return []stream.FlowEvent{
		{Symbol: "SPY", OptionType: "call", Strike: 640, Expiry: "2026-09-18", Side: "buy", Price: 2.1, Size: 100, Premium: 21000, Timestamp: base},
		{Symbol: "QQQ", OptionType: "put", Strike: 560, Expiry: "2026-10-16", Side: "sell", Price: 4.8, Size: 50, Premium: 24000, Timestamp: base + 1000},
		{Symbol: "SPY", OptionType: "put", Strike: 630, Expiry: "2026-09-18", Side: "buy", Price: 1.4, Size: 200, Premium: 28000, Timestamp: base + 2000},
	}
}

func TestFlowEventsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UnixMilli()

	if err := s.WriteFlowEvents(ctx, sampleFlowEvents(base)); err != nil {
		t.Fatalf("WriteFlowEvents: %v", err)
	}

	recent, err := s.RecentFlowEvents(ctx, 2)
	if err != nil {
		t.Fatalf("RecentFlowEvents: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentFlowEvents returned %d events, want 2", len(recent))
	}
	if recent[0].Timestamp != base+2000 {
		t.Fatalf("newest event first: got ts %d, want %d", recent[0].Timestamp, base+2000)
	}

	since, err := s.FlowEventsSince(ctx, time.UnixMilli(base+1000))
	if err != nil {
		t.Fatalf("FlowEventsSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("FlowEventsSince returned %d events, want 2", len(since))
	}
	if since[0].Symbol != "QQQ" {
		t.Fatalf("oldest-first ordering broken: first symbol = %s", since[0].Symbol)
	}
}

func TestGammaSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := stream.GammaSnapshot{
		Symbol: "SPY",
		Spot:   641.2,
		Levels: []stream.GammaLevel{
			{Strike: 635, Exposure: 8.2e8},
			{Strike: 640, Exposure: 1.2e9},
			{Strike: 645, Exposure: -4.1e8},
		},
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.WriteGammaSnapshot(ctx, snap); err != nil {
		t.Fatalf("WriteGammaSnapshot: %v", err)
	}
	snap.Timestamp += 60000
	snap.Spot = 642.0
	if err := s.WriteGammaSnapshot(ctx, snap); err != nil {
		t.Fatalf("WriteGammaSnapshot (second): %v", err)
	}

	got, err := s.LatestGammaSnapshot(ctx, "SPY")
	if err != nil {
		t.Fatalf("LatestGammaSnapshot: %v", err)
	}
	if got == nil || got.Spot != 642.0 || len(got.Levels) != 3 {
		t.Fatalf("latest snapshot = %+v", got)
	}

	missing, err := s.LatestGammaSnapshot(ctx, "IWM")
	if err != nil {
		t.Fatalf("LatestGammaSnapshot for missing symbol: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unseen symbol, got %+v", missing)
	}
}

func TestParquetArchiveRoundTrip(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	events := sampleFlowEvents(day.UnixMilli())

	if err := a.WriteDay(day, events); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}
	got, err := a.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("ReadDay returned %d events, want %d", len(got), len(events))
	}
	if got[0] != events[0] {
		t.Fatalf("round trip mismatch: %+v vs %+v", got[0], events[0])
	}

	empty, err := a.ReadDay(day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ReadDay for missing day: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no events for missing day, got %d", len(empty))
	}
}

func TestArchiverExportsOneDay(t *testing.T) {
	s := newTestStore(t)
	archive := NewParquetArchive(t.TempDir())
	archiver := NewArchiver(s, archive, slog.Default())
	ctx := context.Background()

	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	inDay := sampleFlowEvents(day.Add(10 * time.Hour).UnixMilli())
	nextDay := []stream.FlowEvent{{
		Symbol: "IWM", OptionType: "call", Strike: 230, Expiry: "2026-09-18",
		Side: "buy", Price: 1.0, Size: 10, Premium: 1000,
		Timestamp: day.AddDate(0, 0, 1).Add(time.Hour).UnixMilli(),
	}}
	if err := s.WriteFlowEvents(ctx, append(inDay, nextDay...)); err != nil {
		t.Fatalf("WriteFlowEvents: %v", err)
	}

	if err := archiver.RunOnce(ctx, day); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := archive.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != len(inDay) {
		t.Fatalf("archived %d events, want %d (next-day event excluded)", len(got), len(inDay))
	}
}

func TestRecorderPersistsStreamEvents(t *testing.T) {
	s := newTestStore(t)
	rec := NewRecorder(s, s, slog.Default())

	// Feed the recorder directly through its subscription handler.
	rec.started = true
	go rec.worker()

	ev := sampleFlowEvents(time.Now().UnixMilli())[0]
	rec.enqueue(ev)
	rec.enqueue(stream.GammaSnapshot{
		Symbol: "SPY", Spot: 640, Timestamp: time.Now().UnixMilli(),
		Levels: []stream.GammaLevel{{Strike: 640, Exposure: 1e9}},
	})
	rec.Stop()

	ctx := context.Background()
	flows, err := s.RecentFlowEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentFlowEvents: %v", err)
	}
	if len(flows) != 1 || flows[0].Symbol != ev.Symbol {
		t.Fatalf("recorded flows = %+v", flows)
	}
	snap, err := s.LatestGammaSnapshot(ctx, "SPY")
	if err != nil || snap == nil {
		t.Fatalf("LatestGammaSnapshot = %+v, err %v", snap, err)
	}
}
