package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flowdash/internal/stream"
)

func TestSimPortfolioSnapshot(t *testing.T) {
	src := NewSimPortfolio([]string{"SPY", "QQQ"})
	upd, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if upd.Equity <= 0 {
		t.Errorf("expected positive equity, got %v", upd.Equity)
	}
	if upd.Timestamp == 0 {
		t.Error("expected nonzero timestamp")
	}
	for _, p := range upd.Positions {
		if p.Symbol == "" || p.Qty <= 0 {
			t.Errorf("bad position %+v", p)
		}
	}
}

func TestSimulatorFrames(t *testing.T) {
	sim := newSimulator([]string{"AAPL"})

	ev := sim.flowEvent()
	if ev.Symbol != "AAPL" {
		t.Errorf("flow symbol = %q, want AAPL", ev.Symbol)
	}
	if ev.OptionType != "call" && ev.OptionType != "put" {
		t.Errorf("bad option type %q", ev.OptionType)
	}
	if ev.Premium <= 0 {
		t.Errorf("expected positive premium, got %v", ev.Premium)
	}

	snap := sim.gammaSnapshot()
	if len(snap.Levels) != 11 {
		t.Fatalf("expected 11 gamma levels, got %d", len(snap.Levels))
	}
	for _, lv := range snap.Levels {
		if lv.Strike < snap.Spot && lv.Exposure > 0 {
			t.Errorf("strike %v below spot %v should have negative exposure", lv.Strike, snap.Spot)
		}
	}

	q := sim.quote()
	if q.Bid >= q.Ask {
		t.Errorf("bid %v should be below ask %v", q.Bid, q.Ask)
	}
}

func TestPortfolioEndpointWithoutSource(t *testing.T) {
	srv := httptest.NewServer(NewServer(Options{Interval: 10 * time.Millisecond}).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stream/portfolio")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

// TestManagerConsumesFeed runs the feed server and a real manager over
// a live websocket, verifying the pushed frames decode end to end.
func TestManagerConsumesFeed(t *testing.T) {
	feed := NewServer(Options{
		Portfolio: NewSimPortfolio([]string{"SPY"}),
		Interval:  10 * time.Millisecond,
	})
	srv := httptest.NewServer(feed.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	m := stream.New(stream.Options{
		Catalog:   stream.NewCatalog(wsURL),
		Transport: &stream.WebsocketTransport{HandshakeTimeout: 5 * time.Second},
	})
	defer m.Close()

	got := make(chan any, 1)
	dispose, err := m.Subscribe(stream.ChannelFlow, func(msg any) {
		select {
		case got <- msg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer dispose()

	select {
	case msg := <-got:
		ev, ok := msg.(stream.FlowEvent)
		if !ok {
			t.Fatalf("expected FlowEvent, got %T", msg)
		}
		if ev.Symbol == "" || ev.Timestamp == 0 {
			t.Errorf("incomplete flow event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flow event")
	}
}
