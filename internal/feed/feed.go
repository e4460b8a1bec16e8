// Package feed serves local upstream channel endpoints over WebSocket,
// so the dashboard runs end to end without a third-party market-data
// subscription. Flow, gamma, and quote frames are simulated; the
// portfolio endpoint is backed by a PortfolioSource, which is the
// Alpaca brokerage API when credentials are configured.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flowdash/internal/stream"
)

// PortfolioSource produces portfolio snapshots for the portfolio
// channel.
type PortfolioSource interface {
	Snapshot(ctx context.Context) (stream.PortfolioUpdate, error)
}

// Options configures a feed Server.
type Options struct {
	Portfolio    PortfolioSource
	Interval     time.Duration
	QuoteSymbols []string
	Logger       *slog.Logger
}

// Server pushes channel frames to each connected consumer at a fixed
// interval. Endpoint paths mirror the stream catalog.
type Server struct {
	portfolio PortfolioSource
	interval  time.Duration
	symbols   []string
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

// NewServer creates a feed server.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	symbols := opts.QuoteSymbols
	if len(symbols) == 0 {
		symbols = []string{"SPY", "QQQ", "AAPL", "NVDA", "TSLA"}
	}
	return &Server{
		portfolio: opts.Portfolio,
		interval:  interval,
		symbols:   symbols,
		log:       log.With("component", "feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP handler serving every channel endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream/flow", s.handleFlow)
	mux.HandleFunc("/v1/stream/gex", s.handleGex)
	mux.HandleFunc("/v1/stream/quotes", s.handleQuotes)
	mux.HandleFunc("/v1/stream/portfolio", s.handlePortfolio)
	return mux
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	sim := newSimulator(s.symbols)
	s.stream(w, r, "flow", func(context.Context) (any, error) {
		return sim.flowEvent(), nil
	})
}

func (s *Server) handleGex(w http.ResponseWriter, r *http.Request) {
	sim := newSimulator(s.symbols)
	s.stream(w, r, "gex", func(context.Context) (any, error) {
		return sim.gammaSnapshot(), nil
	})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	sim := newSimulator(s.symbols)
	s.stream(w, r, "quotes", func(context.Context) (any, error) {
		return sim.quote(), nil
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.portfolio == nil {
		http.Error(w, "portfolio source not configured", http.StatusServiceUnavailable)
		return
	}
	s.stream(w, r, "portfolio", func(ctx context.Context) (any, error) {
		return s.portfolio.Snapshot(ctx)
	})
}

// stream upgrades the request and pushes one frame per interval until
// the consumer goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, name string, next func(context.Context) (any, error)) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "endpoint", name, "error", err)
		return
	}
	defer conn.Close()
	s.log.Info("consumer connected", "endpoint", name, "remote", r.RemoteAddr)

	// Drain inbound control frames and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.log.Info("consumer disconnected", "endpoint", name)
			return
		case <-ticker.C:
			msg, err := next(r.Context())
			if err != nil {
				s.log.Warn("building frame", "endpoint", name, "error", err)
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Info("consumer write failed", "endpoint", name, "error", err)
				return
			}
		}
	}
}
