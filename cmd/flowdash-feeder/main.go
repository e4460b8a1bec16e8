// flowdash-feeder serves the upstream channel endpoints locally. It is
// the development stand-in for a paid market-data subscription: flow,
// gamma, and quote frames are simulated, and the portfolio endpoint is
// backed by Alpaca when credentials are configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flowdash/internal/config"
	"flowdash/internal/feed"
	"flowdash/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/flowdash.yaml"
	if p := os.Getenv("FLOWDASH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	symbols := splitSymbols(cfg.Feed.QuoteSymbols)

	var portfolio feed.PortfolioSource
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		portfolio = feed.NewAlpacaPortfolio(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Feed.PollsPerMin)
		logger.Info("portfolio source: alpaca", "base_url", cfg.Alpaca.BaseURL)
	} else {
		portfolio = feed.NewSimPortfolio(symbols)
		logger.Info("portfolio source: simulated")
	}

	server := feed.NewServer(feed.Options{
		Portfolio:    portfolio,
		Interval:     time.Duration(cfg.Feed.IntervalMs) * time.Millisecond,
		QuoteSymbols: symbols,
		Logger:       logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Feed.Host, cfg.Feed.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("flowdash-feeder listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("feeder error", "error", err)
		os.Exit(1)
	}
	logger.Info("flowdash-feeder stopped")
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
