// flowdash-console subscribes to upstream channels and prints each
// decoded message, for eyeballing a feed without the dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowdash/internal/stream"
	"flowdash/internal/util"
)

func main() {
	baseURL := flag.String("url", "ws://localhost:8091", "upstream base URL")
	channels := flag.String("channels", "flow", "comma-separated channels to watch")
	retry := flag.Bool("retry", true, "automatically reconnect on errors")
	flag.Parse()

	logger := util.NewLogger("warn", "text")
	util.SetDefault(logger)

	m := stream.New(stream.Options{
		Catalog:   stream.NewCatalog(*baseURL),
		Transport: &stream.WebsocketTransport{HandshakeTimeout: 10 * time.Second},
		Retry: stream.RetryPolicy{
			AutoRetry:    *retry,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Logger: logger,
	})
	defer m.Close()

	m.OnStatusChange(func(s stream.State) {
		fmt.Printf("--- status: %s\n", s)
	})

	for _, name := range strings.Split(*channels, ",") {
		ch := stream.ChannelID(strings.TrimSpace(name))
		dispose, err := m.Subscribe(ch, printMessage(ch))
		if err != nil {
			fmt.Fprintf(os.Stderr, "subscribe %s: %v\n", ch, err)
			os.Exit(1)
		}
		defer dispose()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	fmt.Println("bye")
}

func printMessage(ch stream.ChannelID) stream.Handler {
	return func(msg any) {
		switch v := msg.(type) {
		case stream.FlowEvent:
			fmt.Printf("[%s] %-5s %4s %s %.0f exp %s  %d @ %.2f  ($%.0f)\n",
				ch, v.Symbol, v.Side, v.OptionType, v.Strike, v.Expiry, v.Size, v.Price, v.Premium)
		case stream.GammaSnapshot:
			fmt.Printf("[%s] %-5s spot %.2f  %d levels\n", ch, v.Symbol, v.Spot, len(v.Levels))
		case stream.Quote:
			fmt.Printf("[%s] %-5s %.2f / %.2f  last %.2f\n", ch, v.Symbol, v.Bid, v.Ask, v.Last)
		case stream.PortfolioUpdate:
			fmt.Printf("[%s] equity %.2f  cash %.2f  %d positions\n", ch, v.Equity, v.Cash, len(v.Positions))
		default:
			fmt.Printf("[%s] %+v\n", ch, v)
		}
	}
}
