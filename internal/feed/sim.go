package feed

import (
	"context"
	"math/rand"
	"time"

	"flowdash/internal/stream"
)

// simulator produces plausible random frames for one consumer. Each
// connection gets its own simulator, so there is no shared state to
// guard.
type simulator struct {
	rng     *rand.Rand
	symbols []string
	spot    map[string]float64
}

func newSimulator(symbols []string) *simulator {
	s := &simulator{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		symbols: symbols,
		spot:    make(map[string]float64, len(symbols)),
	}
	for _, sym := range symbols {
		s.spot[sym] = 50 + s.rng.Float64()*600
	}
	return s
}

func (s *simulator) symbol() string {
	return s.symbols[s.rng.Intn(len(s.symbols))]
}

// walk nudges a symbol's spot price by up to ±0.2%.
func (s *simulator) walk(sym string) float64 {
	p := s.spot[sym]
	p *= 1 + (s.rng.Float64()-0.5)*0.004
	s.spot[sym] = p
	return p
}

func (s *simulator) flowEvent() stream.FlowEvent {
	sym := s.symbol()
	spot := s.walk(sym)
	strike := float64(int(spot/5)) * 5
	optType := "call"
	if s.rng.Intn(2) == 0 {
		optType = "put"
	}
	side := "buy"
	if s.rng.Intn(2) == 0 {
		side = "sell"
	}
	price := 0.5 + s.rng.Float64()*8
	size := int64(1 + s.rng.Intn(500))
	return stream.FlowEvent{
		Symbol:     sym,
		OptionType: optType,
		Strike:     strike,
		Expiry:     time.Now().AddDate(0, 0, 7*(1+s.rng.Intn(8))).Format("2006-01-02"),
		Side:       side,
		Price:      price,
		Size:       size,
		Premium:    price * float64(size) * 100,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func (s *simulator) gammaSnapshot() stream.GammaSnapshot {
	sym := s.symbol()
	spot := s.walk(sym)
	base := float64(int(spot/5)) * 5
	levels := make([]stream.GammaLevel, 0, 11)
	for i := -5; i <= 5; i++ {
		strike := base + float64(i*5)
		// Exposure concentrates near the money and flips sign below it.
		weight := 1 / (1 + float64(i*i))
		sign := 1.0
		if strike < spot {
			sign = -1
		}
		levels = append(levels, stream.GammaLevel{
			Strike:   strike,
			Exposure: sign * weight * (0.5 + s.rng.Float64()) * 1e9,
		})
	}
	return stream.GammaSnapshot{
		Symbol:    sym,
		Spot:      spot,
		Levels:    levels,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (s *simulator) quote() stream.Quote {
	sym := s.symbol()
	spot := s.walk(sym)
	spread := spot * 0.0002
	return stream.Quote{
		Symbol:    sym,
		Bid:       spot - spread,
		Ask:       spot + spread,
		Last:      spot,
		Timestamp: time.Now().UnixMilli(),
	}
}

// SimPortfolio is a PortfolioSource that random-walks a paper account.
// It serves the portfolio channel when no Alpaca credentials are
// configured.
type SimPortfolio struct {
	sim    *simulator
	equity float64
	cash   float64
}

// NewSimPortfolio creates a simulated portfolio source.
func NewSimPortfolio(symbols []string) *SimPortfolio {
	return &SimPortfolio{
		sim:    newSimulator(symbols),
		equity: 100_000,
		cash:   40_000,
	}
}

var _ PortfolioSource = (*SimPortfolio)(nil)

// Snapshot returns the next simulated portfolio state.
func (p *SimPortfolio) Snapshot(context.Context) (stream.PortfolioUpdate, error) {
	p.equity *= 1 + (p.sim.rng.Float64()-0.5)*0.002
	positions := make([]stream.Position, 0, len(p.sim.symbols))
	invested := p.equity - p.cash
	for _, sym := range p.sim.symbols {
		spot := p.sim.walk(sym)
		qty := float64(int(invested / float64(len(p.sim.symbols)) / spot))
		if qty <= 0 {
			continue
		}
		avg := spot * (1 - (p.sim.rng.Float64()-0.5)*0.05)
		positions = append(positions, stream.Position{
			Symbol:       sym,
			Qty:          qty,
			AvgEntry:     avg,
			MarketValue:  qty * spot,
			UnrealizedPL: qty * (spot - avg),
		})
	}
	return stream.PortfolioUpdate{
		Equity:      p.equity,
		Cash:        p.cash,
		BuyingPower: p.cash * 2,
		Positions:   positions,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}
