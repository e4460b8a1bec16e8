package stream

import (
	"encoding/json"
	"fmt"
)

// Handler receives decoded messages for one channel. The concrete type
// depends on the channel: FlowEvent, GammaSnapshot, PortfolioUpdate, or
// Quote. Handlers run on the channel's read goroutine and should return
// quickly; slow consumers should hand off to their own goroutine.
type Handler func(msg any)

// FlowEvent is a single options-flow print.
type FlowEvent struct {
	Symbol     string  `json:"symbol"`
	OptionType string  `json:"option_type"` // "call" or "put"
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"` // YYYY-MM-DD
	Side       string  `json:"side"`   // "buy" or "sell"
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
	Premium    float64 `json:"premium"`
	Timestamp  int64   `json:"timestamp"` // Unix ms
}

// GammaLevel is the dealer gamma exposure at one strike.
type GammaLevel struct {
	Strike   float64 `json:"strike"`
	Exposure float64 `json:"exposure"` // dollar gamma per 1% move
}

// GammaSnapshot is a full gamma-exposure surface for one underlying.
type GammaSnapshot struct {
	Symbol    string       `json:"symbol"`
	Spot      float64      `json:"spot"`
	Levels    []GammaLevel `json:"levels"`
	Timestamp int64        `json:"timestamp"` // Unix ms
}

// Position is one open position inside a PortfolioUpdate.
type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgEntry     float64 `json:"avg_entry"`
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// PortfolioUpdate is a snapshot of account equity and open positions.
type PortfolioUpdate struct {
	Equity      float64    `json:"equity"`
	Cash        float64    `json:"cash"`
	BuyingPower float64    `json:"buying_power"`
	Positions   []Position `json:"positions"`
	Timestamp   int64      `json:"timestamp"` // Unix ms
}

// Quote is a top-of-book quote for one symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Timestamp int64   `json:"timestamp"` // Unix ms
}

// decodeFunc parses one raw frame into the channel's message type.
type decodeFunc func(frame []byte) (any, error)

// decoders is the per-channel decoding table. Every catalog channel
// must have an entry.
var decoders = map[ChannelID]decodeFunc{
	ChannelFlow:      decodeFlow,
	ChannelGex:       decodeGex,
	ChannelPortfolio: decodePortfolio,
	ChannelQuotes:    decodeQuote,
}

func decodeFlow(frame []byte) (any, error) {
	var ev FlowEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, err
	}
	if ev.Symbol == "" {
		return nil, fmt.Errorf("flow event missing symbol")
	}
	return ev, nil
}

func decodeGex(frame []byte) (any, error) {
	var snap GammaSnapshot
	if err := json.Unmarshal(frame, &snap); err != nil {
		return nil, err
	}
	if snap.Symbol == "" {
		return nil, fmt.Errorf("gamma snapshot missing symbol")
	}
	return snap, nil
}

func decodePortfolio(frame []byte) (any, error) {
	var upd PortfolioUpdate
	if err := json.Unmarshal(frame, &upd); err != nil {
		return nil, err
	}
	if upd.Timestamp == 0 {
		return nil, fmt.Errorf("portfolio update missing timestamp")
	}
	return upd, nil
}

func decodeQuote(frame []byte) (any, error) {
	var q Quote
	if err := json.Unmarshal(frame, &q); err != nil {
		return nil, err
	}
	if q.Symbol == "" {
		return nil, fmt.Errorf("quote missing symbol")
	}
	return q, nil
}
