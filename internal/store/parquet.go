package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"flowdash/internal/stream"
)

// ParquetArchive writes daily Parquet exports of recorded flow events
// under <DataDir>/flow/<YYYY-MM-DD>.parquet.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates an archive rooted at the given directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// FlowRecord is the Parquet schema for archived flow events.
type FlowRecord struct {
	Symbol     string  `parquet:"symbol"`
	OptionType string  `parquet:"option_type"`
	Strike     float64 `parquet:"strike"`
	Expiry     string  `parquet:"expiry"`
	Side       string  `parquet:"side"`
	Price      float64 `parquet:"price"`
	Size       int64   `parquet:"size"`
	Premium    float64 `parquet:"premium"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
}

// WriteDay writes (or overwrites) one day's flow events. The export is
// idempotent: re-running a day replaces the file wholesale.
func (a *ParquetArchive) WriteDay(day time.Time, events []stream.FlowEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]FlowRecord, len(events))
	for i, ev := range events {
		records[i] = FlowRecord{
			Symbol:     ev.Symbol,
			OptionType: ev.OptionType,
			Strike:     ev.Strike,
			Expiry:     ev.Expiry,
			Side:       ev.Side,
			Price:      ev.Price,
			Size:       ev.Size,
			Premium:    ev.Premium,
			Timestamp:  ev.Timestamp,
		}
	}

	path := a.dayPath(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing archive for %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// ReadDay reads one day's archived flow events. A missing file yields
// an empty slice.
func (a *ParquetArchive) ReadDay(day time.Time) ([]stream.FlowEvent, error) {
	path := a.dayPath(day)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := parquet.ReadFile[FlowRecord](path)
	if err != nil {
		return nil, err
	}
	events := make([]stream.FlowEvent, len(records))
	for i, r := range records {
		events[i] = stream.FlowEvent{
			Symbol:     r.Symbol,
			OptionType: r.OptionType,
			Strike:     r.Strike,
			Expiry:     r.Expiry,
			Side:       r.Side,
			Price:      r.Price,
			Size:       r.Size,
			Premium:    r.Premium,
			Timestamp:  r.Timestamp,
		}
	}
	return events, nil
}

func (a *ParquetArchive) dayPath(day time.Time) string {
	return filepath.Join(a.DataDir, "flow", day.Format("2006-01-02")+".parquet")
}
