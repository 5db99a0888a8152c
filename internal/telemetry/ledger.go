// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// RECORDS
// =============================================================================

// TimestampLayout is the ISO-8601 layout written for each record. Records
// are always UTC and carry no zone suffix, matching logs written by earlier
// clients.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// readLayouts are tried in order when parsing stored timestamps.
var readLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Record is one completed API call.
type Record struct {
	Timestamp time.Time
	CostUSD   float64
}

// String renders the record as a ledger line without a trailing newline.
func (r Record) String() string {
	return r.Timestamp.UTC().Format(TimestampLayout) + "," +
		strconv.FormatFloat(r.CostUSD, 'g', -1, 64)
}

// ParseRecord parses a "<timestamp>,<cost>" line. Zone-less timestamps are
// read as UTC.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(line)
	ts, cost, ok := strings.Cut(line, ",")
	if !ok || strings.Contains(cost, ",") {
		return Record{}, fmt.Errorf("malformed record %q", line)
	}

	t, err := parseTimestamp(ts)
	if err != nil {
		return Record{}, err
	}

	c, err := strconv.ParseFloat(strings.TrimSpace(cost), 64)
	if err != nil {
		return Record{}, fmt.Errorf("malformed cost %q: %w", cost, err)
	}

	return Record{Timestamp: t, CostUSD: c}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// STORE
// =============================================================================

// Store is an append-only record backend. Implementations must tolerate
// concurrent Append and Since calls.
type Store interface {
	// Append durably adds a record. Prior records are never rewritten.
	Append(ctx context.Context, rec Record) error

	// Since returns the well-formed records at or after t. Malformed
	// entries are skipped.
	Since(ctx context.Context, t time.Time) ([]Record, error)

	Close() error
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger logs API call costs and sums the current month.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for timestamps and month boundaries.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// LogCall appends a record of cost stamped with the current UTC time.
func (l *Ledger) LogCall(ctx context.Context, cost float64) error {
	rec := Record{Timestamp: l.now().UTC(), CostUSD: cost}
	if err := l.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("log call cost: %w", err)
	}
	l.logger.Debug("api call cost logged", "cost_usd", cost)
	return nil
}

// MonthlyCost sums every record at or after the first instant of the
// current UTC month.
func (l *Ledger) MonthlyCost(ctx context.Context) (float64, error) {
	start := MonthStart(l.now())
	records, err := l.store.Since(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("read cost ledger: %w", err)
	}

	var total float64
	for _, r := range records {
		if !r.Timestamp.Before(start) {
			total += r.CostUSD
		}
	}
	return total, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
