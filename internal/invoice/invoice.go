package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"optikpos/backend/internal/store"
)

const prefix = "INV"

// Format renders an order number as INV-<year>-<seq>, zero padded to four digits.
// Sequences past 9999 are printed in full.
func Format(year int, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// Parse splits an order number produced by Format.
func Parse(number string) (year int, seq int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != prefix {
		return 0, 0, fmt.Errorf("malformed order number %q", number)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed order number %q: %w", number, err)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0, 0, fmt.Errorf("malformed order number %q", number)
	}
	return year, seq, nil
}

// Sequencer hands out per-year sequence values. Next must be atomic: two
// concurrent callers never observe the same value for a year. seed is the
// starting point used when the year's counter does not exist yet.
type Sequencer interface {
	Next(ctx context.Context, year int, seed int) (int, error)
}

type latestOrderFinder interface {
	LatestOrderNumber(ctx context.Context) (string, error)
}

// Generator issues order numbers. The latest order is only consulted until the
// year's counter has been advanced once by this process; after that the counter
// exists and the seed would be ignored anyway.
type Generator struct {
	seq    Sequencer
	orders latestOrderFinder
	now    func() time.Time

	mu     sync.Mutex
	seeded map[int]struct{}
}

func NewGenerator(seq Sequencer, orders latestOrderFinder, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{seq: seq, orders: orders, now: now, seeded: make(map[int]struct{})}
}

// Next returns the next order number for the current UTC year.
func (g *Generator) Next(ctx context.Context) (string, error) {
	year := g.now().UTC().Year()
	seed, err := g.seed(ctx, year)
	if err != nil {
		return "", err
	}
	seq, err := g.seq.Next(ctx, year, seed)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	g.seeded[year] = struct{}{}
	g.mu.Unlock()
	return Format(year, seq), nil
}

// seed derives the starting counter from the most recent order so that data
// written before counters existed keeps numbering forward. Orders from another
// year, or with numbers this package did not produce, start the year at zero.
func (g *Generator) seed(ctx context.Context, year int) (int, error) {
	if g.orders == nil {
		return 0, nil
	}
	g.mu.Lock()
	_, done := g.seeded[year]
	g.mu.Unlock()
	if done {
		return 0, nil
	}

	latest, err := g.orders.LatestOrderNumber(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	lastYear, lastSeq, err := Parse(latest)
	if err != nil || lastYear != year {
		return 0, nil
	}
	return lastSeq, nil
}
