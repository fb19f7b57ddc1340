// Package sequence issues unique, increasing invoice numbers from a durable
// named counter.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"kasirpos/backend/internal/apperror"
)

const InvoiceSequence = "invoiceNumber"

// Counter is a named integer whose increment is a single atomic operation.
type Counter interface {
	// IncrementSequence adds one and returns the new value. An absent counter starts at 0.
	IncrementSequence(ctx context.Context, name string) (int64, error)
	// CurrentSequence returns the stored value and whether the counter exists.
	CurrentSequence(ctx context.Context, name string) (int64, bool, error)
	// SeedSequence creates the counter at value unless it already exists, and
	// returns whatever value the counter holds afterwards.
	SeedSequence(ctx context.Context, name string, value int64) (int64, error)
}

// SeedSource supplies the existing sales a fresh counter is seeded from.
type SeedSource interface {
	ListInvoiceNumbers(ctx context.Context) ([]string, error)
	CountSales(ctx context.Context) (int64, error)
}

type Format struct {
	Prefix string
	Width  int
}

func DefaultFormat() Format {
	return Format{Prefix: "S", Width: 3}
}

// Render formats v as PREFIX-000v. Values wider than Width are printed in full.
func (f Format) Render(v int64) string {
	width := f.Width
	if width < 1 {
		width = 1
	}
	if f.Prefix == "" {
		return fmt.Sprintf("%0*d", width, v)
	}
	return fmt.Sprintf("%s-%0*d", f.Prefix, width, v)
}

// ParseSuffix extracts the numeric part after the last '-' of an invoice number.
func ParseSuffix(invoice string) (int64, bool) {
	invoice = strings.TrimSpace(invoice)
	if idx := strings.LastIndex(invoice, "-"); idx >= 0 {
		invoice = invoice[idx+1:]
	}
	if invoice == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(invoice, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type Generator struct {
	counter Counter
	source  SeedSource

	mu     sync.Mutex
	seeded map[string]bool
}

func NewGenerator(counter Counter, source SeedSource) *Generator {
	return &Generator{
		counter: counter,
		source:  source,
		seeded:  make(map[string]bool),
	}
}

// Next atomically advances the named counter and renders the new value.
// The first call per name in this process runs Initialize so that a missing
// counter is seeded from existing sales instead of restarting at one.
func (g *Generator) Next(ctx context.Context, name string, f Format) (string, error) {
	if err := g.ensureSeeded(ctx, name); err != nil {
		return "", err
	}
	v, err := g.counter.IncrementSequence(ctx, name)
	if err != nil {
		return "", unavailable(err)
	}
	return f.Render(v), nil
}

// Preview renders what the next call to Next would return without reserving it.
func (g *Generator) Preview(ctx context.Context, name string, f Format) (string, error) {
	current, exists, err := g.counter.CurrentSequence(ctx, name)
	if err != nil {
		return "", unavailable(err)
	}
	if !exists {
		current, err = g.seedValue(ctx)
		if err != nil {
			return "", err
		}
	}
	return f.Render(current + 1), nil
}

// Initialize seeds an absent counter and returns the value it holds. It never
// lowers an existing counter.
func (g *Generator) Initialize(ctx context.Context, name string) (int64, error) {
	current, exists, err := g.counter.CurrentSequence(ctx, name)
	if err != nil {
		return 0, unavailable(err)
	}
	if exists {
		g.markSeeded(name)
		return current, nil
	}

	seed, err := g.seedValue(ctx)
	if err != nil {
		return 0, err
	}
	value, err := g.counter.SeedSequence(ctx, name, seed)
	if err != nil {
		return 0, unavailable(err)
	}
	g.markSeeded(name)
	return value, nil
}

func (g *Generator) ensureSeeded(ctx context.Context, name string) error {
	g.mu.Lock()
	done := g.seeded[name]
	g.mu.Unlock()
	if done {
		return nil
	}
	_, err := g.Initialize(ctx, name)
	return err
}

func (g *Generator) markSeeded(name string) {
	g.mu.Lock()
	g.seeded[name] = true
	g.mu.Unlock()
}

// seedValue is the highest numeric invoice suffix on record, or the sale
// count when no invoice number parses.
func (g *Generator) seedValue(ctx context.Context) (int64, error) {
	if g.source == nil {
		return 0, nil
	}
	invoices, err := g.source.ListInvoiceNumbers(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	var best int64
	found := false
	for _, inv := range invoices {
		if n, ok := ParseSuffix(inv); ok {
			if !found || n > best {
				best = n
			}
			found = true
		}
	}
	if found {
		return best, nil
	}
	count, err := g.source.CountSales(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewStorageTimeout(err)
	}
	return apperror.NewCounterUnavailable(err)
}

func storageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewStorageTimeout(err)
	}
	return err
}
