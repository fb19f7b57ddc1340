package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/apperror"
)

type fakeSource struct {
	invoices []string
	count    int64
	err      error
}

func (f fakeSource) ListInvoiceNumbers(context.Context) ([]string, error) {
	return f.invoices, f.err
}

func (f fakeSource) CountSales(context.Context) (int64, error) {
	return f.count, f.err
}

type brokenCounter struct{ err error }

func (b brokenCounter) IncrementSequence(context.Context, string) (int64, error) {
	return 0, b.err
}

func (b brokenCounter) CurrentSequence(context.Context, string) (int64, bool, error) {
	return 7, true, nil
}

func (b brokenCounter) SeedSequence(context.Context, string, int64) (int64, error) {
	return 0, b.err
}

func TestFormatRender(t *testing.T) {
	assert.Equal(t, "S-001", DefaultFormat().Render(1))
	assert.Equal(t, "S-1234", DefaultFormat().Render(1234))
	assert.Equal(t, "INV-00042", Format{Prefix: "INV", Width: 5}.Render(42))
	assert.Equal(t, "7", Format{}.Render(7))
}

func TestParseSuffix(t *testing.T) {
	cases := map[string]struct {
		want int64
		ok   bool
	}{
		"S-001":       {1, true},
		"INV-2024-17": {17, true},
		"42":          {42, true},
		"S-":          {0, false},
		"S-abc":       {0, false},
		"":            {0, false},
	}
	for in, tc := range cases {
		got, ok := ParseSuffix(in)
		assert.Equal(t, tc.ok, ok, in)
		assert.Equal(t, tc.want, got, in)
	}
}

func TestNextIsUniqueUnderConcurrency(t *testing.T) {
	gen := NewGenerator(NewMemoryCounter(), fakeSource{})
	ctx := context.Background()

	const n = 200
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, err := gen.Next(ctx, InvoiceSequence, DefaultFormat())
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			results[i] = inv
		}(i)
	}
	wg.Wait()

	values := make([]int, 0, n)
	seen := make(map[string]bool, n)
	for _, inv := range results {
		require.False(t, seen[inv], "duplicate invoice %s", inv)
		seen[inv] = true
		v, ok := ParseSuffix(inv)
		require.True(t, ok)
		values = append(values, int(v))
	}
	sort.Ints(values)
	for i, v := range values {
		assert.Equal(t, i+1, v)
	}
}

func TestInitializeSeedsFromHighestSuffix(t *testing.T) {
	counter := NewMemoryCounter()
	gen := NewGenerator(counter, fakeSource{invoices: []string{"S-003", "S-011", "legacy", "S-007"}, count: 4})
	ctx := context.Background()

	v, err := gen.Initialize(ctx, InvoiceSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	next, err := gen.Next(ctx, InvoiceSequence, DefaultFormat())
	require.NoError(t, err)
	assert.Equal(t, "S-012", next)

	// idempotent and never regresses
	v, err = gen.Initialize(ctx, InvoiceSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
}

func TestInitializeFallsBackToCount(t *testing.T) {
	gen := NewGenerator(NewMemoryCounter(), fakeSource{invoices: []string{"legacy-a", "old"}, count: 9})

	v, err := gen.Initialize(context.Background(), InvoiceSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
}

func TestPreviewDoesNotReserve(t *testing.T) {
	gen := NewGenerator(NewMemoryCounter(), fakeSource{invoices: []string{"S-005"}})
	ctx := context.Background()

	p1, err := gen.Preview(ctx, InvoiceSequence, DefaultFormat())
	require.NoError(t, err)
	p2, err := gen.Preview(ctx, InvoiceSequence, DefaultFormat())
	require.NoError(t, err)
	assert.Equal(t, "S-006", p1)
	assert.Equal(t, p1, p2)

	next, err := gen.Next(ctx, InvoiceSequence, DefaultFormat())
	require.NoError(t, err)
	assert.Equal(t, p1, next)
}

func TestNextFailsWithCounterUnavailable(t *testing.T) {
	gen := NewGenerator(brokenCounter{err: errors.New("connection refused")}, fakeSource{})

	_, err := gen.Next(context.Background(), InvoiceSequence, DefaultFormat())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCounterUnavailable))
}

func TestNextTimeoutIsStorageTimeout(t *testing.T) {
	gen := NewGenerator(brokenCounter{err: context.DeadlineExceeded}, fakeSource{})

	_, err := gen.Next(context.Background(), InvoiceSequence, DefaultFormat())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeTimeout))
}
