package numbering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidebooks/tidebooks/internal/directory"
)

type memoryCounters struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{counters: make(map[string]int64)}
}

func (m *memoryCounters) Next(ctx context.Context, companyID string, series SeriesCode, period string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%s:%s", companyID, series, period)
	m.counters[key]++
	return m.counters[key], nil
}

type staticCompanies struct {
	companies map[string]directory.Company
}

func (s *staticCompanies) GetCompany(ctx context.Context, id string) (*directory.Company, error) {
	company, ok := s.companies[id]
	if !ok {
		return nil, directory.ErrCompanyNotFound
	}
	return &company, nil
}

func fixture() (*Service, *memoryCounters) {
	repo := newMemoryCounters()
	companies := &staticCompanies{companies: map[string]directory.Company{
		"acme": {ID: "acme", Name: "Acme Traders", FiscalStart: time.April},
		"cal":  {ID: "cal", Name: "Calendar Co", NumberPrefix: "CC", FiscalStart: time.January},
	}}
	return NewService(repo, companies), repo
}

func TestAllocateFormatsNumber(t *testing.T) {
	svc, _ := fixture()
	ctx := context.Background()

	alloc, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "CASH", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, SeriesCashSales, alloc.SeriesCode)
	require.Equal(t, int64(1), alloc.Sequence)
	require.Equal(t, "AC-CS-0001-25/26", alloc.Number)
}

func TestAllocateDistinctSequencesPerKey(t *testing.T) {
	svc, _ := fixture()
	ctx := context.Background()
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		alloc, err := svc.Allocate(ctx, "acme", DocPurchaseInvoice, "", date)
		require.NoError(t, err)
		require.False(t, seen[alloc.Sequence])
		seen[alloc.Sequence] = true
	}
}

func TestAllocateSeriesBranchOnPaymentMode(t *testing.T) {
	svc, _ := fixture()
	ctx := context.Background()
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	cash, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "cash", date)
	require.NoError(t, err)
	credit, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "CREDIT", date)
	require.NoError(t, err)
	bank, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "BANK", date)
	require.NoError(t, err)

	require.Equal(t, SeriesCashSales, cash.SeriesCode)
	require.Equal(t, SeriesCreditSales, credit.SeriesCode)
	require.Equal(t, SeriesCreditSales, bank.SeriesCode)
	// cash and credit counters are independent
	require.Equal(t, int64(1), cash.Sequence)
	require.Equal(t, int64(1), credit.Sequence)
	require.Equal(t, int64(2), bank.Sequence)
}

func TestAllocateFiscalBoundaryResetsSequence(t *testing.T) {
	svc, _ := fixture()
	ctx := context.Background()

	last, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "CREDIT", time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	first, err := svc.Allocate(ctx, "acme", DocSalesInvoice, "CREDIT", time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, "24/25", last.Period)
	require.Equal(t, "25/26", first.Period)
	require.Equal(t, int64(1), last.Sequence)
	require.Equal(t, int64(1), first.Sequence)
}

func TestAllocateCalendarPeriod(t *testing.T) {
	svc, _ := fixture()
	alloc, err := svc.Allocate(context.Background(), "cal", DocReceiptVoucher, "", time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "CC-RV-0001-2025", alloc.Number)
}

func TestAllocateUnresolvableTenant(t *testing.T) {
	svc, _ := fixture()
	_, err := svc.Allocate(context.Background(), "ghost", DocSalesInvoice, "CASH", time.Now())
	require.ErrorIs(t, err, ErrAllocationFailed)

	_, err = svc.Allocate(context.Background(), "", DocSalesInvoice, "CASH", time.Now())
	require.ErrorIs(t, err, ErrAllocationFailed)
}

func TestAllocateConcurrentCallersGetDistinctValues(t *testing.T) {
	svc, _ := fixture()
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	const callers = 16
	results := make(chan int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := svc.Allocate(context.Background(), "acme", DocPaymentVoucher, "", date)
			require.NoError(t, err)
			results <- alloc.Sequence
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for seq := range results {
		require.False(t, seen[seq], "sequence %d issued twice", seq)
		seen[seq] = true
	}
	require.Len(t, seen, callers)
}
