package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tidebooks/tidebooks/internal/directory"
)

type memoryRepo struct {
	entries []Entry
}

func (r *memoryRepo) ListEntries(ctx context.Context, companyID, partyID string, from, to time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.CompanyID != companyID || e.PartyID != partyID {
			continue
		}
		if !from.IsZero() && e.EntryDate.Before(from) {
			continue
		}
		if !to.IsZero() && e.EntryDate.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryDate.Before(out[j].EntryDate)
	})
	return out, nil
}

func (r *memoryRepo) SumBefore(ctx context.Context, companyID, partyID string, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range r.entries {
		if e.CompanyID != companyID || e.PartyID != partyID || !e.EntryDate.Before(before) {
			continue
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit, nil
}

func (r *memoryRepo) Outstanding(ctx context.Context, companyID string) ([]OutstandingRow, error) {
	return nil, nil
}

type staticParties struct {
	parties map[string]directory.Party
}

func (s *staticParties) GetParty(ctx context.Context, companyID, id string) (*directory.Party, error) {
	party, ok := s.parties[id]
	if !ok || party.CompanyID != companyID {
		return nil, directory.ErrPartyNotFound
	}
	return &party, nil
}

func day(d int) time.Time {
	return time.Date(2025, time.June, d, 0, 0, 0, 0, time.UTC)
}

func amount(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func fixture() (*Service, *memoryRepo) {
	repo := &memoryRepo{}
	parties := &staticParties{parties: map[string]directory.Party{
		"cust": {ID: "cust", CompanyID: "co", Name: "Customer", Role: directory.RoleCustomer, OpeningBalance: amount(100)},
		"supp": {ID: "supp", CompanyID: "co", Name: "Supplier", Role: directory.RoleSupplier, OpeningBalance: amount(50)},
	}}
	return NewService(repo, parties), repo
}

func TestRunningBalanceAssetLike(t *testing.T) {
	svc, repo := fixture()
	repo.entries = []Entry{
		{ID: 1, CompanyID: "co", PartyID: "cust", EntryDate: day(1), Kind: KindInvoice, Debit: amount(500)},
		{ID: 2, CompanyID: "co", PartyID: "cust", EntryDate: day(3), Kind: KindPayment, Credit: amount(200)},
	}

	statement, err := svc.RunningBalance(context.Background(), "co", "cust", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, statement.OpeningBalance.Equal(amount(100)))
	require.Len(t, statement.Lines, 2)
	require.True(t, statement.Lines[0].BalanceAfter.Equal(amount(600)))
	require.True(t, statement.Lines[1].BalanceAfter.Equal(amount(400)))
	require.True(t, statement.ClosingBalance.Equal(amount(400)))
}

func TestRunningBalanceLiabilityLike(t *testing.T) {
	svc, repo := fixture()
	repo.entries = []Entry{
		{ID: 1, CompanyID: "co", PartyID: "supp", EntryDate: day(1), Kind: KindInvoice, Credit: amount(300)},
		{ID: 2, CompanyID: "co", PartyID: "supp", EntryDate: day(2), Kind: KindPayment, Debit: amount(120)},
	}

	statement, err := svc.RunningBalance(context.Background(), "co", "supp", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, statement.Lines[0].BalanceAfter.Equal(amount(350)))
	require.True(t, statement.ClosingBalance.Equal(amount(230)))
}

func TestRunningBalanceFoldsEntriesBeforeRange(t *testing.T) {
	svc, repo := fixture()
	repo.entries = []Entry{
		{ID: 1, CompanyID: "co", PartyID: "cust", EntryDate: day(1), Kind: KindInvoice, Debit: amount(500)},
		{ID: 2, CompanyID: "co", PartyID: "cust", EntryDate: day(10), Kind: KindPayment, Credit: amount(100)},
	}

	statement, err := svc.RunningBalance(context.Background(), "co", "cust", day(5), time.Time{})
	require.NoError(t, err)
	// opening 100 + invoice 500 folded into the window opening
	require.True(t, statement.OpeningBalance.Equal(amount(600)))
	require.Len(t, statement.Lines, 1)
	require.True(t, statement.ClosingBalance.Equal(amount(500)))
}

func TestRunningBalanceSameDayOrderedByCreation(t *testing.T) {
	svc, repo := fixture()
	repo.entries = []Entry{
		{ID: 2, CompanyID: "co", PartyID: "cust", EntryDate: day(1), Kind: KindPayment, Credit: amount(50)},
		{ID: 1, CompanyID: "co", PartyID: "cust", EntryDate: day(1), Kind: KindInvoice, Debit: amount(200)},
	}

	statement, err := svc.RunningBalance(context.Background(), "co", "cust", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, KindInvoice, statement.Lines[0].Entry.Kind)
	require.True(t, statement.Lines[0].BalanceAfter.Equal(amount(300)))
	require.True(t, statement.Lines[1].BalanceAfter.Equal(amount(250)))
}

func TestRunningBalanceUnknownParty(t *testing.T) {
	svc, _ := fixture()
	_, err := svc.RunningBalance(context.Background(), "co", "ghost", time.Time{}, time.Time{})
	require.ErrorIs(t, err, directory.ErrPartyNotFound)
}

func TestRunningBalanceIsReadOnly(t *testing.T) {
	svc, repo := fixture()
	repo.entries = []Entry{
		{ID: 1, CompanyID: "co", PartyID: "cust", EntryDate: day(1), Kind: KindInvoice, Debit: amount(500)},
	}

	first, err := svc.RunningBalance(context.Background(), "co", "cust", time.Time{}, time.Time{})
	require.NoError(t, err)
	second, err := svc.RunningBalance(context.Background(), "co", "cust", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, len(first.Lines), len(second.Lines))
	require.True(t, first.ClosingBalance.Equal(second.ClosingBalance))
	require.Len(t, repo.entries, 1)
}
