package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/directory"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// PartyResolver looks up party roles and opening balances.
type PartyResolver interface {
	GetParty(ctx context.Context, companyID, id string) (*directory.Party, error)
}

// RepositoryPort defines read access to persisted ledger rows. The
// aggregator never writes; entries are created by the document flows that
// cause them.
type RepositoryPort interface {
	// ListEntries returns entries for a party ordered by (entry_date, id).
	ListEntries(ctx context.Context, companyID, partyID string, from, to time.Time) ([]Entry, error)
	// SumBefore returns total debits and credits strictly before the date.
	SumBefore(ctx context.Context, companyID, partyID string, before time.Time) (debit, credit decimal.Decimal, err error)
	// Outstanding lists invoices with a remaining due amount.
	Outstanding(ctx context.Context, companyID string) ([]OutstandingRow, error)
}

// Service computes running balances from persisted ledger rows only. It is
// pure with respect to the store: no writes, safe to call concurrently.
type Service struct {
	repo    RepositoryPort
	parties PartyResolver
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, parties PartyResolver) *Service {
	return &Service{repo: repo, parties: parties}
}

// RunningBalance folds a party's entries left-to-right starting from its
// opening balance. Asset-like roles grow with debits, liability-like with
// credits. Entries before the requested range are folded into the opening
// line so the window starts from the correct accumulator.
func (s *Service) RunningBalance(ctx context.Context, tenantID, partyID string, from, to time.Time) (*Statement, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	party, err := s.parties.GetParty(ctx, tenantID, partyID)
	if err != nil {
		return nil, err
	}
	class := party.Role.Class()

	opening := party.OpeningBalance
	if !from.IsZero() {
		debit, credit, err := s.repo.SumBefore(ctx, tenantID, partyID, from)
		if err != nil {
			return nil, err
		}
		opening = opening.Add(signed(class, debit, credit))
	}

	entries, err := s.repo.ListEntries(ctx, tenantID, partyID, from, to)
	if err != nil {
		return nil, err
	}

	statement := &Statement{
		PartyID:        party.ID,
		PartyName:      party.Name,
		OpeningBalance: opening,
		ClosingBalance: opening,
	}
	balance := opening
	for _, entry := range entries {
		balance = balance.Add(signed(class, entry.Debit, entry.Credit))
		statement.Lines = append(statement.Lines, BalanceLine{Entry: entry, BalanceAfter: balance})
	}
	statement.ClosingBalance = balance
	return statement, nil
}

// Outstanding returns open invoices for receivable/payable reporting.
func (s *Service) Outstanding(ctx context.Context, tenantID string) ([]OutstandingRow, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.Outstanding(ctx, tenantID)
}

func signed(class directory.BalanceClass, debit, credit decimal.Decimal) decimal.Decimal {
	if class == directory.ClassLiability {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
