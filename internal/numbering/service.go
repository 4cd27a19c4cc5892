package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidebooks/tidebooks/internal/directory"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Sentinel errors for the numbering module.
var (
	// ErrAllocationFailed indicates the tenant could not be resolved.
	ErrAllocationFailed = errors.New("numbering: sequence allocation failed")
	// ErrUnknownSeries indicates an unrecognised document class.
	ErrUnknownSeries = errors.New("numbering: unknown document series")
)

// CompanyResolver resolves tenant configuration for prefixes and fiscal pivots.
type CompanyResolver interface {
	GetCompany(ctx context.Context, id string) (*directory.Company, error)
}

// RepositoryPort defines data access for sequence counters.
type RepositoryPort interface {
	// Next atomically increments and returns the counter for
	// (company, series, period). Two concurrent callers never observe
	// the same value.
	Next(ctx context.Context, companyID string, series SeriesCode, period string) (int64, error)
}

// Service allocates unique, human-readable document numbers.
//
// Policy: increment-and-fetch against a persisted counter. Numbers are
// monotonic per (tenant, series, period); gaps left by deleted documents
// are never reused.
type Service struct {
	repo      RepositoryPort
	companies CompanyResolver
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, companies CompanyResolver) *Service {
	return &Service{repo: repo, companies: companies}
}

// Allocate assigns the next number for a document. The format is
// {prefix}-{series}-{sequence:04d}-{period}.
func (s *Service) Allocate(ctx context.Context, tenantID string, class DocumentClass, paymentMode string, effectiveDate time.Time) (Allocation, error) {
	if tenantID == "" {
		return Allocation{}, ErrAllocationFailed
	}
	series, err := SeriesFor(class, paymentMode)
	if err != nil {
		return Allocation{}, err
	}
	company, err := s.companies.GetCompany(ctx, tenantID)
	if err != nil {
		return Allocation{}, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if effectiveDate.IsZero() {
		effectiveDate = time.Now().UTC()
	}
	period := shared.PeriodLabel(effectiveDate, company.FiscalStart)
	seq, err := s.repo.Next(ctx, tenantID, series, period)
	if err != nil {
		return Allocation{}, err
	}
	return Allocation{
		Number:     fmt.Sprintf("%s-%s-%04d-%s", company.Prefix(), series, seq, period),
		Sequence:   seq,
		SeriesCode: series,
		Period:     period,
	}, nil
}
