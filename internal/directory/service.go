package directory

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the directory module.
var (
	ErrCompanyNotFound = errors.New("directory: company not found")
	ErrPartyNotFound   = errors.New("directory: party not found")
	ErrInvalidRole     = errors.New("directory: invalid party role")
)

// RepositoryPort defines data access methods for the directory.
type RepositoryPort interface {
	CreateCompany(ctx context.Context, company Company) (*Company, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	CreateParty(ctx context.Context, party Party) (*Party, error)
	GetParty(ctx context.Context, companyID, id string) (*Party, error)
	ListParties(ctx context.Context, companyID string) ([]Party, error)
}

// Service handles company and party administration.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateCompany registers a tenant.
func (s *Service) CreateCompany(ctx context.Context, input CompanyInput) (*Company, error) {
	if input.Name == "" {
		return nil, errors.New("directory: company name required")
	}
	fiscal := input.FiscalStart
	if fiscal < time.January || fiscal > time.December {
		fiscal = time.January
	}
	now := time.Now().UTC()
	return s.repo.CreateCompany(ctx, Company{
		Name:         input.Name,
		NumberPrefix: input.NumberPrefix,
		FiscalStart:  fiscal,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// GetCompany resolves a tenant by id.
func (s *Service) GetCompany(ctx context.Context, id string) (*Company, error) {
	if id == "" {
		return nil, ErrCompanyNotFound
	}
	return s.repo.GetCompany(ctx, id)
}

// ListCompanies returns all tenants.
func (s *Service) ListCompanies(ctx context.Context) ([]Company, error) {
	return s.repo.ListCompanies(ctx)
}

// CreateParty registers a party under a company.
func (s *Service) CreateParty(ctx context.Context, input PartyInput) (*Party, error) {
	if input.CompanyID == "" {
		return nil, ErrCompanyNotFound
	}
	if input.Name == "" {
		return nil, errors.New("directory: party name required")
	}
	if !input.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if _, err := s.repo.GetCompany(ctx, input.CompanyID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.repo.CreateParty(ctx, Party{
		CompanyID:      input.CompanyID,
		Name:           input.Name,
		Role:           input.Role,
		OpeningBalance: input.OpeningBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// GetParty resolves a party within a company.
func (s *Service) GetParty(ctx context.Context, companyID, id string) (*Party, error) {
	if companyID == "" || id == "" {
		return nil, ErrPartyNotFound
	}
	return s.repo.GetParty(ctx, companyID, id)
}

// ListParties returns parties for a company.
func (s *Service) ListParties(ctx context.Context, companyID string) ([]Party, error) {
	return s.repo.ListParties(ctx, companyID)
}
