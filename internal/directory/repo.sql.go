package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCompany inserts a company row.
func (r *Repository) CreateCompany(ctx context.Context, company Company) (*Company, error) {
	company.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `INSERT INTO companies (id, name, number_prefix, fiscal_start, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, company.ID, company.Name, company.NumberPrefix, int(company.FiscalStart), company.CreatedAt, company.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// GetCompany fetches a company by id.
func (r *Repository) GetCompany(ctx context.Context, id string) (*Company, error) {
	var company Company
	var fiscal int
	err := r.pool.QueryRow(ctx, `SELECT id, name, number_prefix, fiscal_start, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&company.ID, &company.Name, &company.NumberPrefix, &fiscal, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	company.FiscalStart = time.Month(fiscal)
	return &company, nil
}

// ListCompanies returns all companies.
func (r *Repository) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, number_prefix, fiscal_start, created_at, updated_at FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var company Company
		var fiscal int
		if err := rows.Scan(&company.ID, &company.Name, &company.NumberPrefix, &fiscal, &company.CreatedAt, &company.UpdatedAt); err != nil {
			return nil, err
		}
		company.FiscalStart = time.Month(fiscal)
		companies = append(companies, company)
	}
	return companies, rows.Err()
}

// CreateParty inserts a party row.
func (r *Repository) CreateParty(ctx context.Context, party Party) (*Party, error) {
	party.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `INSERT INTO parties (id, company_id, name, role, opening_balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, party.ID, party.CompanyID, party.Name, string(party.Role), party.OpeningBalance, party.CreatedAt, party.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// GetParty fetches a party scoped to a company.
func (r *Repository) GetParty(ctx context.Context, companyID, id string) (*Party, error) {
	var party Party
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, role, opening_balance, created_at, updated_at FROM parties WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&party.ID, &party.CompanyID, &party.Name, &party.Role, &party.OpeningBalance, &party.CreatedAt, &party.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}

// ListParties returns parties for a company.
func (r *Repository) ListParties(ctx context.Context, companyID string) ([]Party, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, role, opening_balance, created_at, updated_at FROM parties WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parties []Party
	for rows.Next() {
		var party Party
		if err := rows.Scan(&party.ID, &party.CompanyID, &party.Name, &party.Role, &party.OpeningBalance, &party.CreatedAt, &party.UpdatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, party)
	}
	return parties, rows.Err()
}
