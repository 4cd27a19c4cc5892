package directory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PartyRole classifies a party for balance computations.
type PartyRole string

// Known party roles.
const (
	RoleCustomer PartyRole = "CUSTOMER"
	RoleSupplier PartyRole = "SUPPLIER"
	RoleCash     PartyRole = "CASH"
	RoleBank     PartyRole = "BANK"
	RoleOwner    PartyRole = "OWNER"
)

// Valid reports whether the role belongs to the closed set.
func (r PartyRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleSupplier, RoleCash, RoleBank, RoleOwner:
		return true
	}
	return false
}

// BalanceClass determines whether debits or credits increase a party balance.
type BalanceClass string

// Balance classes.
const (
	ClassAsset     BalanceClass = "ASSET"
	ClassLiability BalanceClass = "LIABILITY"
)

// Class maps a role to its balance class. Customers, cash and bank accounts
// grow with debits; suppliers and owners grow with credits.
func (r PartyRole) Class() BalanceClass {
	switch r {
	case RoleSupplier, RoleOwner:
		return ClassLiability
	default:
		return ClassAsset
	}
}

// Company is the tenant scope under which all records live.
type Company struct {
	ID           string
	Name         string
	NumberPrefix string
	FiscalStart  time.Month
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Prefix returns the numbering prefix: the configured value, falling back to
// the first two letters of the display name, uppercased.
func (c Company) Prefix() string {
	if c.NumberPrefix != "" {
		return strings.ToUpper(c.NumberPrefix)
	}
	name := strings.TrimSpace(c.Name)
	runes := []rune(name)
	if len(runes) >= 2 {
		return strings.ToUpper(string(runes[:2]))
	}
	return strings.ToUpper(name)
}

// Party is a customer, supplier or money account within a company.
type Party struct {
	ID             string
	CompanyID      string
	Name           string
	Role           PartyRole
	OpeningBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CompanyInput for creating companies.
type CompanyInput struct {
	Name         string
	NumberPrefix string
	FiscalStart  time.Month
}

// PartyInput for creating parties.
type PartyInput struct {
	CompanyID      string
	Name           string
	Role           PartyRole
	OpeningBalance decimal.Decimal
}
