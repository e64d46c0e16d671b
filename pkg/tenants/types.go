package tenants

import (
	"strings"
	"time"

	"github.com/platinummonkey/crmgate/pkg/apperror"
)

// Status represents tenant status
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Tenant is the root of data isolation
type Tenant struct {
	ID                      int64     `json:"id"`
	Name                    string    `json:"name"`
	Status                  Status    `json:"status"`
	CurrencySymbol          string    `json:"currencySymbol"`
	FinancialYearStartMonth int       `json:"financialYearStartMonth"`
	FinancialYearEndMonth   int       `json:"financialYearEndMonth"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// IsActive reports whether the tenant's users may sign in
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// FinancialYear is a twelve month reporting period. End is exclusive.
// Label is the calendar year the period ends in.
type FinancialYear struct {
	Label int       `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether at falls inside the year
func (fy FinancialYear) Contains(at time.Time) bool {
	return !at.Before(fy.Start) && at.Before(fy.End)
}

// FinancialYearEnding returns the financial year that ends in the
// calendar year label
func (t *Tenant) FinancialYearEnding(label int) FinancialYear {
	// month 13 normalizes to January of the next year
	end := time.Date(label, time.Month(t.FinancialYearEndMonth+1), 1, 0, 0, 0, 0, time.UTC)
	return FinancialYear{Label: label, Start: end.AddDate(-1, 0, 0), End: end}
}

// FinancialYearOf returns the financial year containing at
func (t *Tenant) FinancialYearOf(at time.Time) FinancialYear {
	at = at.UTC()
	label := at.Year()
	if int(at.Month()) > t.FinancialYearEndMonth {
		label++
	}
	return t.FinancialYearEnding(label)
}

func validateMonths(start, end int) error {
	if start < 1 || start > 12 || end < 1 || end > 12 {
		return apperror.Validation("financial year months must be between 1 and 12")
	}
	if (start+10)%12+1 != end {
		return apperror.Validation("financial year must end the month before it starts, got %d to %d", start, end)
	}
	return nil
}

// CreateTenantRequest is the body of POST /api/Tenant/Create
type CreateTenantRequest struct {
	Name                    string `json:"name"`
	CurrencySymbol          string `json:"currencySymbol"`
	FinancialYearStartMonth int    `json:"financialYearStartMonth"`
	FinancialYearEndMonth   int    `json:"financialYearEndMonth"`
}

// Validate checks the request and fills defaults. A year without months is
// the calendar year.
func (r *CreateTenantRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperror.Validation("name is required")
	}
	if len(r.Name) > 200 {
		return apperror.Validation("name must be at most 200 characters")
	}
	if r.FinancialYearStartMonth == 0 && r.FinancialYearEndMonth == 0 {
		r.FinancialYearStartMonth, r.FinancialYearEndMonth = 1, 12
	}
	return validateMonths(r.FinancialYearStartMonth, r.FinancialYearEndMonth)
}

// UpdateTenantRequest is the body of PUT /api/Tenant/Update/{id}. Nil
// fields are left unchanged.
type UpdateTenantRequest struct {
	Name                    *string `json:"name,omitempty"`
	Status                  *Status `json:"status,omitempty"`
	CurrencySymbol          *string `json:"currencySymbol,omitempty"`
	FinancialYearStartMonth *int    `json:"financialYearStartMonth,omitempty"`
	FinancialYearEndMonth   *int    `json:"financialYearEndMonth,omitempty"`
}

// Apply writes the request onto t and validates the result
func (r *UpdateTenantRequest) Apply(t *Tenant) error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return apperror.Validation("name cannot be empty")
		}
		t.Name = name
	}
	if r.Status != nil {
		if !r.Status.Valid() {
			return apperror.Validation("unknown status %q", *r.Status)
		}
		t.Status = *r.Status
	}
	if r.CurrencySymbol != nil {
		t.CurrencySymbol = strings.TrimSpace(*r.CurrencySymbol)
	}
	if r.FinancialYearStartMonth != nil {
		t.FinancialYearStartMonth = *r.FinancialYearStartMonth
	}
	if r.FinancialYearEndMonth != nil {
		t.FinancialYearEndMonth = *r.FinancialYearEndMonth
	}
	return validateMonths(t.FinancialYearStartMonth, t.FinancialYearEndMonth)
}
