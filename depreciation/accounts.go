package depreciation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// COMPANY / CATEGORY / ACCOUNT SETTINGS
// =============================================================================

type AccountRootType string

const (
	RootAsset     AccountRootType = "Asset"
	RootLiability AccountRootType = "Liability"
	RootEquity    AccountRootType = "Equity"
	RootIncome    AccountRootType = "Income"
	RootExpense   AccountRootType = "Expense"
)

type Account struct {
	Name     string          `json:"name"`
	Company  string          `json:"company"`
	RootType AccountRootType `json:"root_type"`
}

// Company holds the company-wide depreciation defaults.
type Company struct {
	Name                           string `json:"name"`
	DefaultFinanceBook             string `json:"default_finance_book,omitempty"`
	AccumulatedDepreciationAccount string `json:"accumulated_depreciation_account,omitempty"`
	DepreciationExpenseAccount     string `json:"depreciation_expense_account,omitempty"`
	DepreciationCostCenter         string `json:"depreciation_cost_center,omitempty"`
	SerialNoSeries                 string `json:"serial_no_series,omitempty"`
}

// CategoryAccount overrides the company accounts for one category.
type CategoryAccount struct {
	Company                        string `json:"company"`
	AccumulatedDepreciationAccount string `json:"accumulated_depreciation_account,omitempty"`
	DepreciationExpenseAccount     string `json:"depreciation_expense_account,omitempty"`
}

// CategoryFinanceBook is the default book setup for assets of a category.
type CategoryFinanceBook struct {
	FinanceBook  string `json:"finance_book"`
	TemplateName string `json:"template"`
}

type Category struct {
	Name         string                `json:"name"`
	Accounts     []CategoryAccount     `json:"accounts"`
	FinanceBooks []CategoryFinanceBook `json:"finance_books"`
}

func (c Category) AccountsFor(company string) (CategoryAccount, bool) {
	for _, a := range c.Accounts {
		if a.Company == company {
			return a, true
		}
	}
	return CategoryAccount{}, false
}

// Directory is read access to company, category and account settings.
type Directory interface {
	GetCompany(ctx context.Context, name string) (Company, error)
	GetCategory(ctx context.Context, name string) (Category, error)
	GetAccount(ctx context.Context, name string) (Account, error)
}

// =============================================================================
// ACCOUNTS RESOLVER
// =============================================================================

type AccountsResolver struct {
	Directory Directory
}

// ResolveDepreciationAccounts returns the accounts a depreciation posting
// credits and debits. The category's row for the company wins; each
// account it leaves blank falls back to the company default.
//
// An expense account of root type Expense gives credit = accumulated
// depreciation, debit = expense. Root type Income swaps them.
func (r *AccountsResolver) ResolveDepreciationAccounts(ctx context.Context, category, company string) (credit, debit string, err error) {
	var accumulated, expense string

	cat, err := r.Directory.GetCategory(ctx, category)
	switch {
	case err == nil:
		if row, ok := cat.AccountsFor(company); ok {
			accumulated = row.AccumulatedDepreciationAccount
			expense = row.DepreciationExpenseAccount
		}
	case !errors.Is(err, ErrNotFound):
		return "", "", fmt.Errorf("load asset category %s: %w", category, err)
	}

	if accumulated == "" || expense == "" {
		co, err := r.Directory.GetCompany(ctx, company)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", "", fmt.Errorf("load company %s: %w", company, err)
		}
		if accumulated == "" {
			accumulated = co.AccumulatedDepreciationAccount
		}
		if expense == "" {
			expense = co.DepreciationExpenseAccount
		}
	}

	var missing []string
	if accumulated == "" {
		missing = append(missing, "Accumulated Depreciation Account")
	}
	if expense == "" {
		missing = append(missing, "Depreciation Expense Account")
	}
	if len(missing) > 0 {
		return "", "", &MissingConfigurationError{
			What:     strings.Join(missing, " and "),
			Category: category,
			Company:  company,
		}
	}

	acct, err := r.Directory.GetAccount(ctx, expense)
	if errors.Is(err, ErrNotFound) {
		return "", "", &MissingConfigurationError{What: "account " + expense, Company: company}
	}
	if err != nil {
		return "", "", fmt.Errorf("load account %s: %w", expense, err)
	}

	switch acct.RootType {
	case RootExpense:
		return accumulated, expense, nil
	case RootIncome:
		return expense, accumulated, nil
	}
	return "", "", newValidationError("depreciation_expense_account",
		"%s should be an Income or Expense account, got %q", expense, acct.RootType)
}

// DepreciationCostCenter returns the company's depreciation cost center.
func (r *AccountsResolver) DepreciationCostCenter(ctx context.Context, company string) (string, error) {
	co, err := r.Directory.GetCompany(ctx, company)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return co.DepreciationCostCenter, nil
}
