// Package domain defines the core business entities of the finance BFA.
// These models mirror the rows stored in the hosted backend and the
// settings kept by the local installation.
package domain

import "time"

// ============================================================
// Categories
// ============================================================

// TransactionType is the direction of a movement. It lives on the
// category, never on the transaction itself.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Category classifies a transaction as income or expense.
type Category struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id,omitempty"`
	Name   string          `json:"name"`
	Type   TransactionType `json:"type"`
	Icon   string          `json:"icon,omitempty"`
}

// Key is the (name, type) pair that should be unique per owner.
func (c Category) Key() string {
	return c.Name + "-" + string(c.Type)
}

// NewCategory is the insert payload for a category.
type NewCategory struct {
	Name string          `json:"name"`
	Type TransactionType `json:"type"`
	Icon string          `json:"icon,omitempty"`
}

// ============================================================
// Transactions
// ============================================================

// Transaction is one monetary movement. Amount is always positive.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CategoryID  *string   `json:"category_id,omitempty"`
	Category    *Category `json:"category,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Type returns the direction derived from the joined category, or "" when
// the transaction is uncategorised.
func (t Transaction) Type() TransactionType {
	if t.Category == nil {
		return ""
	}
	return t.Category.Type
}

// NewTransaction is the create payload for a transaction.
type NewTransaction struct {
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CategoryID  string    `json:"category_id"`
	Currency    string    `json:"currency,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
}

// TransactionUpdate holds the mutable fields of a transaction.
// Nil fields are left untouched.
type TransactionUpdate struct {
	Amount      *float64   `json:"amount,omitempty"`
	Description *string    `json:"description,omitempty"`
	CategoryID  *string    `json:"category_id,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

// Empty reports whether the update carries no field.
func (u TransactionUpdate) Empty() bool {
	return u.Amount == nil && u.Description == nil && u.CategoryID == nil && u.Date == nil
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Search   string // matches description or category name, case-insensitive
	Category string // category name, "General" for uncategorised
	Date     string // YYYY-MM-DD
	Limit    int
}

// ============================================================
// Savings
// ============================================================

// Fund is the display-only investment fund selected on the savings page.
type Fund string

const (
	FundSP500 Fund = "sp500"
	FundTech  Fund = "tech"
	FundGreen Fund = "green"
)

// Valid reports whether f is a known fund.
func (f Fund) Valid() bool {
	switch f {
	case FundSP500, FundTech, FundGreen:
		return true
	}
	return false
}

const (
	MinRetentionPercentage     = 1
	MaxRetentionPercentage     = 50
	DefaultRetentionPercentage = 10
)

// SavingsConfig holds the automated savings settings of one owner.
// InvestedAmount is a cached projection of the savings category total.
type SavingsConfig struct {
	RoundingEnabled     bool    `json:"roundingEnabled"`
	RetentionEnabled    bool    `json:"retentionEnabled"`
	RetentionPercentage int     `json:"retentionPercentage"`
	InvestedAmount      float64 `json:"investedAmount"`
	SelectedFund        *Fund   `json:"selectedFund"`
}

// DefaultSavingsConfig is the configuration used on first run.
func DefaultSavingsConfig() SavingsConfig {
	return SavingsConfig{
		RetentionPercentage: DefaultRetentionPercentage,
	}
}

// SavingsConfigPatch is a partial update merged into the stored config.
type SavingsConfigPatch struct {
	RoundingEnabled     *bool    `json:"roundingEnabled,omitempty"`
	RetentionEnabled    *bool    `json:"retentionEnabled,omitempty"`
	RetentionPercentage *int     `json:"retentionPercentage,omitempty"`
	InvestedAmount      *float64 `json:"investedAmount,omitempty"`
	SelectedFund        *Fund    `json:"selectedFund,omitempty"`
	ClearSelectedFund   bool     `json:"clearSelectedFund,omitempty"`
}

// Validate checks the patch against the config invariants.
func (p SavingsConfigPatch) Validate() error {
	if p.RetentionPercentage != nil {
		pct := *p.RetentionPercentage
		if pct < MinRetentionPercentage || pct > MaxRetentionPercentage {
			return &ErrValidation{Field: "retentionPercentage", Message: "must be between 1 and 50"}
		}
	}
	if p.InvestedAmount != nil && *p.InvestedAmount < 0 {
		return &ErrValidation{Field: "investedAmount", Message: "must not be negative"}
	}
	if p.SelectedFund != nil && !p.SelectedFund.Valid() {
		return &ErrValidation{Field: "selectedFund", Message: "unknown fund"}
	}
	return nil
}

// Apply merges the patch into c and returns the result.
func (p SavingsConfigPatch) Apply(c SavingsConfig) SavingsConfig {
	if p.RoundingEnabled != nil {
		c.RoundingEnabled = *p.RoundingEnabled
	}
	if p.RetentionEnabled != nil {
		c.RetentionEnabled = *p.RetentionEnabled
	}
	if p.RetentionPercentage != nil {
		c.RetentionPercentage = *p.RetentionPercentage
	}
	if p.InvestedAmount != nil {
		c.InvestedAmount = *p.InvestedAmount
	}
	switch {
	case p.ClearSelectedFund:
		c.SelectedFund = nil
	case p.SelectedFund != nil:
		f := *p.SelectedFund
		c.SelectedFund = &f
	}
	return c
}

// FundInfo describes a fund shown on the savings page.
type FundInfo struct {
	ID     Fund   `json:"id"`
	Name   string `json:"name"`
	Return string `json:"return"`
	Color  string `json:"color"`
	Risk   string `json:"risk"`
}

// SavingsSummary is returned by GET /v1/savings.
type SavingsSummary struct {
	Config  SavingsConfig `json:"config"`
	Balance float64       `json:"balance"`
	History []Transaction `json:"history"`
	Funds   []FundInfo    `json:"funds"`
}

// ============================================================
// Dashboard
// ============================================================

// DashboardSummary aggregates the owner's transactions.
type DashboardSummary struct {
	Balance      float64       `json:"balance"`
	TotalIncome  float64       `json:"total_income"`
	TotalExpense float64       `json:"total_expense"`
	IncomePct    int           `json:"income_pct"`
	ExpensePct   int           `json:"expense_pct"`
	Savings      SavingsConfig `json:"savings"`
	Recent       []Transaction `json:"recent"`
}

// ============================================================
// Receipt files
// ============================================================

// StoredFile is an object in the owner's receipts namespace.
type StoredFile struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	CreatedAt string         `json:"created_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ============================================================
// Bizum
// ============================================================

// BizumRecipient is the profile a Bizum code resolves to.
type BizumRecipient struct {
	ID       string `json:"-"`
	Code     string `json:"code"`
	FullName string `json:"fullName"`
}

// BizumTransfer is a peer-to-peer payment addressed by Bizum code.
type BizumTransfer struct {
	RecipientCode string  `json:"recipientCode"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Concept       string  `json:"concept"`
}

// BizumReceipt confirms a sent transfer.
type BizumReceipt struct {
	RecipientCode string    `json:"recipientCode"`
	RecipientName string    `json:"recipientName"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Concept       string    `json:"concept"`
	SentAt        time.Time `json:"sentAt"`
}
