package models

import "time"

// Currency identifies one of the two parallel reward ledgers.
type Currency string

const (
	CurrencyXP    Currency = "XP"
	CurrencyAtoms Currency = "ATOMS"
)

// Valid reports whether the currency is one of the known ledgers.
func (c Currency) Valid() bool {
	return c == CurrencyXP || c == CurrencyAtoms
}

// ReferenceType classifies what caused a ledger transaction.
type ReferenceType string

const (
	ReferenceAttitude         ReferenceType = "ATTITUDE"
	ReferenceXPRule           ReferenceType = "XP_RULE"
	ReferenceStorePurchase    ReferenceType = "STORE_PURCHASE"
	ReferenceManualAdjustment ReferenceType = "MANUAL_ADJUSTMENT"
)

// StudentCurrencyAccount caches the running balance for one (student, currency)
// pair. The balance is derivable by replaying the transaction log; rows are
// created lazily on first transaction and never deleted.
type StudentCurrencyAccount struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Currency  Currency  `db:"currency" json:"currency"`
	Balance   int64     `db:"balance" json:"balance"`
	LevelID   *string   `db:"level_id" json:"level_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerTransaction is one immutable signed-amount entry against a student's
// currency account. Corrections are new offsetting transactions, never edits.
type LedgerTransaction struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	Currency      Currency      `db:"currency" json:"currency"`
	Amount        int64         `db:"amount" json:"amount"`
	ReferenceType ReferenceType `db:"reference_type" json:"reference_type"`
	ReferenceID   string        `db:"reference_id" json:"reference_id"`
	Description   string        `db:"description" json:"description"`
	CreatedBy     string        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// TransactionFilter narrows ledger history listings.
type TransactionFilter struct {
	StudentID     string
	Currency      *Currency
	ReferenceType *ReferenceType
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	PageSize      int
}

// StudentBalance pairs a cached balance with its resolved level for summaries.
type StudentBalance struct {
	Currency Currency `json:"currency"`
	Balance  int64    `json:"balance"`
	LevelID  *string  `json:"level_id,omitempty"`
}

// ReconciliationDrift reports an account whose cached balance disagrees with
// the replayed transaction sum.
type ReconciliationDrift struct {
	StudentID string   `json:"student_id"`
	Currency  Currency `json:"currency"`
	Cached    int64    `json:"cached"`
	Replayed  int64    `json:"replayed"`
}
