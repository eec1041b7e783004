package models

import "time"

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Transaction is a ledger entry. Amount is a positive number of minor units
// (cents); Type gives its direction. AccountID refers to an account owned by
// the aggregation provider and is stored as-is.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_user_external" json:"user_id"`
	AccountID   string          `gorm:"not null" json:"account_id"`
	CategoryID  *string         `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Type        TransactionType `gorm:"not null" json:"type"`
	Amount      int64           `gorm:"type:bigint;not null" json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `gorm:"not null;index" json:"date"`

	// ExternalID is the aggregator's transaction id; imports are idempotent on it.
	ExternalID *string `gorm:"uniqueIndex:idx_transactions_user_external" json:"external_id,omitempty"`
	Source     string  `gorm:"not null;default:'manual'" json:"source"`

	// Relationships
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
