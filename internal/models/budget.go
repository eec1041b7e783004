package models

import (
	"time"

	"budgetkit/internal/budget"
)

// Budget is the standing configuration for a category: how much may be spent
// per period, how often periods start, and how balances roll over.
type Budget struct {
	Base
	UserID               string         `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID           string         `gorm:"type:uuid;not null;index" json:"category_id"`
	Name                 string         `gorm:"not null" json:"name"`
	Amount               int64          `gorm:"type:bigint;not null" json:"amount"`
	Cadence              budget.Cadence `gorm:"not null" json:"cadence"`
	StartDate            time.Time      `gorm:"not null" json:"start_date"`
	RolloverPolicy       budget.Policy  `gorm:"not null;default:'none'" json:"rollover_policy"`
	IncludeSubcategories bool           `gorm:"default:false" json:"include_subcategories"`
	IsActive             bool           `gorm:"default:true" json:"is_active"`

	// Relationships
	Category Category `gorm:"foreignKey:CategoryID" json:"category"`
}

// BudgetPeriod is one accounting window of a budget. Limit and the date range
// are fixed when the period opens; the Final* fields are written once when it
// closes and never change afterwards.
type BudgetPeriod struct {
	Base
	BudgetID       string       `gorm:"type:uuid;not null;index" json:"budget_id"`
	UserID         string       `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID     string       `gorm:"type:uuid;not null" json:"category_id"`
	Limit          int64        `gorm:"column:limit_amount;type:bigint;not null" json:"limit"`
	StartDate      time.Time    `gorm:"not null" json:"start_date"`
	EndDate        time.Time    `gorm:"not null;index" json:"end_date"`
	CarriedBalance int64        `gorm:"type:bigint;not null;default:0" json:"carried_balance"`
	State          budget.State `gorm:"not null;default:'open';index" json:"state"`
	PredecessorID  *string      `gorm:"type:uuid;uniqueIndex" json:"predecessor_id,omitempty"`

	ClosedAt              *time.Time    `json:"closed_at,omitempty"`
	ArchivedAt            *time.Time    `json:"archived_at,omitempty"`
	FinalSpent            *int64        `json:"final_spent,omitempty"`
	FinalRemaining        *int64        `json:"final_remaining,omitempty"`
	FinalTransactionCount int           `gorm:"default:0" json:"final_transaction_count"`
	CarryOut              *int64        `json:"carry_out,omitempty"`
	AppliedPolicy         budget.Policy `json:"applied_policy,omitempty"`
}

// Core returns the period as the budget calculator sees it.
func (p *BudgetPeriod) Core() budget.Period {
	return budget.Period{
		ID:             p.ID,
		CategoryID:     p.CategoryID,
		Limit:          budget.Money(p.Limit),
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		CarriedBalance: budget.Money(p.CarriedBalance),
	}
}

// FrozenSnapshot rebuilds the snapshot recorded when the period closed.
// ok is false for periods that are still open.
func (p *BudgetPeriod) FrozenSnapshot() (snap budget.Snapshot, ok bool) {
	if p.State == budget.StateOpen || p.FinalSpent == nil || p.FinalRemaining == nil {
		return budget.Snapshot{}, false
	}
	spent := budget.Money(*p.FinalSpent)
	limit := budget.Money(p.Limit)
	pct := budget.PercentUsed(spent, limit)
	return budget.Snapshot{
		PeriodID:         p.ID,
		Limit:            limit,
		CarriedBalance:   budget.Money(p.CarriedBalance),
		Spent:            spent,
		Remaining:        budget.Money(*p.FinalRemaining),
		PercentUsed:      pct,
		Status:           budget.Classify(pct, limit),
		TransactionCount: p.FinalTransactionCount,
	}, true
}
