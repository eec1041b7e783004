// Package budget holds the pure budget computations: spend-vs-limit snapshots,
// rollover of unspent or overspent balances, and the period calendar.
//
// Nothing in this package performs I/O or keeps state between calls; every
// function is safe to call concurrently with distinct or shared inputs.
package budget

import (
	"math"
	"time"

	apperrors "budgetkit/internal/errors"
)

// Status classifies spending against the limit.
type Status string

const (
	StatusUnder   Status = "under"
	StatusNear    Status = "near"
	StatusOver    Status = "over"
	StatusNoLimit Status = "no_limit"
)

// NearThreshold is the percent-used at which a budget is reported as near its limit.
const NearThreshold = 80.0

// NoBudgetLabel is shown in place of a percentage when spending is measured
// against a zero limit.
const NoBudgetLabel = "No Budget Set"

// SignConvention declares which sign the ledger uses for expenses.
type SignConvention string

const (
	ExpensesNegative SignConvention = "expenses_negative"
	ExpensesPositive SignConvention = "expenses_positive"
)

// Valid reports whether c is a known convention.
func (c SignConvention) Valid() bool {
	return c == ExpensesNegative || c == ExpensesPositive
}

// Transaction is a ledger record as supplied by the import layer. Amount is
// in major units with the sign given by the configured SignConvention.
type Transaction struct {
	ID         string
	CategoryID string
	AccountID  string
	Amount     float64
	Date       time.Time
}

// Snapshot is the derived spend-vs-limit view of a period. PercentUsed is
// +Inf when money was spent against a zero limit.
type Snapshot struct {
	PeriodID         string
	Limit            Money
	CarriedBalance   Money
	Spent            Money
	Remaining        Money
	PercentUsed      float64
	Status           Status
	TransactionCount int
}

type options struct {
	convention SignConvention
	categories []string
}

// Option configures ComputeSnapshot.
type Option func(*options)

// WithSignConvention sets the ledger's sign convention. The default is
// ExpensesPositive.
func WithSignConvention(c SignConvention) Option {
	return func(o *options) { o.convention = c }
}

// WithSubcategories adds category IDs that roll up into the period's category.
func WithSubcategories(ids ...string) Option {
	return func(o *options) { o.categories = append(o.categories, ids...) }
}

// ComputeSnapshot sums the transactions that fall inside p and belong to its
// category (or a rolled-up subcategory) and classifies the result.
//
// Transactions outside the period or category are ignored. If any consumed
// transaction has a non-finite amount the whole batch is rejected with
// ErrInvalidAmount. Neither p nor txns is modified.
func ComputeSnapshot(p Period, txns []Transaction, opts ...Option) (Snapshot, error) {
	o := options{convention: ExpensesPositive}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.convention.Valid() {
		return Snapshot{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown sign convention "+string(o.convention))
	}
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}

	match := make(map[string]struct{}, len(o.categories)+1)
	match[p.CategoryID] = struct{}{}
	for _, id := range o.categories {
		match[id] = struct{}{}
	}

	var debits, credits Money
	count := 0
	for _, tx := range txns {
		if _, ok := match[tx.CategoryID]; !ok || !p.Contains(tx.Date) {
			continue
		}
		amt, err := FromMajor(tx.Amount)
		if err != nil {
			return Snapshot{}, apperrors.WithMessage(apperrors.ErrInvalidAmount,
				"transaction "+tx.ID+": "+err.Error())
		}
		if o.convention == ExpensesNegative {
			amt = -amt
		}
		if amt >= 0 {
			debits, err = add(debits, amt)
		} else {
			credits, err = add(credits, -amt)
		}
		if err != nil {
			return Snapshot{}, err
		}
		count++
	}

	spent := debits - credits
	if spent < 0 {
		spent = 0
	}

	pct := PercentUsed(spent, p.Limit)
	return Snapshot{
		PeriodID:         p.ID,
		Limit:            p.Limit,
		CarriedBalance:   p.CarriedBalance,
		Spent:            spent,
		Remaining:        p.Limit + p.CarriedBalance - spent,
		PercentUsed:      pct,
		Status:           Classify(pct, p.Limit),
		TransactionCount: count,
	}, nil
}

// PercentUsed returns spent as a percentage of limit. A zero limit yields 0
// when nothing was spent and +Inf otherwise. limit must not be negative.
func PercentUsed(spent, limit Money) float64 {
	if limit == 0 {
		if spent == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(spent) * 100 / float64(limit)
}

// Classify maps a percent-used value to a status. Exactly NearThreshold and
// exactly 100 are both NEAR; only values above 100 are OVER.
func Classify(pct float64, limit Money) Status {
	switch {
	case limit == 0:
		return StatusNoLimit
	case pct > 100:
		return StatusOver
	case pct >= NearThreshold:
		return StatusNear
	default:
		return StatusUnder
	}
}

func add(a, b Money) (Money, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidAmount, "total is out of range")
	}
	return a + b, nil
}
