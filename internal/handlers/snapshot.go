package handlers

import (
	"math"

	"golang.org/x/text/language"

	"budgetkit/internal/budget"
	"budgetkit/internal/models"
	"budgetkit/internal/services"
)

// SnapshotResponse is the wire form of a budget snapshot. Amounts are in
// cents; the *_display fields are formatted for the user's locale with two
// decimals. PercentUsed is null when money was spent against a zero limit.
type SnapshotResponse struct {
	PeriodID         string        `json:"period_id"`
	Limit            int64         `json:"limit"`
	CarriedBalance   int64         `json:"carried_balance"`
	Spent            int64         `json:"spent"`
	Remaining        int64         `json:"remaining"`
	PercentUsed      *float64      `json:"percent_used"`
	Status           budget.Status `json:"status"`
	TransactionCount int           `json:"transaction_count"`

	LimitDisplay     string `json:"limit_display"`
	SpentDisplay     string `json:"spent_display"`
	RemainingDisplay string `json:"remaining_display"`
	PercentDisplay   string `json:"percent_display"`
}

// ProgressResponse pairs a budget with its open period and live snapshot.
type ProgressResponse struct {
	Budget   *models.Budget       `json:"budget"`
	Period   *models.BudgetPeriod `json:"period"`
	Snapshot SnapshotResponse     `json:"snapshot"`
}

// CloseResponse is the outcome of closing a period.
type CloseResponse struct {
	Period       *models.BudgetPeriod `json:"period"`
	Snapshot     SnapshotResponse     `json:"snapshot"`
	Carry        int64                `json:"carry"`
	CarryDisplay string               `json:"carry_display"`
	Successor    *models.BudgetPeriod `json:"successor"`
}

func newSnapshotResponse(s budget.Snapshot, tag language.Tag) SnapshotResponse {
	resp := SnapshotResponse{
		PeriodID:         s.PeriodID,
		Limit:            int64(s.Limit),
		CarriedBalance:   int64(s.CarriedBalance),
		Spent:            int64(s.Spent),
		Remaining:        int64(s.Remaining),
		Status:           s.Status,
		TransactionCount: s.TransactionCount,
		LimitDisplay:     budget.FormatMoney(s.Limit, tag),
		SpentDisplay:     budget.FormatMoney(s.Spent, tag),
		RemainingDisplay: budget.FormatMoney(s.Remaining, tag),
		PercentDisplay:   budget.FormatPercent(s.PercentUsed, tag),
	}
	if !math.IsInf(s.PercentUsed, 0) && !math.IsNaN(s.PercentUsed) {
		pct := math.Round(s.PercentUsed*100) / 100
		resp.PercentUsed = &pct
	}
	return resp
}

func newProgressResponse(p services.BudgetProgress, tag language.Tag) ProgressResponse {
	return ProgressResponse{
		Budget:   p.Budget,
		Period:   p.Period,
		Snapshot: newSnapshotResponse(p.Snapshot, tag),
	}
}

func newCloseResponse(r *services.CloseResult, tag language.Tag) CloseResponse {
	return CloseResponse{
		Period:       r.Period,
		Snapshot:     newSnapshotResponse(r.Snapshot, tag),
		Carry:        int64(r.Carry),
		CarryDisplay: budget.FormatMoney(r.Carry, tag),
		Successor:    r.Successor,
	}
}

// displayTag resolves the language used for display strings. Unknown or
// empty locales fall back to English.
func displayTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

// userTag looks up the display language from the user's profile.
func userTag(users services.UserServicer, userID string) language.Tag {
	user, err := users.GetUserByID(userID)
	if err != nil {
		return language.English
	}
	return displayTag(user.Locale)
}
