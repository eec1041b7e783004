package budget

import (
	"time"

	apperrors "budgetkit/internal/errors"
)

// State is the lifecycle state of a budget period.
type State string

const (
	StateOpen     State = "open"
	StateClosed   State = "closed"
	StateArchived State = "archived"
)

// CanTransition reports whether a period may move from one state to another.
// Periods only move forward: open -> closed -> archived.
func CanTransition(from, to State) bool {
	switch from {
	case StateOpen:
		return to == StateClosed
	case StateClosed:
		return to == StateArchived
	}
	return false
}

// Cadence is how often a budget starts a new period.
type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly:
		return true
	}
	return false
}

// Period is one bounded accounting window with a spending limit. Dates are
// calendar days; both ends are inclusive.
type Period struct {
	ID             string
	CategoryID     string
	Limit          Money
	StartDate      time.Time
	EndDate        time.Time
	CarriedBalance Money
}

// Validate checks the date range and limit.
func (p Period) Validate() error {
	if Day(p.StartDate).After(Day(p.EndDate)) {
		return apperrors.WithMessage(apperrors.ErrInvalidPeriod, "start date is after end date")
	}
	if p.Limit < 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidPeriod, "limit must not be negative")
	}
	return nil
}

// Contains reports whether t falls on a day inside the period.
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(p.StartDate)) && !d.After(Day(p.EndDate))
}

// Elapsed reports whether the whole of the period's last day is in the past.
func (p Period) Elapsed(now time.Time) bool {
	return Day(now).After(Day(p.EndDate))
}

// Day truncates t to its UTC calendar day. The location t carries is
// ignored, so the same instant lands on the same day however it was scanned.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window returns the inclusive [start, end] days of the cadence window that
// contains t. Weeks start on Monday.
func Window(c Cadence, t time.Time) (time.Time, time.Time, error) {
	d := Day(t)
	var start time.Time
	switch c {
	case CadenceWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		start = d.AddDate(0, 0, -offset)
	case CadenceMonthly:
		start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case CadenceQuarterly:
		q := (int(d.Month()) - 1) / 3
		start = time.Date(d.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	case CadenceYearly:
		start = time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidPeriod, "unknown cadence "+string(c))
	}
	return start, windowEnd(c, start), nil
}

func windowEnd(c Cadence, start time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return start.AddDate(0, 0, 6)
	case CadenceMonthly:
		return start.AddDate(0, 1, -1)
	case CadenceQuarterly:
		return start.AddDate(0, 3, -1)
	default:
		return start.AddDate(1, 0, -1)
	}
}

// Successor returns the period that follows p under cadence c, starting the
// day after p ends, with the given carried balance and the same limit.
// The successor's ID is left empty for the persistence layer to assign.
func Successor(p Period, c Cadence, carry Money) (Period, error) {
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	next := Day(p.EndDate).AddDate(0, 0, 1)
	_, end, err := Window(c, next)
	if err != nil {
		return Period{}, err
	}
	return Period{
		CategoryID:     p.CategoryID,
		Limit:          p.Limit,
		StartDate:      next,
		EndDate:        end,
		CarriedBalance: carry,
	}, nil
}
