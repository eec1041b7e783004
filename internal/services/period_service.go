package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"budgetkit/internal/budget"
	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/logger"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
)

// LifecycleConfig tunes period closing and archiving.
type LifecycleConfig struct {
	// ArchiveAfter is how long after its end date a closed period is kept
	// visible before it may be archived.
	ArchiveAfter time.Duration
	// Workers bounds how many periods CloseExpired closes at once.
	Workers int
	// RetryAttempts is how many times a close is tried when the successor
	// cannot be created.
	RetryAttempts int
	// RetryBackoff is the wait before the second attempt; it grows linearly.
	RetryBackoff time.Duration
}

// errAlreadyTransitioned aborts a close whose conditional update matched no
// row because another caller got there first.
var errAlreadyTransitioned = errors.New("period already transitioned")

// periodService drives budget periods through open -> closed -> archived.
type periodService struct {
	db           *gorm.DB
	transactions TransactionServicer
	categories   CategoryServicer
	cfg          LifecycleConfig
	now          func() time.Time
}

// NewPeriodService creates a new PeriodServicer.
func NewPeriodService(db *gorm.DB, transactions TransactionServicer, categories CategoryServicer, cfg LifecycleConfig) PeriodServicer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &periodService{
		db:           db,
		transactions: transactions,
		categories:   categories,
		cfg:          cfg,
		now:          time.Now,
	}
}

// GetPeriod returns a period by ID if it belongs to the user.
func (s *periodService) GetPeriod(userID, periodID string) (*models.BudgetPeriod, error) {
	var period models.BudgetPeriod
	if err := s.db.Where("id = ? AND user_id = ?", periodID, userID).First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &period, nil
}

// ListPeriods returns a budget's periods, newest first.
func (s *periodService) ListPeriods(userID, budgetID string, state *budget.State, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetPeriod], error) {
	page.Defaults()

	var count int64
	if err := s.db.Model(&models.Budget{}).Where("id = ? AND user_id = ?", budgetID, userID).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return nil, apperrors.ErrBudgetNotFound
	}

	base := s.db.Model(&models.BudgetPeriod{}).Where("budget_id = ? AND user_id = ?", budgetID, userID)
	if state != nil {
		base = base.Where("state = ?", *state)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var periods []models.BudgetPeriod
	if err := base.Scopes(pagination.Paginate(page)).Order("start_date DESC").Find(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(periods, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// Snapshot returns the frozen snapshot of a closed or archived period and a
// freshly computed one for an open period.
func (s *periodService) Snapshot(ctx context.Context, period *models.BudgetPeriod) (budget.Snapshot, error) {
	if snap, ok := period.FrozenSnapshot(); ok {
		return snap, nil
	}
	b, err := s.budgetFor(ctx, s.db, period)
	if err != nil {
		return budget.Snapshot{}, err
	}
	return s.liveSnapshot(ctx, b, period)
}

func (s *periodService) budgetFor(ctx context.Context, db *gorm.DB, period *models.BudgetPeriod) (*models.Budget, error) {
	var b models.Budget
	if err := db.WithContext(ctx).Unscoped().Where("id = ?", period.BudgetID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &b, nil
}

func (s *periodService) liveSnapshot(ctx context.Context, b *models.Budget, period *models.BudgetPeriod) (budget.Snapshot, error) {
	var subcategories []string
	if b.IncludeSubcategories {
		ids, err := s.categories.DescendantIDs(period.UserID, period.CategoryID)
		if err != nil {
			return budget.Snapshot{}, err
		}
		subcategories = ids
	}

	categoryIDs := append([]string{period.CategoryID}, subcategories...)
	ledger, err := s.transactions.Ledger(ctx, period.UserID, categoryIDs, period.StartDate, period.EndDate)
	if err != nil {
		return budget.Snapshot{}, err
	}

	return budget.ComputeSnapshot(period.Core(), ledger,
		budget.WithSignConvention(s.transactions.SignConvention()),
		budget.WithSubcategories(subcategories...),
	)
}

// ClosePeriod closes an elapsed open period: it freezes the final snapshot,
// computes the carry under the budget's rollover policy and opens the
// successor, all in one database transaction. Closing an already closed
// period returns the original outcome without creating anything.
func (s *periodService) ClosePeriod(ctx context.Context, userID, periodID string) (*CloseResult, error) {
	period, err := s.GetPeriod(userID, periodID)
	if err != nil {
		return nil, err
	}
	if period.State != budget.StateOpen {
		return s.closedResult(ctx, period)
	}
	if !period.Core().Elapsed(s.now()) {
		return nil, apperrors.ErrPeriodNotElapsed
	}
	return s.closeWithRetry(ctx, period)
}

func (s *periodService) closeWithRetry(ctx context.Context, period *models.BudgetPeriod) (*CloseResult, error) {
	log := logger.Named("lifecycle")
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		var result *CloseResult
		result, err = s.closeOnce(ctx, period)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, errAlreadyTransitioned) {
			current, getErr := s.GetPeriod(period.UserID, period.ID)
			if getErr != nil {
				return nil, getErr
			}
			return s.closedResult(ctx, current)
		}
		if !errors.Is(err, apperrors.ErrSuccessorCreation) {
			return nil, err
		}

		log.Warnw("successor creation failed, period stays open",
			"period_id", period.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt == s.cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, err
}

func (s *periodService) closeOnce(ctx context.Context, period *models.BudgetPeriod) (*CloseResult, error) {
	b, err := s.budgetFor(ctx, s.db, period)
	if err != nil {
		return nil, err
	}
	snap, err := s.liveSnapshot(ctx, b, period)
	if err != nil {
		return nil, err
	}
	carry, err := budget.ComputeCarry(snap, b.RolloverPolicy)
	if err != nil {
		return nil, err
	}
	next, err := budget.Successor(period.Core(), b.Cadence, carry)
	if err != nil {
		return nil, err
	}

	now := s.now()
	spent, remaining, carryOut := int64(snap.Spent), int64(snap.Remaining), int64(carry)
	predecessorID := period.ID
	successor := &models.BudgetPeriod{
		BudgetID:       period.BudgetID,
		UserID:         period.UserID,
		CategoryID:     next.CategoryID,
		Limit:          int64(next.Limit),
		StartDate:      next.StartDate,
		EndDate:        next.EndDate,
		CarriedBalance: int64(next.CarriedBalance),
		State:          budget.StateOpen,
		PredecessorID:  &predecessorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BudgetPeriod{}).
			Where("id = ? AND state = ?", period.ID, budget.StateOpen).
			Updates(map[string]interface{}{
				"state":                   budget.StateClosed,
				"closed_at":               now,
				"final_spent":             spent,
				"final_remaining":         remaining,
				"final_transaction_count": snap.TransactionCount,
				"carry_out":               carryOut,
				"applied_policy":          b.RolloverPolicy,
			})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 0 {
			return errAlreadyTransitioned
		}
		if err := tx.Create(successor).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrSuccessorCreation, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	closed := *period
	closed.State = budget.StateClosed
	closed.ClosedAt = &now
	closed.FinalSpent = &spent
	closed.FinalRemaining = &remaining
	closed.FinalTransactionCount = snap.TransactionCount
	closed.CarryOut = &carryOut
	closed.AppliedPolicy = b.RolloverPolicy

	logger.Named("lifecycle").Infow("closed budget period",
		"period_id", period.ID,
		"budget_id", period.BudgetID,
		"spent", snap.Spent.String(),
		"carry", carry.String(),
		"policy", b.RolloverPolicy,
		"successor_id", successor.ID,
	)
	return &CloseResult{Period: &closed, Snapshot: snap, Carry: carry, Successor: successor}, nil
}

// closedResult rebuilds the outcome of an earlier close from what it stored.
func (s *periodService) closedResult(ctx context.Context, period *models.BudgetPeriod) (*CloseResult, error) {
	snap, ok := period.FrozenSnapshot()
	if !ok {
		return nil, apperrors.ErrInvalidTransition
	}
	var successor models.BudgetPeriod
	if err := s.db.WithContext(ctx).Where("predecessor_id = ?", period.ID).First(&successor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var carry budget.Money
	if period.CarryOut != nil {
		carry = budget.Money(*period.CarryOut)
	}
	return &CloseResult{Period: period, Snapshot: snap, Carry: carry, Successor: &successor}, nil
}

// ArchivePeriod moves a closed period to archived once its retention window
// has passed. Archiving an archived period is a no-op.
func (s *periodService) ArchivePeriod(ctx context.Context, userID, periodID string) (*models.BudgetPeriod, error) {
	period, err := s.GetPeriod(userID, periodID)
	if err != nil {
		return nil, err
	}
	switch {
	case period.State == budget.StateArchived:
		return period, nil
	case !budget.CanTransition(period.State, budget.StateArchived):
		return nil, apperrors.ErrInvalidTransition
	case s.now().Before(s.retainUntil(period)):
		return nil, apperrors.ErrRetentionNotReached
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("id = ? AND state = ?", period.ID, budget.StateClosed).
		Updates(map[string]interface{}{"state": budget.StateArchived, "archived_at": now})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	return s.GetPeriod(userID, periodID)
}

func (s *periodService) retainUntil(period *models.BudgetPeriod) time.Time {
	return budget.Day(period.EndDate).AddDate(0, 0, 1).Add(s.cfg.ArchiveAfter)
}

// asOf caps a caller-supplied evaluation time at the service clock, so a
// sweep can replay the past but never act on periods that are still running.
func (s *periodService) asOf(now time.Time) time.Time {
	if clock := s.now(); clock.Before(now) {
		return clock
	}
	return now
}

// CloseExpired closes every open period whose end date is before now's
// calendar day, in parallel. A now later than the service clock is capped
// at the clock. Periods whose successors are themselves already
// elapsed are caught up in further passes. A period that cannot be closed is
// logged and counted, and stays open for the next run.
func (s *periodService) CloseExpired(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{PeriodIDs: []string{}}
	failed := make(map[string]bool)
	today := budget.Day(s.asOf(now))

	for {
		var due []models.BudgetPeriod
		if err := s.db.WithContext(ctx).
			Where("state = ? AND end_date < ?", budget.StateOpen, today).
			Order("end_date ASC").
			Find(&due).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		pending := make([]*models.BudgetPeriod, 0, len(due))
		for i := range due {
			if !failed[due[i].ID] {
				pending = append(pending, &due[i])
			}
		}

		var mu sync.Mutex
		progressed := 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, period := range pending {
			period := period
			g.Go(func() error {
				_, err := s.closeWithRetry(gctx, period)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed[period.ID] = true
					result.Failed++
					logger.Named("lifecycle").Errorw("failed to close budget period",
						"period_id", period.ID,
						"error", err,
					)
					return nil
				}
				progressed++
				result.Processed++
				result.PeriodIDs = append(result.PeriodIDs, period.ID)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		if progressed == 0 {
			break
		}
	}
	return result, nil
}

// ArchiveStale archives every closed period whose retention window ended
// before now, capped at the service clock.
func (s *periodService) ArchiveStale(ctx context.Context, now time.Time) (*SweepResult, error) {
	now = s.asOf(now)
	cutoff := budget.Day(now).Add(-s.cfg.ArchiveAfter)

	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("state = ? AND end_date < ?", budget.StateClosed, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(ids) == 0 {
		return &SweepResult{PeriodIDs: []string{}}, nil
	}

	res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("id IN ? AND state = ?", ids, budget.StateClosed).
		Updates(map[string]interface{}{"state": budget.StateArchived, "archived_at": now})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}

	logger.Named("lifecycle").Infow("archived budget periods", "count", res.RowsAffected)
	return &SweepResult{Processed: int(res.RowsAffected), PeriodIDs: ids}, nil
}
