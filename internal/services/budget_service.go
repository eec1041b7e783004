package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"budgetkit/internal/budget"
	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
)

// budgetService handles budget-related business logic.
type budgetService struct {
	db            *gorm.DB
	categories    CategoryServicer
	periods       PeriodServicer
	defaultPolicy budget.Policy
	workers       int
}

// NewBudgetService creates a new BudgetServicer. defaultPolicy applies to
// budgets created without an explicit rollover policy; workers bounds how
// many snapshots ListProgress computes at once.
func NewBudgetService(db *gorm.DB, categories CategoryServicer, periods PeriodServicer, defaultPolicy budget.Policy, workers int) BudgetServicer {
	if !defaultPolicy.Valid() {
		defaultPolicy = budget.PolicyNone
	}
	if workers < 1 {
		workers = 1
	}
	return &budgetService{
		db:            db,
		categories:    categories,
		periods:       periods,
		defaultPolicy: defaultPolicy,
		workers:       workers,
	}
}

// CreateBudget creates a budget for a category and opens its first period,
// the cadence window that contains the start date.
func (s *budgetService) CreateBudget(userID string, in CreateBudgetInput) (*models.Budget, error) {
	if in.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "budget name is required")
	}
	if in.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidPeriod, "limit must not be negative")
	}
	if !in.Cadence.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown cadence "+string(in.Cadence))
	}
	policy := in.RolloverPolicy
	if policy == "" {
		policy = s.defaultPolicy
	}
	if !policy.Valid() {
		return nil, apperrors.ErrUnknownPolicy
	}

	category, err := s.categories.GetCategoryByID(userID, in.CategoryID)
	if err != nil {
		return nil, err
	}

	startDate := in.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}
	start, end, err := budget.Window(in.Cadence, startDate)
	if err != nil {
		return nil, err
	}

	b := &models.Budget{
		UserID:               userID,
		CategoryID:           category.ID,
		Name:                 in.Name,
		Amount:               in.Amount,
		Cadence:              in.Cadence,
		StartDate:            budget.Day(startDate),
		RolloverPolicy:       policy,
		IncludeSubcategories: in.IncludeSubcategories,
		IsActive:             true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(b).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		first := &models.BudgetPeriod{
			BudgetID:   b.ID,
			UserID:     userID,
			CategoryID: category.ID,
			Limit:      in.Amount,
			StartDate:  start,
			EndDate:    end,
			State:      budget.StateOpen,
		}
		if err := tx.Create(first).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Category = *category
	return b, nil
}

// GetUserBudgets returns a paginated list of budgets for the user with optional filters.
func (s *budgetService) GetUserBudgets(
	userID string,
	page pagination.PageRequest,
	isActive *bool,
	cadence *budget.Cadence,
) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}
	if cadence != nil {
		base = base.Where("cadence = ?", *cadence)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	if err := base.Preload("Category").Scopes(pagination.Paginate(page)).Order("created_at ASC").Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetBudgetByID returns a budget by ID if it belongs to the user.
func (s *budgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	var b models.Budget
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", budgetID, userID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &b, nil
}

// UpdateBudget updates an existing budget's fields. Changing the amount is
// an explicit limit edit and also applies to the open period; closed periods
// keep the limit they closed with.
func (s *budgetService) UpdateBudget(userID, budgetID string, update BudgetUpdate) (*models.Budget, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Name != nil && *update.Name != "" {
		updates["name"] = *update.Name
	}
	if update.Amount != nil {
		if *update.Amount < 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidPeriod, "limit must not be negative")
		}
		updates["amount"] = *update.Amount
	}
	if update.RolloverPolicy != nil {
		if !update.RolloverPolicy.Valid() {
			return nil, apperrors.ErrUnknownPolicy
		}
		updates["rollover_policy"] = *update.RolloverPolicy
	}
	if update.IncludeSubcategories != nil {
		updates["include_subcategories"] = *update.IncludeSubcategories
	}
	if update.IsActive != nil {
		updates["is_active"] = *update.IsActive
	}
	if len(updates) == 0 {
		return b, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(b).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if update.Amount != nil {
			if err := tx.Model(&models.BudgetPeriod{}).
				Where("budget_id = ? AND state = ?", b.ID, budget.StateOpen).
				Update("limit_amount", *update.Amount).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBudget soft-deletes a budget together with its periods.
func (s *budgetService) DeleteBudget(userID, budgetID string) error {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("budget_id = ?", b.ID).Delete(&models.BudgetPeriod{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(b).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetBudgetProgress returns the live snapshot of the budget's open period.
func (s *budgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string) (*BudgetProgress, error) {
	b, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}
	return s.progress(ctx, b)
}

func (s *budgetService) progress(ctx context.Context, b *models.Budget) (*BudgetProgress, error) {
	var period models.BudgetPeriod
	if err := s.db.WithContext(ctx).
		Where("budget_id = ? AND state = ?", b.ID, budget.StateOpen).
		Order("start_date DESC").
		First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNoOpenPeriod
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	snap, err := s.periods.Snapshot(ctx, &period)
	if err != nil {
		return nil, err
	}
	return &BudgetProgress{Budget: b, Period: &period, Snapshot: snap}, nil
}

// ListProgress computes progress for all of the user's active budgets in
// parallel. Budgets without an open period are left out.
func (s *budgetService) ListProgress(ctx context.Context, userID string) ([]BudgetProgress, error) {
	var budgets []models.Budget
	if err := s.db.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	results := make([]*BudgetProgress, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range budgets {
		i := i
		g.Go(func() error {
			p, err := s.progress(gctx, &budgets[i])
			if errors.Is(err, apperrors.ErrNoOpenPeriod) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]BudgetProgress, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
