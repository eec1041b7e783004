package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"budgetkit/internal/budget"
	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/logger"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
)

const sourceImport = "import"

// transactionService handles transaction-related business logic.
type transactionService struct {
	db              *gorm.DB
	categoryService CategoryServicer
	convention      budget.SignConvention
}

// NewTransactionService creates a new TransactionServicer. convention is the
// ledger's sign convention, applied both to imported amounts and to the
// records returned by Ledger.
func NewTransactionService(db *gorm.DB, categoryService CategoryServicer, convention budget.SignConvention) TransactionServicer {
	if !convention.Valid() {
		convention = budget.ExpensesPositive
	}
	return &transactionService{
		db:              db,
		categoryService: categoryService,
		convention:      convention,
	}
}

// SignConvention returns the configured ledger sign convention.
func (s *transactionService) SignConvention() budget.SignConvention {
	return s.convention
}

// CreateTransaction records a manual ledger entry for the user.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error) {
	switch {
	case in.Amount <= 0:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	case in.AccountID == "":
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account ID is required")
	case in.Type != models.TransactionTypeIncome && in.Type != models.TransactionTypeExpense:
		return nil, apperrors.ErrInvalidTransactionType
	}

	if in.CategoryID != nil {
		if _, err := s.categoryService.GetCategoryByID(userID, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	transaction := &models.Transaction{
		UserID:      userID,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        date.UTC(),
		Source:      "manual",
	}
	if err := s.db.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return transaction, nil
}

// GetUserTransactions retrieves a paginated, filtered list of the user's transactions.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Order("date DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", *f.ToDate)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if f.AccountID != nil {
		q = q.Where("account_id = ?", *f.AccountID)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// DeleteTransaction soft-deletes a transaction. Open periods stop counting it
// on their next snapshot; closed periods keep their frozen figures.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}
	if err := s.db.Delete(transaction).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// ImportTransactions stores records from the aggregation provider. Records
// whose external ID was already imported for the user are skipped, so
// redelivered batches are harmless. A record with a non-finite amount fails
// the whole batch with ErrInvalidAmount; zero amounts are skipped.
func (s *transactionService) ImportTransactions(ctx context.Context, userID string, records []ImportRecord) (*ImportResult, error) {
	rows := make([]*models.Transaction, 0, len(records))
	result := &ImportResult{}
	for _, rec := range records {
		if rec.ExternalID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "external_id is required for imported transactions")
		}
		row, err := s.fromImport(userID, rec)
		if err != nil {
			return nil, err
		}
		if row == nil {
			result.Skipped++
			continue
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
			if res.Error != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
			}
			if res.RowsAffected == 0 {
				result.Skipped++
				continue
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Named("ledger").Infow("imported transactions",
		"user_id", userID,
		"imported", result.Imported,
		"skipped", result.Skipped,
	)
	return result, nil
}

// fromImport converts a signed major-unit record into a stored row, or nil
// for a zero amount.
func (s *transactionService) fromImport(userID string, rec ImportRecord) (*models.Transaction, error) {
	amount, err := budget.FromMajor(rec.Amount)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidAmount, "transaction "+rec.ExternalID+": "+err.Error())
	}
	if amount == 0 {
		return nil, nil
	}
	if s.convention == budget.ExpensesNegative {
		amount = -amount
	}
	txType := models.TransactionTypeExpense
	if amount < 0 {
		txType = models.TransactionTypeIncome
		amount = -amount
	}

	categoryID := rec.CategoryID
	if categoryID != nil {
		if _, err := s.categoryService.GetCategoryByID(userID, *categoryID); err != nil {
			logger.Named("ledger").Warnw("imported transaction references unknown category",
				"user_id", userID,
				"external_id", rec.ExternalID,
				"category_id", *categoryID,
			)
			categoryID = nil
		}
	}

	externalID := rec.ExternalID
	date := rec.Date
	if date.IsZero() {
		date = time.Now()
	}
	return &models.Transaction{
		UserID:      userID,
		AccountID:   rec.AccountID,
		CategoryID:  categoryID,
		Type:        txType,
		Amount:      int64(amount),
		Description: rec.Description,
		Date:        date.UTC(),
		ExternalID:  &externalID,
		Source:      sourceImport,
	}, nil
}

// Ledger returns the user's transactions in the given categories whose date
// falls on a UTC day in [from, to], as signed major-unit records under the
// configured sign convention. Dates are stored and returned in UTC.
func (s *transactionService) Ledger(ctx context.Context, userID string, categoryIDs []string, from, to time.Time) ([]budget.Transaction, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	var rows []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND category_id IN ?", userID, categoryIDs).
		Where("date >= ? AND date < ?", budget.Day(from), budget.Day(to).AddDate(0, 0, 1)).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	ledger := make([]budget.Transaction, 0, len(rows))
	for _, row := range rows {
		amount := budget.Money(row.Amount)
		if row.Type == models.TransactionTypeIncome {
			amount = -amount
		}
		if s.convention == budget.ExpensesNegative {
			amount = -amount
		}
		ledger = append(ledger, budget.Transaction{
			ID:         row.ID,
			CategoryID: *row.CategoryID,
			AccountID:  row.AccountID,
			Amount:     amount.Major(),
			Date:       row.Date.UTC(),
		})
	}
	return ledger, nil
}
