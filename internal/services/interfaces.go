package services

import (
	"context"
	"time"

	"budgetkit/internal/budget"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateProfile(id string, update ProfileUpdate) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// ProfileUpdate holds the optional profile fields a user may change.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Currency  *string
	Locale    *string
}

// CategoryInput holds the fields of a new category. A parent must have the
// same type as the category placed under it.
type CategoryInput struct {
	Name        string
	Type        models.CategoryType
	Description string
	Icon        string
	Color       string
	ParentID    *string
}

// CategoryUpdate holds the optional fields of a category edit. A non-nil
// empty ParentID moves the category to the top level.
type CategoryUpdate struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	ParentID    *string
}

// CategoryFilter narrows a category listing. ParentID and TopLevel are
// mutually exclusive.
type CategoryFilter struct {
	Type     *models.CategoryType
	ParentID *string
	TopLevel bool
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID string, in CategoryInput) (*models.Category, error)
	ListCategories(userID string, filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID string, update CategoryUpdate) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
	DescendantIDs(userID, categoryID string) ([]string, error)
}

// TransactionInput describes a manually recorded transaction. A zero Date
// means now.
type TransactionInput struct {
	AccountID   string
	CategoryID  *string
	Type        models.TransactionType
	Amount      int64
	Description string
	Date        time.Time
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *string
	MinAmount  *int64
	MaxAmount  *int64
	AccountID  *string
}

// ImportRecord is one transaction as delivered by the aggregation provider.
// Amount is in major units and signed according to the ledger's sign
// convention.
type ImportRecord struct {
	ExternalID  string    `json:"external_id" toml:"external_id"`
	AccountID   string    `json:"account_id" toml:"account_id"`
	CategoryID  *string   `json:"category_id,omitempty" toml:"category_id"`
	Amount      float64   `json:"amount" toml:"amount"`
	Description string    `json:"description" toml:"description"`
	Date        time.Time `json:"date" toml:"date"`
}

// ImportResult counts what an import did with its records.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
	ImportTransactions(ctx context.Context, userID string, records []ImportRecord) (*ImportResult, error)
	Ledger(ctx context.Context, userID string, categoryIDs []string, from, to time.Time) ([]budget.Transaction, error)
	SignConvention() budget.SignConvention
}

// BudgetProgress pairs a budget's current period with its live snapshot.
type BudgetProgress struct {
	Budget   *models.Budget
	Period   *models.BudgetPeriod
	Snapshot budget.Snapshot
}

// CreateBudgetInput holds the fields of a new budget.
type CreateBudgetInput struct {
	CategoryID           string
	Name                 string
	Amount               int64
	Cadence              budget.Cadence
	StartDate            time.Time
	RolloverPolicy       budget.Policy
	IncludeSubcategories bool
}

// BudgetUpdate holds the optional fields of a budget edit. A new Amount also
// becomes the limit of the budget's open period.
type BudgetUpdate struct {
	Name                 *string
	Amount               *int64
	RolloverPolicy       *budget.Policy
	IncludeSubcategories *bool
	IsActive             *bool
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	CreateBudget(userID string, in CreateBudgetInput) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool, cadence *budget.Cadence) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	UpdateBudget(userID, budgetID string, update BudgetUpdate) (*models.Budget, error)
	DeleteBudget(userID, budgetID string) error
	GetBudgetProgress(ctx context.Context, userID, budgetID string) (*BudgetProgress, error)
	ListProgress(ctx context.Context, userID string) ([]BudgetProgress, error)
}

// CloseResult is the outcome of closing a period: the frozen period, the
// carry computed for it and the successor it opened.
type CloseResult struct {
	Period    *models.BudgetPeriod
	Snapshot  budget.Snapshot
	Carry     budget.Money
	Successor *models.BudgetPeriod
}

// SweepResult summarizes a batch lifecycle run.
type SweepResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	PeriodIDs []string `json:"period_ids"`
}

// PeriodServicer defines the contract for the budget period lifecycle.
type PeriodServicer interface {
	GetPeriod(userID, periodID string) (*models.BudgetPeriod, error)
	ListPeriods(userID, budgetID string, state *budget.State, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetPeriod], error)
	Snapshot(ctx context.Context, period *models.BudgetPeriod) (budget.Snapshot, error)
	ClosePeriod(ctx context.Context, userID, periodID string) (*CloseResult, error)
	ArchivePeriod(ctx context.Context, userID, periodID string) (*models.BudgetPeriod, error)
	CloseExpired(ctx context.Context, now time.Time) (*SweepResult, error)
	ArchiveStale(ctx context.Context, now time.Time) (*SweepResult, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID string, action AuditAction, resource AuditResource, resourceID, ipAddress string, changes map[string]any)
}
