package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"budgetkit/internal/budget"
	"budgetkit/internal/models"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Date returns midnight UTC on the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email. The password
// is always "password123".
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Currency: "USD",
		Locale:   "en",
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCategory creates a category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()
	return CreateTestSubcategory(t, db, userID, categoryType, nil)
}

// CreateTestSubcategory creates a category under parentID (nil for a root).
func CreateTestSubcategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType, parentID *string) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Category %d", nextID()),
		Type:     categoryType,
		ParentID: parentID,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction creates an expense of amount cents in categoryID on date.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, categoryID string, amount int64, date time.Time) *models.Transaction {
	t.Helper()
	return CreateTestTransactionOfType(t, db, userID, categoryID, models.TransactionTypeExpense, amount, date)
}

// CreateTestTransactionOfType creates a transaction of the given type and amount (in cents).
func CreateTestTransactionOfType(t *testing.T, db *gorm.DB, userID, categoryID string, txType models.TransactionType, amount int64, date time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:     userID,
		AccountID:  "test-checking",
		CategoryID: &categoryID,
		Type:       txType,
		Amount:     amount,
		Date:       date,
		Source:     "manual",
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestBudget creates a monthly budget of $100.00 starting March 2025,
// with its first period open.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID, categoryID string) (*models.Budget, *models.BudgetPeriod) {
	t.Helper()
	return CreateTestBudgetWithPolicy(t, db, userID, categoryID, 10000, budget.PolicyNone)
}

// CreateTestBudgetWithPolicy creates a monthly budget with the given limit
// (in cents) and rollover policy, plus its open March 2025 period.
func CreateTestBudgetWithPolicy(t *testing.T, db *gorm.DB, userID, categoryID string, limit int64, policy budget.Policy) (*models.Budget, *models.BudgetPeriod) {
	t.Helper()

	b := &models.Budget{
		UserID:         userID,
		CategoryID:     categoryID,
		Name:           fmt.Sprintf("Test Budget %d", nextID()),
		Amount:         limit,
		Cadence:        budget.CadenceMonthly,
		StartDate:      Date(2025, time.March, 1),
		RolloverPolicy: policy,
		IsActive:       true,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}

	p := &models.BudgetPeriod{
		BudgetID:   b.ID,
		UserID:     userID,
		CategoryID: categoryID,
		Limit:      limit,
		StartDate:  Date(2025, time.March, 1),
		EndDate:    Date(2025, time.March, 31),
		State:      budget.StateOpen,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create test budget period: %v", err)
	}
	return b, p
}
