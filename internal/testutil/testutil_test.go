package testutil_test

import (
	"testing"
	"time"

	"budgetkit/internal/budget"
	"budgetkit/internal/errors"
	"budgetkit/internal/models"
	"budgetkit/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"users", "categories", "transactions", "budgets", "budget_periods", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDB_Isolated(t *testing.T) {
	first := testutil.SetupTestDB(t)
	second := testutil.SetupTestDB(t)

	testutil.CreateTestUser(t, first)

	var count int64
	second.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Errorf("expected second database to be empty, found %d users", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}

	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	if category.Type != models.CategoryTypeExpense {
		t.Errorf("expected expense category, got %s", category.Type)
	}

	child := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &category.ID)
	if child.ParentID == nil || *child.ParentID != category.ID {
		t.Errorf("expected child of %s", category.ID)
	}

	tx := testutil.CreateTestTransaction(t, db, user.ID, category.ID, 1000, testutil.Date(2025, time.March, 3))
	if tx.Amount != 1000 {
		t.Errorf("expected amount 1000, got %d", tx.Amount)
	}

	b, p := testutil.CreateTestBudget(t, db, user.ID, category.ID)
	if b.Amount != 10000 {
		t.Errorf("expected budget amount 10000, got %d", b.Amount)
	}
	if p.State != budget.StateOpen || p.BudgetID != b.ID {
		t.Errorf("expected open period for budget %s, got %+v", b.ID, p)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrBudgetNotFound, "custom message")
	testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
