package services

import (
	"testing"
	"time"

	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
	"budgetkit/internal/testutil"
)

// missingID is a well-formed id that no fixture ever receives.
const missingID = "00000000-0000-0000-0000-000000000000"

func strPtr(s string) *string { return &s }

func TestCreateCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	food, err := svc.CreateCategory(user.ID, CategoryInput{
		Name:        "Food",
		Type:        models.CategoryTypeExpense,
		Description: "Everything edible",
		Icon:        "cart",
		Color:       "#FF0000",
	})
	testutil.AssertNoError(t, err)
	if food.ID == "" || food.Name != "Food" || food.Color != "#FF0000" || food.ParentID != nil {
		t.Fatalf("unexpected category %+v", food)
	}
	salary := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)
	foreign := testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

	tests := []struct {
		name     string
		userID   string
		in       CategoryInput
		wantCode string
	}{
		{name: "child of same type", userID: user.ID, in: CategoryInput{Name: "Snacks", Type: models.CategoryTypeExpense, ParentID: &food.ID}},
		{name: "same name for another user", userID: other.ID, in: CategoryInput{Name: "Food", Type: models.CategoryTypeExpense}},
		{name: "empty name", userID: user.ID, in: CategoryInput{Type: models.CategoryTypeExpense}, wantCode: "INVALID_INPUT"},
		{name: "duplicate name", userID: user.ID, in: CategoryInput{Name: "Food", Type: models.CategoryTypeExpense}, wantCode: "INVALID_INPUT"},
		{name: "parent of other type", userID: user.ID, in: CategoryInput{Name: "Bonus", Type: models.CategoryTypeExpense, ParentID: &salary.ID}, wantCode: "INVALID_INPUT"},
		{name: "missing parent", userID: user.ID, in: CategoryInput{Name: "Orphan", Type: models.CategoryTypeExpense, ParentID: strPtr(missingID)}, wantCode: "CATEGORY_NOT_FOUND"},
		{name: "another user's parent", userID: user.ID, in: CategoryInput{Name: "Borrowed", Type: models.CategoryTypeExpense, ParentID: &foreign.ID}, wantCode: "CATEGORY_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := svc.CreateCategory(tt.userID, tt.in)
			if tt.wantCode != "" {
				testutil.AssertAppError(t, err, tt.wantCode)
				return
			}
			testutil.AssertNoError(t, err)
			if cat.UserID != tt.userID || cat.Name != tt.in.Name {
				t.Errorf("unexpected category %+v", cat)
			}
			if tt.in.ParentID != nil && (cat.ParentID == nil || *cat.ParentID != *tt.in.ParentID) {
				t.Errorf("expected parent %s, got %v", *tt.in.ParentID, cat.ParentID)
			}
		})
	}
}

func TestListCategories(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	food := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &food.ID)
	testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &food.ID)
	testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)
	testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

	expense := models.CategoryTypeExpense
	income := models.CategoryTypeIncome
	page := pagination.PageRequest{Page: 1, PageSize: 20}

	tests := []struct {
		name   string
		filter CategoryFilter
		want   int64
	}{
		{name: "all of the user's", filter: CategoryFilter{}, want: 5},
		{name: "expense", filter: CategoryFilter{Type: &expense}, want: 4},
		{name: "income", filter: CategoryFilter{Type: &income}, want: 1},
		{name: "top level", filter: CategoryFilter{TopLevel: true}, want: 3},
		{name: "top level expense", filter: CategoryFilter{TopLevel: true, Type: &expense}, want: 2},
		{name: "children", filter: CategoryFilter{ParentID: &food.ID}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.ListCategories(user.ID, tt.filter, page)
			testutil.AssertNoError(t, err)
			if result.TotalItems != tt.want || int64(len(result.Data)) != tt.want {
				t.Errorf("expected %d categories, got total %d with %d rows", tt.want, result.TotalItems, len(result.Data))
			}
			for _, c := range result.Data {
				if c.UserID != user.ID {
					t.Errorf("listed another user's category %s", c.ID)
				}
				if tt.filter.Type != nil && c.Type != *tt.filter.Type {
					t.Errorf("expected type %s, got %s", *tt.filter.Type, c.Type)
				}
			}
		})
	}

	t.Run("ordered by name and paginated", func(t *testing.T) {
		result, err := svc.ListCategories(user.ID, CategoryFilter{}, pagination.PageRequest{Page: 2, PageSize: 2})
		testutil.AssertNoError(t, err)
		if result.TotalPages != 3 || len(result.Data) != 2 {
			t.Fatalf("expected page 2 of 3 with 2 rows, got %d pages and %d rows", result.TotalPages, len(result.Data))
		}
		if result.Data[0].Name > result.Data[1].Name {
			t.Errorf("expected name order, got %s before %s", result.Data[0].Name, result.Data[1].Name)
		}
	})

	t.Run("parent and top level together", func(t *testing.T) {
		_, err := svc.ListCategories(user.ID, CategoryFilter{TopLevel: true, ParentID: &food.ID}, page)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetCategoryByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	owner := testutil.CreateTestUser(t, db)
	stranger := testutil.CreateTestUser(t, db)
	created := testutil.CreateTestCategory(t, db, owner.ID, models.CategoryTypeExpense)

	cat, err := svc.GetCategoryByID(owner.ID, created.ID)
	testutil.AssertNoError(t, err)
	if cat.ID != created.ID {
		t.Errorf("expected category %s, got %s", created.ID, cat.ID)
	}

	_, err = svc.GetCategoryByID(owner.ID, missingID)
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")

	_, err = svc.GetCategoryByID(stranger.ID, created.ID)
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
}

func TestUpdateCategory(t *testing.T) {
	t.Run("applies set fields only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat, err := svc.CreateCategory(user.ID, CategoryInput{
			Name: "Travel", Type: models.CategoryTypeExpense, Description: "Trips", Icon: "plane",
		})
		testutil.AssertNoError(t, err)

		updated, err := svc.UpdateCategory(user.ID, cat.ID, CategoryUpdate{
			Name:        strPtr("Holidays"),
			Description: strPtr(""),
			Color:       strPtr("#00FF00"),
		})
		testutil.AssertNoError(t, err)

		if updated.Name != "Holidays" || updated.Description != "" || updated.Color != "#00FF00" {
			t.Errorf("unexpected update result %+v", updated)
		}
		if updated.Icon != "plane" {
			t.Errorf("expected icon to stay plane, got %s", updated.Icon)
		}
	})

	t.Run("no changes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		updated, err := svc.UpdateCategory(user.ID, cat.ID, CategoryUpdate{})
		testutil.AssertNoError(t, err)
		if updated.Name != cat.Name {
			t.Errorf("expected name %s, got %s", cat.Name, updated.Name)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		taken := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		income := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)

		tests := []struct {
			name       string
			categoryID string
			update     CategoryUpdate
			wantCode   string
		}{
			{name: "unknown category", categoryID: missingID, update: CategoryUpdate{Name: strPtr("x")}, wantCode: "CATEGORY_NOT_FOUND"},
			{name: "empty name", categoryID: cat.ID, update: CategoryUpdate{Name: strPtr("")}, wantCode: "INVALID_INPUT"},
			{name: "name in use", categoryID: cat.ID, update: CategoryUpdate{Name: &taken.Name}, wantCode: "INVALID_INPUT"},
			{name: "own parent", categoryID: cat.ID, update: CategoryUpdate{ParentID: &cat.ID}, wantCode: "SELF_PARENT_CATEGORY"},
			{name: "missing parent", categoryID: cat.ID, update: CategoryUpdate{ParentID: strPtr(missingID)}, wantCode: "CATEGORY_NOT_FOUND"},
			{name: "parent of other type", categoryID: cat.ID, update: CategoryUpdate{ParentID: &income.ID}, wantCode: "INVALID_INPUT"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.UpdateCategory(user.ID, tt.categoryID, tt.update)
				testutil.AssertAppError(t, err, tt.wantCode)
			})
		}

		// Keeping its own name is not a conflict.
		_, err := svc.UpdateCategory(user.ID, cat.ID, CategoryUpdate{Name: &cat.Name})
		testutil.AssertNoError(t, err)
	})
}

func TestUpdateCategory_Reparent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)

	root := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	mid := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &root.ID)
	leaf := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &mid.ID)
	loose := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	_, err := svc.UpdateCategory(user.ID, root.ID, CategoryUpdate{ParentID: &leaf.ID})
	testutil.AssertAppError(t, err, "CATEGORY_CYCLE")

	moved, err := svc.UpdateCategory(user.ID, loose.ID, CategoryUpdate{ParentID: &leaf.ID})
	testutil.AssertNoError(t, err)
	if moved.ParentID == nil || *moved.ParentID != leaf.ID {
		t.Errorf("expected parent %s, got %v", leaf.ID, moved.ParentID)
	}

	detached, err := svc.UpdateCategory(user.ID, mid.ID, CategoryUpdate{ParentID: strPtr("")})
	testutil.AssertNoError(t, err)
	if detached.ParentID != nil {
		t.Errorf("expected parent to be cleared, got %v", *detached.ParentID)
	}

	ids, err := svc.DescendantIDs(user.ID, root.ID)
	testutil.AssertNoError(t, err)
	if len(ids) != 0 {
		t.Errorf("expected root to have no descendants after detaching, got %v", ids)
	}
}

func TestDescendantIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	food := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	produce := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &food.ID)
	fruit := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &produce.ID)
	dining := testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &food.ID)
	testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestSubcategory(t, db, other.ID, models.CategoryTypeExpense, &food.ID)

	ids, err := svc.DescendantIDs(user.ID, food.ID)
	testutil.AssertNoError(t, err)

	want := map[string]bool{produce.ID: true, fruit.ID: true, dining.ID: true}
	if len(ids) != len(want) {
		t.Fatalf("expected %d descendants, got %d: %v", len(want), len(ids), ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected descendant %s", id)
		}
	}

	leaves, err := svc.DescendantIDs(user.ID, fruit.ID)
	testutil.AssertNoError(t, err)
	if len(leaves) != 0 {
		t.Errorf("expected no descendants of a leaf, got %v", leaves)
	}
}

func TestDeleteCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)
	stranger := testutil.CreateTestUser(t, db)

	parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestSubcategory(t, db, user.ID, models.CategoryTypeExpense, &parent.ID)
	budgeted := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestBudget(t, db, user.ID, budgeted.ID)
	leaf := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	tests := []struct {
		name       string
		userID     string
		categoryID string
		wantCode   string
	}{
		{name: "has children", userID: user.ID, categoryID: parent.ID, wantCode: "CATEGORY_HAS_CHILDREN"},
		{name: "used by a budget", userID: user.ID, categoryID: budgeted.ID, wantCode: "CATEGORY_IN_USE"},
		{name: "unknown", userID: user.ID, categoryID: missingID, wantCode: "CATEGORY_NOT_FOUND"},
		{name: "another user's", userID: stranger.ID, categoryID: leaf.ID, wantCode: "CATEGORY_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertAppError(t, svc.DeleteCategory(tt.userID, tt.categoryID), tt.wantCode)
		})
	}

	t.Run("soft deletes and keeps transaction references", func(t *testing.T) {
		tx := testutil.CreateTestTransaction(t, db, user.ID, leaf.ID, 1000, testutil.Date(2025, time.March, 2))

		testutil.AssertNoError(t, svc.DeleteCategory(user.ID, leaf.ID))

		_, err := svc.GetCategoryByID(user.ID, leaf.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")

		var count int64
		db.Unscoped().Model(&models.Category{}).Where("id = ?", leaf.ID).Count(&count)
		if count != 1 {
			t.Errorf("expected the soft-deleted row to remain, got count %d", count)
		}

		var stored models.Transaction
		db.Where("id = ?", tx.ID).First(&stored)
		if stored.CategoryID == nil || *stored.CategoryID != leaf.ID {
			t.Error("expected transaction to still reference the deleted category")
		}
	})
}
