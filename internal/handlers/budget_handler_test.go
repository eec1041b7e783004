package handlers

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"budgetkit/internal/budget"
	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
	"budgetkit/internal/services"
)

const (
	testBudgetID = "0190a1b2-0000-7000-8000-0000000000b1"
	testPeriodID = "0190a1b2-0000-7000-8000-0000000000d1"
)

// --- mock budget service ---

type mockBudgetService struct {
	createBudgetFn      func(userID string, in services.CreateBudgetInput) (*models.Budget, error)
	getUserBudgetsFn    func(userID string, page pagination.PageRequest, isActive *bool, cadence *budget.Cadence) (*pagination.PageResponse[models.Budget], error)
	getBudgetByIDFn     func(userID, budgetID string) (*models.Budget, error)
	updateBudgetFn      func(userID, budgetID string, update services.BudgetUpdate) (*models.Budget, error)
	deleteBudgetFn      func(userID, budgetID string) error
	getBudgetProgressFn func(ctx context.Context, userID, budgetID string) (*services.BudgetProgress, error)
	listProgressFn      func(ctx context.Context, userID string) ([]services.BudgetProgress, error)
}

func (m *mockBudgetService) CreateBudget(userID string, in services.CreateBudgetInput) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(userID, in)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool, cadence *budget.Cadence) (*pagination.PageResponse[models.Budget], error) {
	if m.getUserBudgetsFn != nil {
		return m.getUserBudgetsFn(userID, page, isActive, cadence)
	}
	resp := pagination.NewPageResponse([]models.Budget{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockBudgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) UpdateBudget(userID, budgetID string, update services.BudgetUpdate) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(userID, budgetID, update)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) DeleteBudget(userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(userID, budgetID)
	}
	return nil
}

func (m *mockBudgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string) (*services.BudgetProgress, error) {
	if m.getBudgetProgressFn != nil {
		return m.getBudgetProgressFn(ctx, userID, budgetID)
	}
	return &services.BudgetProgress{}, nil
}

func (m *mockBudgetService) ListProgress(ctx context.Context, userID string) ([]services.BudgetProgress, error) {
	if m.listProgressFn != nil {
		return m.listProgressFn(ctx, userID)
	}
	return nil, nil
}

var _ services.BudgetServicer = (*mockBudgetService)(nil)

func setupBudgetRouter(handler *BudgetHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/budgets", handler.CreateBudget)
	auth.GET("/budgets", handler.GetBudgets)
	auth.GET("/budgets/progress", handler.ListProgress)
	auth.GET("/budgets/:id", handler.GetBudget)
	auth.PUT("/budgets/:id", handler.UpdateBudget)
	auth.DELETE("/budgets/:id", handler.DeleteBudget)
	auth.GET("/budgets/:id/progress", handler.GetBudgetProgress)
	auth.GET("/budgets/:id/periods", handler.GetBudgetPeriods)
	return r
}

func newBudgetHandler(svc *mockBudgetService) *BudgetHandler {
	return NewBudgetHandler(svc, &mockPeriodService{}, &mockUserService{}, &mockAuditService{})
}

func TestBudgetHandler_CreateBudget(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.CreateBudgetInput
		svc := &mockBudgetService{
			createBudgetFn: func(userID string, in services.CreateBudgetInput) (*models.Budget, error) {
				got = in
				return &models.Budget{
					Base:           models.Base{ID: testBudgetID},
					UserID:         userID,
					CategoryID:     in.CategoryID,
					Name:           in.Name,
					Amount:         in.Amount,
					Cadence:        in.Cadence,
					RolloverPolicy: budget.PolicySurplusOnly,
					IsActive:       true,
				}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"category_id":"`+testCategoryID+`","name":"Groceries","amount":"600.00","cadence":"monthly","start_date":"2025-03-01","rollover_policy":"surplus_only"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		b := parseJSON(t, rec)["budget"].(map[string]interface{})
		if b["amount"].(float64) != 60000 {
			t.Errorf("expected amount 60000 cents, got %v", b["amount"])
		}
		if got.RolloverPolicy != budget.PolicySurplusOnly {
			t.Errorf("expected surplus_only, got %s", got.RolloverPolicy)
		}
		if !got.StartDate.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected start date %v", got.StartDate)
		}
	})

	t.Run("zero amount is allowed", func(t *testing.T) {
		var got services.CreateBudgetInput
		svc := &mockBudgetService{
			createBudgetFn: func(_ string, in services.CreateBudgetInput) (*models.Budget, error) {
				got = in
				return &models.Budget{Base: models.Base{ID: testBudgetID}}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"category_id":"`+testCategoryID+`","name":"Gifts","amount":"0","cadence":"yearly","start_date":"2025-01-01"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Amount != 0 || got.RolloverPolicy != "" {
			t.Errorf("unexpected input %+v", got)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"category_id":"` + testCategoryID + `","amount":"10","cadence":"monthly","start_date":"2025-03-01"}`},
		{name: "negative amount", body: `{"category_id":"` + testCategoryID + `","name":"x","amount":"-5","cadence":"monthly","start_date":"2025-03-01"}`},
		{name: "three decimals", body: `{"category_id":"` + testCategoryID + `","name":"x","amount":"1.005","cadence":"monthly","start_date":"2025-03-01"}`},
		{name: "invalid cadence", body: `{"category_id":"` + testCategoryID + `","name":"x","amount":"10","cadence":"daily","start_date":"2025-03-01"}`},
		{name: "invalid start date", body: `{"category_id":"` + testCategoryID + `","name":"x","amount":"10","cadence":"monthly","start_date":"March"}`},
		{name: "invalid category id", body: `{"category_id":"1","name":"x","amount":"10","cadence":"monthly","start_date":"2025-03-01"}`},
	}
	for _, tt := range tests {
		t.Run("returns 400 on "+tt.name, func(t *testing.T) {
			r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

			rec := doRequest(r, "POST", "/budgets", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
		})
	}

	t.Run("returns 400 on unknown policy", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(_ string, _ services.CreateBudgetInput) (*models.Budget, error) {
				return nil, apperrors.ErrUnknownPolicy
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"category_id":"`+testCategoryID+`","name":"x","amount":"10","cadence":"monthly","start_date":"2025-03-01","rollover_policy":"double"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "UNKNOWN_POLICY")
	})

	t.Run("returns 404 on invalid category", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(_ string, _ services.CreateBudgetInput) (*models.Budget, error) {
				return nil, apperrors.ErrCategoryNotFound
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "POST", "/budgets",
			`{"category_id":"`+testCategoryID+`","name":"x","amount":"10","cadence":"monthly","start_date":"2025-03-01"}`)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_NOT_FOUND")
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		r := gin.New()
		r.POST("/budgets", newBudgetHandler(&mockBudgetService{}).CreateBudget)

		rec := doRequest(r, "POST", "/budgets", `{}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_GetBudgets(t *testing.T) {
	t.Run("passes filters to service", func(t *testing.T) {
		var gotActive *bool
		var gotCadence *budget.Cadence
		svc := &mockBudgetService{
			getUserBudgetsFn: func(_ string, _ pagination.PageRequest, isActive *bool, cadence *budget.Cadence) (*pagination.PageResponse[models.Budget], error) {
				gotActive, gotCadence = isActive, cadence
				resp := pagination.NewPageResponse([]models.Budget{{Name: "Groceries"}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets?is_active=false&cadence=weekly", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotActive == nil || *gotActive {
			t.Error("expected is_active=false filter")
		}
		if gotCadence == nil || *gotCadence != budget.CadenceWeekly {
			t.Error("expected weekly cadence filter")
		}
	})

	for name, query := range map[string]string{
		"invalid is_active": "is_active=yes",
		"invalid cadence":   "cadence=daily",
	} {
		t.Run("returns 400 on "+name, func(t *testing.T) {
			r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

			rec := doRequest(r, "GET", "/budgets?"+query, "")

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestBudgetHandler_GetBudget(t *testing.T) {
	t.Run("returns 404 when not found", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetByIDFn: func(_, _ string) (*models.Budget, error) {
				return nil, apperrors.ErrBudgetNotFound
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "BUDGET_NOT_FOUND")
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "GET", "/budgets/42", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_UpdateBudget(t *testing.T) {
	t.Run("converts amount and policy", func(t *testing.T) {
		var got services.BudgetUpdate
		svc := &mockBudgetService{
			updateBudgetFn: func(_, budgetID string, update services.BudgetUpdate) (*models.Budget, error) {
				got = update
				return &models.Budget{Base: models.Base{ID: budgetID}, Amount: *update.Amount}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "PUT", "/budgets/"+testBudgetID, `{"amount":"750.5","rollover_policy":"full","is_active":false}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Amount == nil || *got.Amount != 75050 {
			t.Errorf("expected 75050 cents, got %v", got.Amount)
		}
		if got.RolloverPolicy == nil || *got.RolloverPolicy != budget.PolicyFull {
			t.Errorf("expected full policy, got %v", got.RolloverPolicy)
		}
		if got.IsActive == nil || *got.IsActive {
			t.Error("expected is_active=false")
		}
		if got.Name != nil {
			t.Error("expected name to be left unchanged")
		}
	})

	t.Run("returns 400 on bad amount", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "PUT", "/budgets/"+testBudgetID, `{"amount":"lots"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBudgetHandler_DeleteBudget(t *testing.T) {
	r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

	rec := doRequest(r, "DELETE", "/budgets/"+testBudgetID, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if msg := parseJSON(t, rec)["message"]; msg != "Budget deleted successfully" {
		t.Errorf("unexpected message: %v", msg)
	}
}

func TestBudgetHandler_GetBudgetProgress(t *testing.T) {
	t.Run("returns snapshot with display strings", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string) (*services.BudgetProgress, error) {
				return &services.BudgetProgress{
					Budget: &models.Budget{Base: models.Base{ID: testBudgetID}},
					Period: &models.BudgetPeriod{Base: models.Base{ID: testPeriodID}},
					Snapshot: budget.Snapshot{
						PeriodID:    testPeriodID,
						Limit:       123456,
						Spent:       65000,
						Remaining:   58456,
						PercentUsed: 52.650984,
						Status:      budget.StatusUnder,
					},
				}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		progress := parseJSON(t, rec)["progress"].(map[string]interface{})
		snap := progress["snapshot"].(map[string]interface{})
		if snap["limit_display"] != "1,234.56" {
			t.Errorf("expected 1,234.56, got %v", snap["limit_display"])
		}
		if snap["spent_display"] != "650.00" {
			t.Errorf("expected 650.00, got %v", snap["spent_display"])
		}
		if snap["percent_used"].(float64) != 52.65 {
			t.Errorf("expected 52.65, got %v", snap["percent_used"])
		}
		if snap["percent_display"] != "52.65%" {
			t.Errorf("expected 52.65%%, got %v", snap["percent_display"])
		}
		if snap["status"] != "under" {
			t.Errorf("expected under, got %v", snap["status"])
		}
	})

	t.Run("infinite ratio renders as no budget set", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string) (*services.BudgetProgress, error) {
				return &services.BudgetProgress{
					Snapshot: budget.Snapshot{Spent: 1250, Remaining: -1250, PercentUsed: math.Inf(1), Status: budget.StatusNoLimit},
				}, nil
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		snap := parseJSON(t, rec)["progress"].(map[string]interface{})["snapshot"].(map[string]interface{})
		if snap["percent_used"] != nil {
			t.Errorf("expected null percent_used, got %v", snap["percent_used"])
		}
		if snap["percent_display"] != budget.NoBudgetLabel {
			t.Errorf("expected %q, got %v", budget.NoBudgetLabel, snap["percent_display"])
		}
		if snap["remaining_display"] != "-12.50" {
			t.Errorf("expected -12.50, got %v", snap["remaining_display"])
		}
	})

	t.Run("uses the user's locale", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string) (*services.BudgetProgress, error) {
				return &services.BudgetProgress{Snapshot: budget.Snapshot{Limit: 123456}}, nil
			},
		}
		users := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				return &models.User{Base: models.Base{ID: id}, Locale: "de"}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, &mockPeriodService{}, users, &mockAuditService{}))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		snap := parseJSON(t, rec)["progress"].(map[string]interface{})["snapshot"].(map[string]interface{})
		if snap["limit_display"] != "1.234,56" {
			t.Errorf("expected 1.234,56, got %v", snap["limit_display"])
		}
	})

	t.Run("returns 409 without open period", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string) (*services.BudgetProgress, error) {
				return nil, apperrors.ErrNoOpenPeriod
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("returns 422 on corrupt ledger", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetProgressFn: func(_ context.Context, _, _ string) (*services.BudgetProgress, error) {
				return nil, apperrors.ErrInvalidAmount
			},
		}
		r := setupBudgetRouter(newBudgetHandler(svc))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress", "")

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_AMOUNT")
	})
}

func TestBudgetHandler_ListProgress(t *testing.T) {
	svc := &mockBudgetService{
		listProgressFn: func(_ context.Context, _ string) ([]services.BudgetProgress, error) {
			return []services.BudgetProgress{
				{Snapshot: budget.Snapshot{Limit: 10000, Spent: 9000, PercentUsed: 90, Status: budget.StatusNear}},
				{Snapshot: budget.Snapshot{Limit: 10000, Spent: 12000, PercentUsed: 120, Status: budget.StatusOver}},
			}, nil
		},
	}
	r := setupBudgetRouter(newBudgetHandler(svc))

	rec := doRequest(r, "GET", "/budgets/progress", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	list := parseJSON(t, rec)["progress"].([]interface{})
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	second := list[1].(map[string]interface{})["snapshot"].(map[string]interface{})
	if second["status"] != "over" {
		t.Errorf("expected over, got %v", second["status"])
	}
}

func TestBudgetHandler_GetBudgetPeriods(t *testing.T) {
	t.Run("passes state filter", func(t *testing.T) {
		var gotState *budget.State
		periods := &mockPeriodService{
			listPeriodsFn: func(_, _ string, state *budget.State, _ pagination.PageRequest) (*pagination.PageResponse[models.BudgetPeriod], error) {
				gotState = state
				resp := pagination.NewPageResponse([]models.BudgetPeriod{}, 1, 20, 0)
				return &resp, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, periods, &mockUserService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/periods?state=closed", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotState == nil || *gotState != budget.StateClosed {
			t.Error("expected closed state filter")
		}
	})

	t.Run("returns 400 on unknown state", func(t *testing.T) {
		r := setupBudgetRouter(newBudgetHandler(&mockBudgetService{}))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/periods?state=pending", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
