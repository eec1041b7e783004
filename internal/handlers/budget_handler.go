package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"budgetkit/internal/budget"
	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/pagination"
	"budgetkit/internal/services"
)

// BudgetHandler handles budget-related requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
	periodService services.PeriodServicer
	userService   services.UserServicer
	auditService  services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(
	budgetService services.BudgetServicer,
	periodService services.PeriodServicer,
	userService services.UserServicer,
	auditService services.AuditServicer,
) *BudgetHandler {
	return &BudgetHandler{
		budgetService: budgetService,
		periodService: periodService,
		userService:   userService,
		auditService:  auditService,
	}
}

// CreateBudgetRequest represents the request payload for creating a budget.
// Amount is a decimal string in major units, e.g. "600.00". An unset
// rollover_policy uses the server default.
type CreateBudgetRequest struct {
	CategoryID           string         `json:"category_id" binding:"required,uuid"`
	Name                 string         `json:"name" binding:"required,min=1,max=100"`
	Amount               string         `json:"amount" binding:"required,money"`
	Cadence              budget.Cadence `json:"cadence" binding:"required,budget_cadence"`
	StartDate            string         `json:"start_date" binding:"required"`
	RolloverPolicy       string         `json:"rollover_policy" binding:"max=32"`
	IncludeSubcategories bool           `json:"include_subcategories"`
}

// UpdateBudgetRequest represents the request payload for updating a budget.
// A new amount also becomes the limit of the open period; closed periods
// keep the limit they had.
type UpdateBudgetRequest struct {
	Name                 *string `json:"name" binding:"omitempty,min=1,max=100"`
	Amount               *string `json:"amount" binding:"omitempty,money"`
	RolloverPolicy       *string `json:"rollover_policy" binding:"omitempty,max=32"`
	IncludeSubcategories *bool   `json:"include_subcategories"`
	IsActive             *bool   `json:"is_active"`
}

func (r CreateBudgetRequest) input() (services.CreateBudgetInput, error) {
	amount, err := budget.ParseMoney(r.Amount)
	if err != nil {
		return services.CreateBudgetInput{}, err
	}
	start, err := parseFlexibleTime(r.StartDate)
	if err != nil {
		return services.CreateBudgetInput{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid start_date format, use RFC3339 or YYYY-MM-DD")
	}
	return services.CreateBudgetInput{
		CategoryID:           r.CategoryID,
		Name:                 r.Name,
		Amount:               int64(amount),
		Cadence:              r.Cadence,
		StartDate:            start,
		RolloverPolicy:       budget.Policy(r.RolloverPolicy),
		IncludeSubcategories: r.IncludeSubcategories,
	}, nil
}

func (r UpdateBudgetRequest) update() (services.BudgetUpdate, error) {
	u := services.BudgetUpdate{
		Name:                 r.Name,
		IncludeSubcategories: r.IncludeSubcategories,
		IsActive:             r.IsActive,
	}
	if r.Amount != nil {
		amount, err := budget.ParseMoney(*r.Amount)
		if err != nil {
			return u, err
		}
		cents := int64(amount)
		u.Amount = &cents
	}
	if r.RolloverPolicy != nil {
		policy := budget.Policy(*r.RolloverPolicy)
		u.RolloverPolicy = &policy
	}
	return u, nil
}

// CreateBudget handles the creation of a new budget.
// @Summary     Create a budget
// @Description Create a budget for a category and open its first period
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input or unknown rollover policy"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in, err := req.input()
	if err != nil {
		respondWithError(c, err)
		return
	}

	b, err := h.budgetService.CreateBudget(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditCreateBudget, services.ResourceBudget, b.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "amount": req.Amount, "cadence": req.Cadence, "rollover_policy": b.RolloverPolicy})

	c.JSON(http.StatusCreated, gin.H{"budget": b})
}

// GetBudgets handles listing budgets for the authenticated user.
// @Summary     Get budgets
// @Description Get a paginated list of budgets for the authenticated user
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       is_active query bool   false "Filter by active status"
// @Param       cadence   query string false "Filter by cadence (weekly, monthly, quarterly, yearly)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	isActive, err := parseBoolQuery(c, "is_active")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var cadence *budget.Cadence
	if v := c.Query("cadence"); v != "" {
		cd := budget.Cadence(v)
		if !cd.Valid() {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "cadence must be weekly, monthly, quarterly or yearly"))
			return
		}
		cadence = &cd
	}

	result, err := h.budgetService.GetUserBudgets(userID, page, isActive, cadence)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBudget handles retrieving a specific budget.
// @Summary     Get budget by ID
// @Description Get a specific budget by ID
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Budget details"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, budgetID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	b, err := h.budgetService.GetBudgetByID(userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": b})
}

// UpdateBudget handles updating an existing budget.
// @Summary     Update budget
// @Description Update an existing budget. A new amount applies to the open period only.
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Budget ID"
// @Param       request body UpdateBudgetRequest true "Updated budget details"
// @Success     200 {object} models.Budget "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input or budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, budgetID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	update, err := req.update()
	if err != nil {
		respondWithError(c, err)
		return
	}

	b, err := h.budgetService.UpdateBudget(userID, budgetID, update)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditUpdateBudget, services.ResourceBudget, budgetID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "amount": req.Amount, "rollover_policy": req.RolloverPolicy})

	c.JSON(http.StatusOK, gin.H{"budget": b})
}

// DeleteBudget handles deleting a budget.
// @Summary     Delete budget
// @Description Delete a budget and its periods (soft delete)
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} MessageResponse "Budget deleted"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, budgetID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	if err := h.budgetService.DeleteBudget(userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditDeleteBudget, services.ResourceBudget, budgetID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Budget deleted successfully"})
}

// GetBudgetProgress handles retrieving the spending progress for a budget.
// @Summary     Get budget progress
// @Description Get the live snapshot of a budget's open period
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} ProgressResponse "Budget progress"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Budget has no open period"
// @Failure     422 {object} ErrorResponse "Ledger holds a non-finite amount"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/progress [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, budgetID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	progress, err := h.budgetService.GetBudgetProgress(c.Request.Context(), userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": newProgressResponse(*progress, userTag(h.userService, userID))})
}

// ListProgress handles the dashboard view of every active budget.
// @Summary     List budget progress
// @Description Get live snapshots for all active budgets with an open period
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  ProgressResponse "Progress of active budgets"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/progress [get]
func (h *BudgetHandler) ListProgress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	all, err := h.budgetService.ListProgress(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tag := userTag(h.userService, userID)
	resp := make([]ProgressResponse, 0, len(all))
	for _, p := range all {
		resp = append(resp, newProgressResponse(p, tag))
	}

	c.JSON(http.StatusOK, gin.H{"progress": resp})
}

// GetBudgetPeriods handles listing a budget's periods.
// @Summary     Get budget periods
// @Description Get a paginated list of a budget's periods, newest first
// @Tags        budgets,periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Budget ID"
// @Param       state     query string false "Filter by state (open, closed, archived)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetPeriod] "Paginated periods"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/periods [get]
func (h *BudgetHandler) GetBudgetPeriods(c *gin.Context) {
	userID, budgetID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var state *budget.State
	if v := c.Query("state"); v != "" {
		s := budget.State(v)
		switch s {
		case budget.StateOpen, budget.StateClosed, budget.StateArchived:
			state = &s
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "state must be open, closed or archived"))
			return
		}
	}

	result, err := h.periodService.ListPeriods(userID, budgetID, state, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
