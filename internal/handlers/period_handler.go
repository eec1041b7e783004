package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"budgetkit/internal/models"
	"budgetkit/internal/services"
)

// PeriodHandler exposes budget periods and their lifecycle transitions.
type PeriodHandler struct {
	periodService services.PeriodServicer
	userService   services.UserServicer
	auditService  services.AuditServicer
}

// NewPeriodHandler creates a new PeriodHandler.
func NewPeriodHandler(periodService services.PeriodServicer, userService services.UserServicer, auditService services.AuditServicer) *PeriodHandler {
	return &PeriodHandler{periodService: periodService, userService: userService, auditService: auditService}
}

// PeriodResponse is a period with its snapshot.
type PeriodResponse struct {
	Period   *models.BudgetPeriod `json:"period"`
	Snapshot SnapshotResponse     `json:"snapshot"`
}

// GetPeriod returns a period and its snapshot
// @Summary     Get budget period
// @Description Get a period with its snapshot. Closed and archived periods return the figures frozen at close.
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} PeriodResponse "Period and snapshot"
// @Failure     400 {object} ErrorResponse "Invalid period ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /periods/{id} [get]
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	userID, periodID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	period, err := h.periodService.GetPeriod(userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp, err := h.withSnapshot(c, userID, period)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PeriodHandler) withSnapshot(c *gin.Context, userID string, period *models.BudgetPeriod) (PeriodResponse, error) {
	snap, err := h.periodService.Snapshot(c.Request.Context(), period)
	if err != nil {
		return PeriodResponse{}, err
	}
	return PeriodResponse{
		Period:   period,
		Snapshot: newSnapshotResponse(snap, userTag(h.userService, userID)),
	}, nil
}

// ClosePeriod closes an elapsed period and opens its successor
// @Summary     Close budget period
// @Description Freeze an elapsed period's snapshot, apply the rollover policy and open the next period. Closing twice returns the first outcome.
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} CloseResponse "Close outcome"
// @Failure     400 {object} ErrorResponse "Invalid period ID or unknown rollover policy"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     409 {object} ErrorResponse "Period has not ended"
// @Failure     503 {object} ErrorResponse "Successor period could not be created"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /periods/{id}/close [post]
func (h *PeriodHandler) ClosePeriod(c *gin.Context) {
	userID, periodID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	result, err := h.periodService.ClosePeriod(c.Request.Context(), userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditClosePeriod, services.ResourceBudgetPeriod, periodID, c.ClientIP(),
		map[string]interface{}{"carry": int64(result.Carry), "successor_id": result.Successor.ID})

	c.JSON(http.StatusOK, newCloseResponse(result, userTag(h.userService, userID)))
}

// ArchivePeriod archives a closed period
// @Summary     Archive budget period
// @Description Archive a closed period once its retention window has passed. Archiving twice is a no-op.
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} PeriodResponse "Archived period and its frozen snapshot"
// @Failure     400 {object} ErrorResponse "Invalid period ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     409 {object} ErrorResponse "Period is open or still retained"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /periods/{id}/archive [post]
func (h *PeriodHandler) ArchivePeriod(c *gin.Context) {
	userID, periodID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	period, err := h.periodService.ArchivePeriod(c.Request.Context(), userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditArchivePeriod, services.ResourceBudgetPeriod, periodID, c.ClientIP(), nil)

	resp, err := h.withSnapshot(c, userID, period)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
