package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/services"
)

// ServiceHandler serves the machine-to-machine endpoints used by schedulers
// and the aggregator bridge. Routes are guarded by ServiceKeyAuth.
type ServiceHandler struct {
	periodService      services.PeriodServicer
	transactionService services.TransactionServicer
	userService        services.UserServicer
	now                func() time.Time
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(periodService services.PeriodServicer, transactionService services.TransactionServicer, userService services.UserServicer) *ServiceHandler {
	return &ServiceHandler{
		periodService:      periodService,
		transactionService: transactionService,
		userService:        userService,
		now:                time.Now,
	}
}

// ImportRequest is a batch of aggregator transactions for one user.
type ImportRequest struct {
	Transactions []services.ImportRecord `json:"transactions" binding:"required,min=1,max=1000,dive"`
}

// CloseExpired closes every elapsed open period
// @Summary     Close expired periods
// @Description Close all open periods whose end date has passed, catching up on missed cadences
// @Tags        service
// @Produce     json
// @Security    ServiceKey
// @Success     200 {object} services.SweepResult "Sweep summary"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Service key not configured"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /service/lifecycle/close-expired [post]
func (h *ServiceHandler) CloseExpired(c *gin.Context) {
	result, err := h.periodService.CloseExpired(c.Request.Context(), h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ArchiveStale archives closed periods past retention
// @Summary     Archive stale periods
// @Description Archive all closed periods whose retention window has passed
// @Tags        service
// @Produce     json
// @Security    ServiceKey
// @Success     200 {object} services.SweepResult "Sweep summary"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Service key not configured"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /service/lifecycle/archive-stale [post]
func (h *ServiceHandler) ArchiveStale(c *gin.Context) {
	result, err := h.periodService.ArchiveStale(c.Request.Context(), h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportTransactions stores a batch of aggregator transactions for a user
// @Summary     Import transactions
// @Description Import aggregator transactions. Records already imported (same external_id) are skipped. Amounts are in major units, signed per the server's sign convention.
// @Tags        service
// @Accept      json
// @Produce     json
// @Security    ServiceKey
// @Param       user_id path string        true "User ID"
// @Param       request body ImportRequest true "Transactions"
// @Success     200 {object} services.ImportResult "Import summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "User not found"
// @Failure     422 {object} ErrorResponse "Non-finite amount"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /service/users/{user_id}/transactions/import [post]
func (h *ServiceHandler) ImportTransactions(c *gin.Context) {
	userID, err := parsePathID(c, "user_id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if _, err := h.userService.GetUserByID(userID); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.ImportTransactions(c.Request.Context(), userID, req.Transactions)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
