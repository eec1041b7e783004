package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/models"
	"budgetkit/internal/pagination"
	"budgetkit/internal/services"
)

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, auditService: auditService}
}

// CreateTransactionRequest represents the request payload for creating a transaction
type CreateTransactionRequest struct {
	AccountID   string                 `json:"account_id" binding:"required,max=100"`
	CategoryID  *string                `json:"category_id" binding:"omitempty,uuid"`
	Type        models.TransactionType `json:"type" binding:"required,transaction_type"`
	Amount      int64                  `json:"amount" binding:"required,gt=0"`
	Description string                 `json:"description" binding:"max=500"`
	Date        string                 `json:"date"`
}

func (r CreateTransactionRequest) input() (services.TransactionInput, error) {
	in := services.TransactionInput{
		AccountID:   r.AccountID,
		CategoryID:  r.CategoryID,
		Type:        r.Type,
		Amount:      r.Amount,
		Description: r.Description,
	}
	if r.Date != "" {
		d, err := parseFlexibleTime(r.Date)
		if err != nil {
			return in, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid date format, use RFC3339 or YYYY-MM-DD")
		}
		in.Date = d
	}
	return in, nil
}

// ListTransactionsQuery holds the filters accepted by the transaction listing.
type ListTransactionsQuery struct {
	AccountID  string `form:"account_id" binding:"omitempty,max=100"`
	Type       string `form:"type" binding:"omitempty,transaction_type"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
	FromDate   string `form:"from_date"`
	ToDate     string `form:"to_date"`
	MinAmount  *int64 `form:"min_amount" binding:"omitempty,gte=0"`
	MaxAmount  *int64 `form:"max_amount" binding:"omitempty,gte=0"`
}

func (q ListTransactionsQuery) filter() (services.TransactionFilter, error) {
	f := services.TransactionFilter{MinAmount: q.MinAmount, MaxAmount: q.MaxAmount}
	if q.MinAmount != nil && q.MaxAmount != nil && *q.MinAmount > *q.MaxAmount {
		return f, apperrors.WithMessage(apperrors.ErrInvalidInput, "min_amount exceeds max_amount")
	}
	if q.AccountID != "" {
		f.AccountID = &q.AccountID
	}
	if q.CategoryID != "" {
		f.CategoryID = &q.CategoryID
	}
	if q.Type != "" {
		t := models.TransactionType(q.Type)
		f.Type = &t
	}
	for _, bound := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"from_date", q.FromDate, &f.FromDate},
		{"to_date", q.ToDate, &f.ToDate},
	} {
		if bound.raw == "" {
			continue
		}
		t, err := parseFlexibleTime(bound.raw)
		if err != nil {
			return f, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid "+bound.name+" format, use RFC3339 or YYYY-MM-DD")
		}
		*bound.dst = &t
	}
	if f.FromDate != nil && f.ToDate != nil && f.ToDate.Before(*f.FromDate) {
		return f, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date is before from_date")
	}
	return f, nil
}

// CreateTransaction handles the creation of a new transaction
// @Summary     Create a transaction
// @Description Record a manual income or expense. Amount is a positive number of cents; the date defaults to now.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	in, err := req.input()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.CreateTransaction(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditCreateTransaction, services.ResourceTransaction, transaction.ID, c.ClientIP(),
		map[string]interface{}{"type": in.Type, "amount": in.Amount, "account_id": in.AccountID})

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// GetUserTransactions lists the caller's transactions, newest first
// @Summary     List transactions
// @Description Paginated transactions with optional account, type, category, date and amount filters
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Param       account_id  query string false "Aggregator account ID"
// @Param       from_date   query string false "Inclusive start, RFC3339 or YYYY-MM-DD"
// @Param       to_date     query string false "Inclusive end, RFC3339 or YYYY-MM-DD"
// @Param       type        query string false "income or expense"
// @Param       category_id query string false "Category ID"
// @Param       min_amount  query int    false "Minimum amount in cents"
// @Param       max_amount  query int    false "Maximum amount in cents"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) GetUserTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	var query ListTransactionsQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	filter, err := query.filter()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetUserTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTransactionByID handles the retrieval of a specific transaction
// @Summary     Get transaction by ID
// @Description Get a specific transaction by ID
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction details"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	userID, transactionID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction handles deleting a transaction
// @Summary     Delete transaction
// @Description Delete a transaction by ID (soft delete). Closed budget periods keep their frozen totals.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} MessageResponse "Transaction deleted"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, transactionID, ok := ownedResource(c, "id")
	if !ok {
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditDeleteTransaction, services.ResourceTransaction, transactionID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}
