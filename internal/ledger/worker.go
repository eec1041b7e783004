// Package ledger feeds aggregator transactions into the ledger from a
// RabbitMQ queue.
package ledger

//go:generate mockgen -source=worker.go -destination=mock_worker.go -package=ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/logger"
	"budgetkit/internal/models"
	"budgetkit/internal/services"
)

// MaxBatch is the largest number of transactions accepted in one message.
const MaxBatch = 1000

// Importer stores imported transactions. services.TransactionServicer
// satisfies it.
type Importer interface {
	ImportTransactions(ctx context.Context, userID string, records []services.ImportRecord) (*services.ImportResult, error)
}

// UserLookup resolves the user a message is addressed to.
type UserLookup interface {
	GetUserByID(id string) (*models.User, error)
}

// PermanentError marks a message that will never succeed. The consumer drops
// it instead of requeueing.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Worker applies import messages.
type Worker struct {
	importer Importer
	users    UserLookup
}

// NewWorker creates a Worker.
func NewWorker(importer Importer, users UserLookup) *Worker {
	return &Worker{importer: importer, users: users}
}

// Handle validates msg and imports its transactions. Errors caused by the
// message itself are returned as *PermanentError; anything else is worth a
// retry.
func (w *Worker) Handle(ctx context.Context, msg *ImportMessage) error {
	if _, err := uuid.Parse(msg.UserID); err != nil {
		return &PermanentError{Err: fmt.Errorf("invalid user id %q", msg.UserID)}
	}
	if len(msg.Transactions) == 0 {
		return nil
	}
	if len(msg.Transactions) > MaxBatch {
		return &PermanentError{Err: fmt.Errorf("batch of %d exceeds %d transactions", len(msg.Transactions), MaxBatch)}
	}

	if _, err := w.users.GetUserByID(msg.UserID); err != nil {
		return classify(err)
	}

	result, err := w.importer.ImportTransactions(ctx, msg.UserID, msg.Transactions)
	if err != nil {
		return classify(err)
	}

	logger.Named("ledger").Infow("applied import message",
		"user_id", msg.UserID,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"sent_at", msg.SentAt,
	)
	return nil
}

// classify treats client-side application errors as permanent.
func classify(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode >= 400 && appErr.StatusCode < 500 {
		return &PermanentError{Err: err}
	}
	return err
}
