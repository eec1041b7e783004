package services

import (
	"encoding/json"

	"gorm.io/gorm"

	"budgetkit/internal/logger"
	"budgetkit/internal/models"
)

// AuditAction names a recorded user operation.
type AuditAction string

const (
	AuditRegister          AuditAction = "REGISTER"
	AuditLogin             AuditAction = "LOGIN"
	AuditCreateCategory    AuditAction = "CREATE_CATEGORY"
	AuditUpdateCategory    AuditAction = "UPDATE_CATEGORY"
	AuditDeleteCategory    AuditAction = "DELETE_CATEGORY"
	AuditCreateTransaction AuditAction = "CREATE_TRANSACTION"
	AuditDeleteTransaction AuditAction = "DELETE_TRANSACTION"
	AuditCreateBudget      AuditAction = "CREATE_BUDGET"
	AuditUpdateBudget      AuditAction = "UPDATE_BUDGET"
	AuditDeleteBudget      AuditAction = "DELETE_BUDGET"
	AuditClosePeriod       AuditAction = "CLOSE_PERIOD"
	AuditArchivePeriod     AuditAction = "ARCHIVE_PERIOD"
)

// AuditResource is the kind of record an audit entry points at.
type AuditResource string

const (
	ResourceUser         AuditResource = "user"
	ResourceCategory     AuditResource = "category"
	ResourceTransaction  AuditResource = "transaction"
	ResourceBudget       AuditResource = "budget"
	ResourceBudgetPeriod AuditResource = "budget_period"
)

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates an AuditServicer writing to the audit_logs table.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log stores one audit entry. The audited operation has already succeeded,
// so failures here are logged and swallowed.
func (s *auditService) Log(userID string, action AuditAction, resource AuditResource, resourceID, ipAddress string, changes map[string]any) {
	log := logger.Named("audit").With(
		"user_id", userID,
		"action", action,
		"resource", resource,
		"resource_id", resourceID,
	)

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       string(action),
		ResourceType: string(resource),
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
	}
	if len(changes) > 0 {
		data, err := json.Marshal(changes)
		if err != nil {
			log.Warnw("audit changes not serialisable", "error", err)
			data = []byte("{}")
		}
		entry.Changes = string(data)
	}

	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("failed to write audit entry", "error", err)
	}
}
