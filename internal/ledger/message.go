package ledger

import (
	"encoding/json"
	"time"

	"budgetkit/internal/services"
)

// ImportMessage carries one batch of aggregator transactions for a user.
type ImportMessage struct {
	UserID       string                  `json:"user_id"`
	Transactions []services.ImportRecord `json:"transactions"`
	SentAt       time.Time               `json:"sent_at"`
}

// NewImportMessage creates a message stamped with the current time.
func NewImportMessage(userID string, records []services.ImportRecord) *ImportMessage {
	return &ImportMessage{
		UserID:       userID,
		Transactions: records,
		SentAt:       time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ImportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportMessageFromJSON decodes a message body.
func ImportMessageFromJSON(data []byte) (*ImportMessage, error) {
	var msg ImportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
