package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity is the task type for the ledger drift scan.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload narrows the integrity scan to one client when set.
type LedgerIntegrityPayload struct {
	ClientID int64 `json:"client_id,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the drift scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
