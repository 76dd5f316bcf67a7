package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/qcqueue/constants"
)

// JobRecord is one ledger row for data transfer between layers.
type JobRecord struct {
	ID           uuid.UUID           `json:"id"`
	RunID        uuid.UUID           `json:"run_id"`
	Index        int                 `json:"index"`
	Name         string              `json:"name"`
	Procedure    string              `json:"procedure"`
	Status       constants.JobStatus `json:"status"`
	Chunk        *int                `json:"chunk,omitempty"`
	SchedulerID  *string             `json:"scheduler_id,omitempty"`
	Energy       *float64            `json:"energy,omitempty"`
	RunTime      *float64            `json:"run_time,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
