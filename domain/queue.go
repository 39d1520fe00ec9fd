package domain

import (
	"encoding/json"
	"time"
)

// Queue entry states. The state of an entry is implied by which queue
// directory its file lives in; these names are used for reporting.
const (
	QueueStatePending = "pending"
	QueueStateClaimed = "claimed"
	QueueStateDone    = "done"
	QueueStateFailed  = "failed"
)

// QueueEntry is one accepted inbound activity awaiting dispatch. The raw
// activity is carried inline so an entry is self-contained across restarts.
type QueueEntry struct {
	ID         string          `json:"id"`
	ActivityID string          `json:"activityId"`
	Activity   json.RawMessage `json:"activity"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	FailReason string          `json:"failReason,omitempty"`
}
