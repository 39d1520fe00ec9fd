package domain

import "time"

// Failure reasons for a delivery attempt.
const (
	FailureNoInbox     = "no-inbox"
	FailureUnreachable = "unreachable"
	FailureTimeout     = "timeout"
	FailureStatus      = "status"
)

// DeliveryOutcome records one delivery attempt to one recipient. A failed
// outcome never aborts the surrounding broadcast.
type DeliveryOutcome struct {
	Recipient   string
	AttemptedAt time.Time
	Delivered   bool
	StatusCode  int
	Failure     string
	Detail      string
}

func (o DeliveryOutcome) Succeeded() bool {
	return o.Delivered
}
