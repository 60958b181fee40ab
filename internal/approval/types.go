// Package approval implements the approval store (pending/granted/denied
// decisions for tool calls requiring human sign-off) and the interaction
// coordinator (pending questions a provider turn can block on).
package approval

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// Request is one approval ask, keyed by ToolCallID.
type Request struct {
	ToolCallID string
	SessionID  string
	ToolID     string
	Summary    string
	CreatedAt  time.Time
	Status     Status
	DecidedAt  time.Time
}
