package domain

import "time"

// AttemptKind separates production dispatch sends from operator test sends.
type AttemptKind string

const (
	AttemptKindDispatch AttemptKind = "DISPATCH"
	AttemptKindTest     AttemptKind = "TEST"
)

// EmailAttempt is one append-only record per outbound send attempt,
// successful or not. It exists for operability and is never read back by
// the dispatch engine.
type EmailAttempt struct {
	ID        string
	Slot      SlotID
	Kind      AttemptKind
	Recipient string
	Subject   string
	Success   bool
	Error     *string
	CreatedAt time.Time
}
