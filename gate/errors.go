package gate

import "errors"

// Sentinel errors for admission.
var (
	// ErrQueueTimeout is returned when a caller waited longer than the
	// configured queue timeout for a slot.
	ErrQueueTimeout = errors.New("gate: timed out waiting for an admission slot")

	// ErrAbandoned is returned to queued callers when the gate is reset.
	ErrAbandoned = errors.New("gate: queued request abandoned by reset")
)
