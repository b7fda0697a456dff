// Package gate provides the admission gate bounding concurrent
// thumbnail generation.
//
// A Gate grants up to MaxConcurrent slots immediately; callers beyond
// that wait in an explicit FIFO queue. Each queued caller carries its
// own timeout, and a waiter found expired when slots free up is
// rejected rather than run. Slots are handed to waiters in queue order
// as they are released; releasing a slot is the only way a queued
// caller ever runs.
package gate
