// Package store provides the bounded in-memory thumbnail store.
//
// It provides a Store with count and byte-size limits, insertion-order
// (FIFO) eviction, age-based expiry on read, and a background Sweeper
// that removes expired entries independent of lookups.
package store
