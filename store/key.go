package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for key validation.
var (
	ErrInvalidKey = errors.New("store: key is invalid")
)

// Key identifies one cached thumbnail.
//
// The key is a structured tuple rather than a joined string so that
// record IDs or URLs containing separator characters can never collide
// or corrupt parsing.
type Key struct {
	RecordID  string
	SourceURL string
}

// NewKey creates a key for the given record and source URL.
func NewKey(recordID, sourceURL string) Key {
	return Key{RecordID: recordID, SourceURL: sourceURL}
}

// Validate checks that both key components are present.
func (k Key) Validate() error {
	if k.RecordID == "" || k.SourceURL == "" {
		return ErrInvalidKey
	}
	return nil
}

// String renders the key for logs and metrics labels. The output is for
// display only and is never parsed back into components.
func (k Key) String() string {
	return fmt.Sprintf("%s (%s)", k.RecordID, k.SourceURL)
}
