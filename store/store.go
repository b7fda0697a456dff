package store

import (
	"container/list"
	"sync"
	"time"
)

// Config configures the store.
type Config struct {
	// MaxEntries is the maximum number of cached thumbnails.
	// Default: 100
	MaxEntries int

	// MaxMemoryBytes caps the total decoded size of all entries.
	// Default: 50 MiB
	MaxMemoryBytes int64

	// MaxAge is the age after which an entry is treated as expired.
	// Default: 30 minutes
	MaxAge time.Duration

	// OnEvict, if set, is called for every entry removed by capacity
	// pressure or expiry (not by Delete or Clear). Called without the
	// store lock held.
	OnEvict func(key Key)
}

// Entry is a cached thumbnail payload.
type Entry struct {
	// Data is the base64-encoded image payload.
	Data string

	// CreatedAt is set once at insertion and never refreshed on read.
	CreatedAt time.Time

	// SizeBytes is the decoded size of Data, accounted against
	// Config.MaxMemoryBytes.
	SizeBytes int64
}

type record struct {
	key   Key
	entry Entry
}

// Store is a bounded thumbnail store.
//
// Eviction is strictly insertion-order (FIFO): a read never refreshes an
// entry's age, so the entry with the smallest CreatedAt is always the
// oldest insertion. This is deliberate and load-bearing; do not convert
// to LRU.
type Store struct {
	mu         sync.Mutex
	config     Config
	entries    map[Key]*list.Element
	order      *list.List // *record, front = oldest insertion
	totalBytes int64
}

// New creates a store with the given configuration.
func New(config Config) *Store {
	// Apply defaults
	if config.MaxEntries <= 0 {
		config.MaxEntries = 100
	}
	if config.MaxMemoryBytes <= 0 {
		config.MaxMemoryBytes = 50 * 1024 * 1024
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 30 * time.Minute
	}

	return &Store{
		config:  config,
		entries: make(map[Key]*list.Element),
		order:   list.New(),
	}
}

// decodedSize is the decoded byte size of a base64 payload:
// ceil(len * 3 / 4).
func decodedSize(data string) int64 {
	return int64((len(data)*3 + 3) / 4)
}

// Get retrieves a cached payload. Returns ("", false) on miss. An entry
// older than MaxAge is removed and reported as a miss; expired data is
// never returned.
func (s *Store) Get(key Key) (string, bool) {
	s.mu.Lock()

	el, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return "", false
	}

	rec := el.Value.(*record)
	if time.Since(rec.entry.CreatedAt) > s.config.MaxAge {
		s.removeLocked(el)
		s.mu.Unlock()
		s.notifyEvict(key)
		return "", false
	}

	data := rec.entry.Data
	s.mu.Unlock()
	return data, true
}

// Put inserts a payload, evicting oldest-inserted entries until both the
// entry-count and memory limits hold. Inserting an existing key replaces
// its entry with a fresh CreatedAt.
func (s *Store) Put(key Key, data string) {
	size := decodedSize(data)

	s.mu.Lock()

	if el, ok := s.entries[key]; ok {
		s.removeLocked(el)
	}

	var evicted []Key
	for s.order.Len() > 0 &&
		(s.order.Len() >= s.config.MaxEntries || s.totalBytes+size > s.config.MaxMemoryBytes) {
		front := s.order.Front()
		evicted = append(evicted, front.Value.(*record).key)
		s.removeLocked(front)
	}

	el := s.order.PushBack(&record{
		key: key,
		entry: Entry{
			Data:      data,
			CreatedAt: time.Now(),
			SizeBytes: size,
		},
	})
	s.entries[key] = el
	s.totalBytes += size

	s.mu.Unlock()

	for _, k := range evicted {
		s.notifyEvict(k)
	}
}

// Delete removes a cached payload. Idempotent.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	if el, ok := s.entries[key]; ok {
		s.removeLocked(el)
	}
	s.mu.Unlock()
}

// Sweep removes every expired entry and returns the number removed. It
// runs independently of Get and Put; the Sweeper calls it on a fixed
// interval.
func (s *Store) Sweep() int {
	s.mu.Lock()

	var expired []Key
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		rec := el.Value.(*record)
		if time.Since(rec.entry.CreatedAt) > s.config.MaxAge {
			expired = append(expired, rec.key)
			s.removeLocked(el)
		}
		el = next
	}

	s.mu.Unlock()

	for _, k := range expired {
		s.notifyEvict(k)
	}
	return len(expired)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[Key]*list.Element)
	s.order.Init()
	s.totalBytes = 0
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// MemoryUsage returns the total decoded size of all cached entries.
func (s *Store) MemoryUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// MaxAge returns the configured entry lifetime.
func (s *Store) MaxAge() time.Duration {
	return s.config.MaxAge
}

func (s *Store) removeLocked(el *list.Element) {
	rec := el.Value.(*record)
	delete(s.entries, rec.key)
	s.order.Remove(el)
	s.totalBytes -= rec.entry.SizeBytes
}

func (s *Store) notifyEvict(key Key) {
	if s.config.OnEvict != nil {
		s.config.OnEvict(key)
	}
}
