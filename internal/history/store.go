// Package history keeps a bounded, in-memory scan history per target and
// compares successive scans.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// DefaultCapacity is the number of scans kept per target
const DefaultCapacity = 20

// Common errors
var (
	// ErrEmptyKey indicates a comparison without a target identity key
	ErrEmptyKey = errors.New("target identity key is required")

	// ErrNilSummary indicates a comparison without an audit summary
	ErrNilSummary = errors.New("audit summary is required")
)

// SizeRecorder receives the total number of stored scans after every change
type SizeRecorder interface {
	SetStoredScans(n int)
}

// Store holds scan history for every target. Entries are append-only and
// evicted oldest first once a target exceeds the capacity. Contents are
// lost when the process exits.
type Store struct {
	// mu guards scans, keyLocks and total
	mu       sync.Mutex
	scans    map[string][]models.SavedScan
	keyLocks map[string]*sync.Mutex
	total    int

	capacity int
	now      func() time.Time
	newID    func() string
	recorder SizeRecorder
	logger   *logrus.Logger
}

// NewStore creates an empty store
func NewStore(options ...func(*Store)) *Store {
	s := &Store{
		scans:    make(map[string][]models.SavedScan),
		keyLocks: make(map[string]*sync.Mutex),
		capacity: DefaultCapacity,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		logger:   logrus.New(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WithCapacity sets the per-target capacity
func WithCapacity(capacity int) func(*Store) {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithClock sets the time source used for scan timestamps
func WithClock(now func() time.Time) func(*Store) {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) func(*Store) {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithSizeRecorder sets the metrics sink for the stored scan count
func WithSizeRecorder(recorder SizeRecorder) func(*Store) {
	return func(s *Store) {
		s.recorder = recorder
	}
}

// lockFor returns the mutex serializing compare-and-append for key
func (s *Store) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key] = lock
	}
	return lock
}

// latest returns the most recent scan for key
func (s *Store) latest(key string) (models.SavedScan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.scans[key]
	if len(entries) == 0 {
		return models.SavedScan{}, false
	}
	return entries[len(entries)-1], true
}

// append adds a scan and truncates the target's history to capacity
func (s *Store) append(scan models.SavedScan) {
	s.mu.Lock()
	entries := append(s.scans[scan.RepoID], scan)
	before := len(s.scans[scan.RepoID])
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}
	trimmed := make([]models.SavedScan, len(entries))
	copy(trimmed, entries)
	s.scans[scan.RepoID] = trimmed
	s.total += len(trimmed) - before
	total := s.total
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SetStoredScans(total)
	}
}

// History returns a copy of the scans stored for key, oldest first
func (s *Store) History(key string) []models.SavedScan {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.scans[key]
	out := make([]models.SavedScan, len(entries))
	copy(out, entries)
	return out
}

// Len returns the number of scans stored for key
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans[key])
}

// Total returns the number of scans stored across all targets
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
