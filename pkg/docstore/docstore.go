// Package docstore is an in-memory, multi-table document store that stands in
// for the hosted document database during development and tests. It
// reproduces the backend's query surface (filter chains, ordering, single-row
// fetch) and mutation verbs (insert, update, upsert-by-conflict-key), and
// fans change events out through an attached Bus after every successful
// mutation.
//
// Mutations evaluate their predicates and apply their writes under one lock
// acquisition, so conditional updates behave as atomic compare-and-set even
// under concurrent callers.
package docstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is a schemaless row keyed by its "id" field.
type Document map[string]any

// Sentinel errors callers branch on.
var (
	// ErrNotFound is returned by single-row selects that matched zero rows.
	// Callers use it to distinguish "no record yet" from real failures.
	ErrNotFound = errors.New("docstore: not found")

	// ErrNoMatch is returned by single-row updates whose predicate chain
	// matched zero rows, meaning a precondition no longer holds.
	ErrNoMatch = errors.New("docstore: no rows matched")
)

// Recorder observes store activity. The metrics package implements it; the
// zero value recorder drops everything.
type Recorder interface {
	Mutation(table, verb string)
	EventDelivered(table string)
}

type nopRecorder struct{}

func (nopRecorder) Mutation(string, string) {}
func (nopRecorder) EventDelivered(string)   {}

// Store holds the tables. Construct one explicitly and hand it to every
// consumer; there is no package-level instance.
type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]Document
	bus    *Bus
	rec    Recorder

	// swapped out by tests for deterministic ids and timestamps
	now   func() time.Time
	newID func() string
}

// Option customizes a Store at construction time.
type Option func(*Store)

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs an empty store with its own change bus.
func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]map[string]Document),
		rec:    nopRecorder{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	s.bus = newBus(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bus returns the change notification bus attached to this store.
func (s *Store) Bus() *Bus {
	return s.bus
}

// Table starts a query builder against the named table. Tables spring into
// existence on first write.
func (s *Store) Table(name string) *Query {
	return &Query{store: s, table: name}
}

// Reset drops every row in every table. Subscriptions survive. Intended for
// tests and dev reseeding.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]map[string]Document)
}

func (s *Store) tableLocked(name string) map[string]Document {
	tbl, ok := s.tables[name]
	if !ok {
		tbl = make(map[string]Document)
		s.tables[name] = tbl
	}
	return tbl
}

// clone deep-copies a document so callers never alias stored state.
func clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if nested, ok := v.(Document); ok {
			out[k] = clone(nested)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = map[string]any(clone(Document(nested)))
			continue
		}
		out[k] = v
	}
	return out
}

func cloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = clone(doc)
	}
	return out
}

// ID extracts the document id, empty when absent.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// GetString returns the named field as a string, empty when absent or null.
func (d Document) GetString(field string) string {
	val, _ := d[field].(string)
	return val
}

// GetBool returns the named field as a bool, false when absent or null.
func (d Document) GetBool(field string) bool {
	val, _ := d[field].(bool)
	return val
}

// GetFloat returns the named field as a float64, coercing integer values.
func (d Document) GetFloat(field string) float64 {
	switch v := d[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// IsNull reports whether the field is absent or explicitly null.
func (d Document) IsNull(field string) bool {
	val, ok := d[field]
	return !ok || val == nil
}
