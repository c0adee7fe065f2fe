// internal/store/store.go
package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Chinzzii/docstore/internal/metrics"
)

// Record is a single JSON object within a resource collection.
// Every stored Record carries an "id" field.
type Record map[string]any

// Database maps a resource name (eg "Question") to its ordered records.
// Insertion order is the default list order.
type Database map[string][]Record

// Errors returned by Store operations.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownResource = errors.New("unknown resource")
	ErrPersistence     = errors.New("snapshot not persisted")
	ErrIDOverflow      = errors.New("next id overflows int64")
)

// Persister writes a full Database snapshot to durable storage.
type Persister interface {
	Save(Database) error
}

// Option configures a Store.
type Option func(*Store)

// WithStrictPersistence makes mutations return ErrPersistence when the
// snapshot could not be written. By default such failures are only logged
// and the in-memory mutation is still reported as successful.
func WithStrictPersistence(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// Store owns the authoritative in-memory Database. A single RWMutex
// serialises every read-modify-write-save sequence against reloads, so a
// snapshot handed to the Persister is always the latest one.
type Store struct {
	mu        sync.RWMutex // mu protects db
	db        Database     // db is the current Database
	persister Persister    // persister receives a snapshot after each mutation
	strict    bool         // strict surfaces persistence failures to callers
}

// New creates a Store over |db|. The Store takes ownership of |db|.
// |p| may be nil, in which case mutations are memory-only.
func New(db Database, p Persister, opts ...Option) *Store {
	if db == nil {
		db = Database{}
	}
	var s = &Store{db: db, persister: p}
	for _, opt := range opts {
		opt(s)
	}
	s.updateGauges()
	return s
}

// Resources returns the sorted names of all current resources.
func (s *Store) Resources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out = make([]string, 0, len(s.db))
	for name := range s.db {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has returns whether |resource| currently exists.
func (s *Store) Has(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var _, ok = s.db[resource]
	return ok
}

// Counts returns the number of records held by each resource.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out = make(map[string]int, len(s.db))
	for name, seq := range s.db {
		out[name] = len(seq)
	}
	return out
}

// Snapshot returns a copy of the entire Database which the caller may
// use without holding any lock.
func (s *Store) Snapshot() Database {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Clone()
}

// List returns the records of |resource| matching |q|. An unknown resource
// or an empty match both yield an empty, non-nil slice.
func (s *Store) List(resource string, q Query) []Record {
	s.mu.RLock()
	var out = make([]Record, 0)
	for _, rec := range s.db[resource] {
		if q.matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	if q.Sort != nil {
		sortRecords(out, *q.Sort)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Get returns the record of |resource| whose id loosely equals |id|.
func (s *Store) Get(resource, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seq, ok = s.db[resource]
	if !ok {
		return nil, ErrNotFound
	}
	if i := indexOf(seq, id); i != -1 {
		return seq[i].Clone(), nil
	}
	return nil, ErrNotFound
}

// Create appends a new record to |resource|, assigning it the next numeric
// id. Any "id" present in |fields| is overwritten.
func (s *Store) Create(resource string, fields Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq, ok = s.db[resource]
	if !ok {
		return nil, ErrUnknownResource
	}
	var id, err = NextID(seq)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating in %s", resource)
	}
	var rec = fields.Clone()
	if rec == nil {
		rec = Record{}
	}
	rec["id"] = json.Number(strconv.FormatInt(id, 10))
	s.db[resource] = append(seq, rec)

	return rec.Clone(), s.persistLocked("create", resource)
}

// Update shallow-merges |fields| over the record of |resource| whose id
// loosely equals |id|. Supplied fields win and unmentioned fields survive.
// The merged record keeps its position.
func (s *Store) Update(resource, id string, fields Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq, ok = s.db[resource]
	if !ok {
		return nil, ErrNotFound
	}
	var i = indexOf(seq, id)
	if i == -1 {
		return nil, ErrNotFound
	}
	var merged = seq[i].Clone()
	for k, v := range fields {
		merged[k] = v
	}
	seq[i] = merged

	return merged.Clone(), s.persistLocked("update", resource)
}

// Delete removes every record of |resource| whose id loosely equals |id|,
// returning the number removed. Removing nothing, including from a resource
// which no longer exists, is not an error.
func (s *Store) Delete(resource, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq = s.db[resource]
	var kept = seq[:0:0]
	for _, rec := range seq {
		if !SameID(rec["id"], id) {
			kept = append(kept, rec)
		}
	}
	var removed = len(seq) - len(kept)
	if removed == 0 {
		return 0, nil // Nothing to persist.
	}
	s.db[resource] = kept

	return removed, s.persistLocked("delete", resource)
}

// Reload replaces the Database with the result of |fn|, which is invoked
// while the write lock is held. If |fn| fails, the current Database is left
// untouched. If |fn| returns a nil Database and nil error, nothing changes.
// Reload never persists: the loaded content already is what's on disk.
func (s *Store) Reload(fn func() (Database, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var db, err = fn()
	if err != nil {
		return err
	} else if db == nil {
		return nil
	}
	s.db = db
	s.updateGaugesLocked()
	return nil
}

// Replace persists |db| and, if that succeeds, swaps it in as the current
// Database. Unlike mutations, a failed write always leaves state untouched
// and is always returned.
func (s *Store) Replace(db Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db == nil {
		db = Database{}
	}
	if s.persister != nil {
		if err := s.persister.Save(db); err != nil {
			return errors.WithMessage(ErrPersistence, err.Error())
		}
	}
	s.db = db
	s.updateGaugesLocked()
	return nil
}

// Flush writes the current Database, eg at a clean shutdown.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(s.db); err != nil {
		return errors.WithMessage(ErrPersistence, err.Error())
	}
	return nil
}

// persistLocked writes the current Database. s.mu must be held for writing.
func (s *Store) persistLocked(op, resource string) error {
	metrics.Records.WithLabelValues(resource).Set(float64(len(s.db[resource])))

	if s.persister == nil {
		return nil
	}
	var err = s.persister.Save(s.db)
	if err == nil {
		return nil
	}
	log.WithFields(log.Fields{
		"op":       op,
		"resource": resource,
		"err":      err,
	}).Warn("mutation applied in memory but not persisted")

	if s.strict {
		return errors.WithMessage(ErrPersistence, err.Error())
	}
	return nil
}

func (s *Store) updateGauges() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.updateGaugesLocked()
}

func (s *Store) updateGaugesLocked() {
	metrics.Records.Reset()
	for name, seq := range s.db {
		metrics.Records.WithLabelValues(name).Set(float64(len(seq)))
	}
}

// Clone returns a shallow copy of the Record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	var out = make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a copy of the Database with fresh collections and records.
func (db Database) Clone() Database {
	if db == nil {
		return nil
	}
	var out = make(Database, len(db))
	for name, seq := range db {
		var cp = make([]Record, len(seq))
		for i, rec := range seq {
			cp[i] = rec.Clone()
		}
		out[name] = cp
	}
	return out
}

func indexOf(seq []Record, id string) int {
	for i, rec := range seq {
		if SameID(rec["id"], id) {
			return i
		}
	}
	return -1
}
