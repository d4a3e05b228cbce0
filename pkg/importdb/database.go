package importdb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/pkg/util"
)

// OutputChecker reports whether a recorded output still exists.
type OutputChecker interface {
	Exists(rel string) bool
}

// DirChecker checks outputs relative to a directory.
type DirChecker string

// Exists implements OutputChecker.
func (d DirChecker) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(string(d), filepath.FromSlash(rel)))
	return err == nil
}

// Database is the in-memory import ledger backed by a Store.
//
// All methods are safe for concurrent use. Mutation during a batch is
// expected to come from the single worker holding Acquire.
type Database struct {
	mu      sync.RWMutex
	store   Store
	records map[string]*Record
	owned   atomic.Bool
	clock   clock.Clock
	logger  *zap.SugaredLogger
}

// Option configures a Database.
type Option func(*Database)

// WithClock sets the clock used for ImportedAt stamps.
func WithClock(c clock.Clock) Option {
	return func(db *Database) { db.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(db *Database) { db.logger = l }
}

// New creates an empty database persisted through store.
func New(store Store, opts ...Option) *Database {
	db := &Database{
		store:   store,
		records: make(map[string]*Record),
		clock:   clock.New(),
		logger:  log.Component("importdb"),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Load replaces the in-memory state with the persisted snapshot.
// Missing or corrupt data yields an empty database; corruption is logged,
// never returned. It reports whether existing records were loaded.
func (db *Database) Load() bool {
	snap, err := db.store.Load()
	if err != nil {
		if errors.Is(err, ErrDatabaseCorrupt) {
			db.logger.Warnw("import database unreadable, starting empty", "path", db.store.Path(), "error", err)
		} else {
			db.logger.Errorw("failed to load import database, starting empty", "path", db.store.Path(), "error", err)
		}
		snap = NewSnapshot()
	}

	records := make(map[string]*Record, len(snap.Records))
	for id, r := range snap.Records {
		if r == nil {
			continue
		}
		if r.AssetID == "" {
			r.AssetID = id
		}
		records[r.AssetID] = r
	}

	db.mu.Lock()
	db.records = records
	db.mu.Unlock()

	db.logger.Debugw("import database loaded", "path", db.store.Path(), "records", len(records))
	return len(records) > 0
}

// Persist writes the current state to the store atomically.
func (db *Database) Persist() error {
	db.mu.RLock()
	snap := &Snapshot{
		Version:   SnapshotVersion,
		UpdatedAt: db.clock.Now().UTC(),
		Records:   make(map[string]*Record, len(db.records)),
	}
	for id, r := range db.records {
		c := r.clone()
		snap.Records[id] = &c
	}
	db.mu.RUnlock()

	if err := db.store.Save(snap); err != nil {
		return err
	}
	log.TraceTo(db.logger, "import database persisted", "records", len(snap.Records))
	return nil
}

// Acquire gives the caller exclusive worker ownership of the database.
// The returned release function is idempotent.
func (db *Database) Acquire() (release func(), err error) {
	if !db.owned.CompareAndSwap(false, true) {
		return nil, ErrDatabaseBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() { db.owned.Store(false) })
	}, nil
}

// Get returns a copy of the record for an asset.
func (db *Database) Get(id string) (Record, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.records[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Staleness reports why an asset needs importing, or Fresh.
func (db *Database) Staleness(a Asset, outputs OutputChecker) StaleReason {
	db.mu.RLock()
	r, ok := db.records[a.ID]
	db.mu.RUnlock()

	switch {
	case !ok:
		return NotImported
	case r.AssetType != a.Type:
		return TypeChanged
	case r.Version != a.Version:
		return ImporterChanged
	case !r.inputsMatch(a.Inputs):
		return InputsChanged
	}
	if outputs != nil {
		for _, out := range r.Outputs {
			if !outputs.Exists(out) {
				return OutputsMissing
			}
		}
	}
	return Fresh
}

// IsStale returns true if the asset has no record or its record is out of date.
func (db *Database) IsStale(a Asset, outputs OutputChecker) bool {
	return db.Staleness(a, outputs).Stale()
}

// FilterStale returns the stale assets in their original order.
func (db *Database) FilterStale(assets []Asset, outputs OutputChecker) []Asset {
	var stale []Asset
	for _, a := range assets {
		if db.IsStale(a, outputs) {
			stale = append(stale, a)
		}
	}
	return stale
}

// Status classifies every candidate and lists records whose asset is gone.
func (db *Database) Status(assets []Asset, outputs OutputChecker) *StaleSet {
	set := NewStaleSet()
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		seen[a.ID] = struct{}{}
		set.Add(a.ID, db.Staleness(a, outputs))
	}

	db.mu.RLock()
	for id := range db.records {
		if _, ok := seen[id]; !ok {
			set.Removed = append(set.Removed, id)
		}
	}
	db.mu.RUnlock()

	set.sort()
	return set
}

// Orphans returns the outputs of the last successful import of id that are
// not in newOutputs. Outputs another record also lists are never orphans.
// It does not modify the database.
func (db *Database) Orphans(id string, newOutputs []string) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.records[id]
	if !ok {
		return nil
	}
	var orphans []string
	for _, o := range util.Difference(r.Outputs, newOutputs) {
		if _, claimed := db.ownerLocked(id, o); !claimed {
			orphans = append(orphans, o)
		}
	}
	return orphans
}

// Owners maps each of outputs that a record other than id lists to the
// owning asset. It returns nil when there is no overlap.
func (db *Database) Owners(id string, outputs []string) map[string]string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var owners map[string]string
	for _, o := range outputs {
		owner, ok := db.ownerLocked(id, o)
		if !ok {
			continue
		}
		if owners == nil {
			owners = make(map[string]string)
		}
		owners[o] = owner
	}
	return owners
}

// ownerLocked returns the smallest asset id other than id whose record
// lists output.
func (db *Database) ownerLocked(id, output string) (string, bool) {
	var owner string
	for other, r := range db.records {
		if other == id || !slices.Contains(r.Outputs, output) {
			continue
		}
		if owner == "" || other < owner {
			owner = other
		}
	}
	return owner, owner != ""
}

// RecordSuccess replaces the record of an asset after a successful import
// and returns the orphaned outputs of the previous import. It performs no
// file I/O; deleting orphans is the caller's job.
func (db *Database) RecordSuccess(a Asset, outputs []string) []string {
	outputs = util.SortedSet(outputs)

	db.mu.Lock()
	defer db.mu.Unlock()

	var orphans []string
	if prev, ok := db.records[a.ID]; ok {
		orphans = util.Difference(prev.Outputs, outputs)
	}
	db.records[a.ID] = &Record{
		AssetID:    a.ID,
		AssetType:  a.Type,
		Version:    a.Version,
		Inputs:     slices.Clone(a.Inputs),
		Outputs:    outputs,
		ImportedAt: db.clock.Now().UTC(),
	}
	return orphans
}

// Remove deletes the record of an asset. It reports whether one existed.
func (db *Database) Remove(id string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.records[id]
	delete(db.records, id)
	return ok
}

// Prune removes every record for which keep returns false and returns the
// removed records sorted by id.
func (db *Database) Prune(keep func(id string) bool) []Record {
	db.mu.Lock()
	defer db.mu.Unlock()

	var removed []Record
	for _, id := range util.SortedKeys(db.records) {
		if keep(id) {
			continue
		}
		removed = append(removed, db.records[id].clone())
		delete(db.records, id)
	}
	return removed
}

// Records returns copies of all records sorted by asset id.
func (db *Database) Records() []Record {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]Record, 0, len(db.records))
	for _, id := range util.SortedKeys(db.records) {
		out = append(out, db.records[id].clone())
	}
	return out
}

// Len returns the number of records.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.records)
}

// Store returns the backing store.
func (db *Database) Store() Store {
	return db.store
}
