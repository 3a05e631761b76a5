// Package store owns the recipe collection and keeps it in sync with a blob
// store.
//
// # State and persistence
//
// The whole collection is persisted as one JSON array under a single key.
// Every mutation derives the next collection from the current in-memory one,
// makes it the new state synchronously, and queues exactly one write of the
// full collection. A single background writer applies queued writes in order,
// so the last durable write always matches the last in-memory state.
//
// # Failures
//
// A failed write is logged, passed to [Options.OnPersistError] and returned
// from [Result.Wait]. It never rolls back memory: memory and disk stay
// diverged until a later write succeeds. There are no retries.
//
// # Ordering
//
// Mutations and loads are serialized by one mutex, so two back-to-back
// mutations never start from the same snapshot. [Store.Load] first waits for
// queued writes, so it reads what memory last described. Reads never wait on
// blob I/O.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"sync"

	"github.com/maruel/ksid"
	"github.com/maruel/recipebook/internal/blobstore"
	"github.com/maruel/recipebook/internal/journal"
	"github.com/maruel/recipebook/internal/recipe"
)

// DefaultKey is the blob key the collection is stored under.
const DefaultKey = "@DiarioDeReceitas:Receitas"

// quarantineSuffix is appended to the key, with a content hash, to preserve an
// undecodable blob.
const quarantineSuffix = ".corrupt-"

// Outcome tells whether a mutation matched anything.
type Outcome int

const (
	// Mutated means the collection content changed.
	Mutated Outcome = iota + 1
	// NoMatch means no record had the requested id; the content is unchanged.
	// It is not an error.
	NoMatch
)

func (o Outcome) String() string {
	switch o {
	case Mutated:
		return "mutated"
	case NoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// Result describes a mutation. The in-memory part is already applied when
// the Result is returned; Wait reports the durable part.
type Result struct {
	Outcome Outcome
	// Recipe is a copy of the created or updated record. Nil for Delete,
	// ClearAll and NoMatch.
	Recipe *recipe.Recipe

	job *job
}

// Wait blocks until the mutation's write finished and returns its
// *PersistenceError, or nil on success.
func (r *Result) Wait(ctx context.Context) error {
	return r.job.wait(ctx)
}

// State is a point-in-time copy of the store's observable state.
type State struct {
	Recipes []*recipe.Recipe
	// Loading is true until the first Load completes.
	Loading bool
}

// Recorder receives one entry per load and mutation.
type Recorder interface {
	Record(journal.Entry) error
}

// Options configures a Store. The zero value is valid.
type Options struct {
	// Key overrides DefaultKey.
	Key string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Journal, if set, records every operation.
	Journal Recorder
	// OnPersistError is called with every *PersistenceError from a queued
	// write. It runs on the writer goroutine and must not call the Store.
	OnPersistError func(error)
}

// Store is the recipe store. Create it with New.
type Store struct {
	blobs          blobstore.Store
	key            string
	log            *slog.Logger
	journal        Recorder
	onPersistError func(error)
	w              *writer

	// opMu serializes loads and mutations. Held for a whole Load.
	opMu   sync.Mutex
	loaded bool

	// mu guards the fields below. Writers also hold opMu.
	mu      sync.RWMutex
	recipes []*recipe.Recipe
	loading bool
	subs    map[int]chan State
	nextSub int
}

// New creates a Store over blobs. The store starts empty and loading; call
// Load before handing it to callers that mutate it.
func New(blobs blobstore.Store, opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	s := &Store{
		blobs:          blobs,
		key:            opts.Key,
		log:            opts.Logger,
		journal:        opts.Journal,
		onPersistError: opts.OnPersistError,
		recipes:        []*recipe.Recipe{},
		loading:        true,
		subs:           make(map[int]chan State),
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.w = newWriter(s.apply)
	return s
}

// Key returns the blob key the collection is stored under.
func (s *Store) Key() string {
	return s.key
}

// Close waits for queued writes and stops the writer. Mutations issued after
// Close report ErrClosed from Wait.
func (s *Store) Close(ctx context.Context) error {
	return s.w.close(ctx)
}

// Flush waits until every write queued so far has finished.
func (s *Store) Flush(ctx context.Context) error {
	return s.w.flush(ctx)
}

// Load replaces the in-memory collection with the persisted one.
//
// An absent key loads as an empty collection. On failure the first load
// leaves the collection empty and later loads keep the current one; either
// way Loading becomes false. A blob that fails to decode is copied to a
// quarantine key before anything can overwrite it, and *CorruptStateError is
// returned. A failed read returns *PersistenceError.
func (s *Store) Load(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	next, err := s.read(ctx)
	if next == nil && !s.loaded {
		next = []*recipe.Recipe{}
	}
	s.loaded = true

	s.mu.Lock()
	if next != nil {
		s.recipes = next
	}
	s.loading = false
	n := len(s.recipes)
	s.notifyLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.ErrorContext(ctx, "store: load failed", "key", s.key, "err", err)
	} else {
		s.log.InfoContext(ctx, "store: loaded", "key", s.key, "count", n)
	}
	s.record(ctx, journal.Entry{Op: journal.OpLoad, Count: n}, err)
	return err
}

// read returns the persisted collection, or nil and an error.
func (s *Store) read(ctx context.Context) ([]*recipe.Recipe, error) {
	// Writes queued before this load must land first.
	if err := s.w.flush(ctx); err != nil {
		return nil, err
	}
	raw, ok, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		return nil, &PersistenceError{Op: "get", Key: s.key, Err: err}
	}
	if !ok {
		return []*recipe.Recipe{}, nil
	}
	recipes, err := Decode(raw)
	if err != nil {
		cerr := &CorruptStateError{Key: s.key, QuarantineKey: s.quarantineKey(raw), Err: err}
		if qerr := s.quarantine(ctx, cerr.QuarantineKey, raw); qerr != nil {
			s.log.ErrorContext(ctx, "store: failed to quarantine corrupt blob", "key", s.key, "err", qerr)
			cerr.QuarantineKey = ""
		}
		return nil, cerr
	}
	return recipes, nil
}

// quarantineKey derives the quarantine key from the blob content, so the same
// corrupt blob always maps to the same key.
func (s *Store) quarantineKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return s.key + quarantineSuffix + hex.EncodeToString(sum[:8])
}

// quarantine copies raw to qkey unless it already holds it.
func (s *Store) quarantine(ctx context.Context, qkey, raw string) error {
	if v, ok, err := s.blobs.Get(ctx, qkey); err == nil && ok && v == raw {
		return nil
	}
	return s.blobs.Set(ctx, qkey, raw)
}

// Create appends a new recipe with a fresh id and queues a write.
func (s *Store) Create(ctx context.Context, in recipe.Input) *Result {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cur := s.current()
	r := recipe.NewRecipe(newID(cur), in)
	next := make([]*recipe.Recipe, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, r)
	res := &Result{Outcome: Mutated, Recipe: r.Clone()}
	res.job = s.commit(ctx, journal.OpCreate, r.ID, Mutated, next)
	return res
}

// Update merges patch into every record with id and queues a write. An
// unknown id leaves the content unchanged, returns NoMatch and still queues a
// write of the unchanged collection.
func (s *Store) Update(ctx context.Context, id string, patch recipe.Patch) *Result {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	next := slices.Clone(s.current())
	res := &Result{Outcome: NoMatch}
	for i, r := range next {
		if r.ID != id {
			continue
		}
		next[i] = patch.Apply(r)
		if res.Recipe == nil {
			res.Outcome = Mutated
			res.Recipe = next[i].Clone()
		}
	}
	res.job = s.commit(ctx, journal.OpUpdate, id, res.Outcome, next)
	return res
}

// Delete removes every record with id and queues a write. An unknown id
// returns NoMatch and still queues a write of the unchanged collection.
func (s *Store) Delete(ctx context.Context, id string) *Result {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cur := s.current()
	next := slices.DeleteFunc(slices.Clone(cur), func(r *recipe.Recipe) bool { return r.ID == id })
	res := &Result{Outcome: NoMatch}
	if len(next) != len(cur) {
		res.Outcome = Mutated
	}
	res.job = s.commit(ctx, journal.OpDelete, id, res.Outcome, next)
	return res
}

// ClearAll empties the collection and queues removal of the key itself,
// rather than a write of an empty collection.
func (s *Store) ClearAll(ctx context.Context) *Result {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setState([]*recipe.Recipe{})
	j := newJob(context.WithoutCancel(ctx), opRemove, "")
	s.enqueue(j)
	s.log.InfoContext(ctx, "store: cleared", "key", s.key)
	s.record(ctx, journal.Entry{Op: journal.OpClear, Outcome: Mutated.String()}, nil)
	return &Result{Outcome: Mutated, job: j}
}

// commit makes next the current state and queues its write. opMu must be held.
func (s *Store) commit(ctx context.Context, op journal.Op, id string, outcome Outcome, next []*recipe.Recipe) *job {
	s.setState(next)
	var j *job
	if raw, err := Encode(next); err != nil {
		j = newJob(ctx, opSet, "")
		j.finish(s.report(ctx, opSet, &PersistenceError{Op: "encode", Key: s.key, Err: err}))
	} else {
		j = newJob(context.WithoutCancel(ctx), opSet, raw)
		s.enqueue(j)
	}
	s.log.DebugContext(ctx, "store: "+string(op), "id", id, "outcome", outcome.String(), "count", len(next))
	s.record(ctx, journal.Entry{Op: op, ID: id, Outcome: outcome.String(), Count: len(next)}, nil)
	return j
}

func (s *Store) enqueue(j *job) {
	if !s.w.enqueue(j) {
		j.finish(s.report(j.ctx, j.op, &PersistenceError{Op: j.op.String(), Key: s.key, Err: ErrClosed}))
	}
}

// apply runs on the writer goroutine.
func (s *Store) apply(j *job) error {
	var err error
	switch j.op {
	case opSet:
		err = s.blobs.Set(j.ctx, s.key, j.value)
	case opRemove:
		err = s.blobs.Remove(j.ctx, s.key)
	}
	if err == nil {
		return nil
	}
	return s.report(j.ctx, j.op, &PersistenceError{Op: j.op.String(), Key: s.key, Err: err})
}

func (s *Store) report(ctx context.Context, op writeOp, err *PersistenceError) error {
	s.log.ErrorContext(ctx, "store: persist failed", "op", op.String(), "key", s.key, "err", err.Err)
	if s.onPersistError != nil {
		s.onPersistError(err)
	}
	return err
}

func (s *Store) record(ctx context.Context, e journal.Entry, err error) {
	if s.journal == nil {
		return
	}
	if err != nil {
		e.Err = err.Error()
	}
	if jerr := s.journal.Record(e); jerr != nil {
		s.log.WarnContext(ctx, "store: failed to record journal entry", "op", e.Op, "err", jerr)
	}
}

// current returns the live collection slice. opMu must be held; the slice
// must not be modified.
func (s *Store) current() []*recipe.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recipes
}

func (s *Store) setState(next []*recipe.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes = next
	s.notifyLocked()
}

// newID returns an id not used in cur.
func newID(cur []*recipe.Recipe) string {
	for {
		id := ksid.NewID().String()
		if !slices.ContainsFunc(cur, func(r *recipe.Recipe) bool { return r.ID == id }) {
			return id
		}
	}
}

// Recipes returns copies of all records in collection order.
func (s *Store) Recipes() []*recipe.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.recipes)
}

// Get returns a copy of the first record with id.
func (s *Store) Get(id string) (*recipe.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.recipes {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recipes)
}

// Loading reports whether the first Load is still pending.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Subscribe returns a channel that receives the state after every load and
// mutation, starting with the current one. A slow reader only sees the most
// recent state. Call the returned function to unsubscribe.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.stateLocked()
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) stateLocked() State {
	return State{Recipes: cloneAll(s.recipes), Loading: s.loading}
}

// notifyLocked replaces any undelivered state with the current one.
func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.stateLocked()
	}
}

func cloneAll(recipes []*recipe.Recipe) []*recipe.Recipe {
	out := make([]*recipe.Recipe, len(recipes))
	for i, r := range recipes {
		out[i] = r.Clone()
	}
	return out
}
