// Package store provides the generic persistent collection underlying every
// clinicdesk entity. A Collection keeps one in-memory snapshot, persists it
// as a single JSON payload through a storage.Medium, notifies in-process
// subscribers after each successful mutation, and exchanges snapshots with
// other instances over a ChangeBus.
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
)

// Collection is a persistent, observable set of records of one type. All
// methods are safe for concurrent use. Records returned by read methods are
// clones; mutating them does not affect the collection.
type Collection[T Record] struct {
	name   string
	medium storage.Medium
	bus    ChangeBus
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
	origin string
	seed   []T

	mu     sync.Mutex
	loaded bool
	cache  []T
	subSeq int
	subs   map[int]func([]T)

	unsubBus func()
}

// Option configures a Collection at construction time.
type Option[T Record] func(*Collection[T])

// WithSeed supplies records persisted and served on first access when the
// medium has no payload for the collection yet.
func WithSeed[T Record](seed []T) Option[T] {
	return func(c *Collection[T]) { c.seed = seed }
}

// WithBus attaches a ChangeBus. The collection publishes a snapshot after
// every successful mutation and adopts snapshots published by other origins.
func WithBus[T Record](bus ChangeBus) Option[T] {
	return func(c *Collection[T]) { c.bus = bus }
}

// WithLogger sets the collection logger. Defaults to a no-op logger.
func WithLogger[T Record](logger zerolog.Logger) Option[T] {
	return func(c *Collection[T]) { c.logger = logger }
}

// WithClock overrides the timestamp source, for tests.
func WithClock[T Record](now func() time.Time) Option[T] {
	return func(c *Collection[T]) { c.now = now }
}

// WithIDFunc overrides the id generator, for tests.
func WithIDFunc[T Record](newID func() string) Option[T] {
	return func(c *Collection[T]) { c.newID = newID }
}

// NewCollection creates a collection persisted under the given key. Nothing
// is read from the medium until the first operation.
func NewCollection[T Record](name string, medium storage.Medium, opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		name:   name,
		medium: medium,
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
		origin: uuid.NewString(),
		subs:   make(map[int]func([]T)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus != nil {
		c.unsubBus = c.bus.Subscribe(name, c.handleRemote)
	}
	return c
}

// Name returns the collection key.
func (c *Collection[T]) Name() string { return c.name }

// Close detaches the collection from its bus. The medium is shared and is
// closed by its owner.
func (c *Collection[T]) Close() {
	if c.unsubBus != nil {
		c.unsubBus()
		c.unsubBus = nil
	}
}

// Load forces the initial read from the medium and returns the records.
func (c *Collection[T]) Load() []T {
	return c.List()
}

// List returns a clone of every record in insertion order.
func (c *Collection[T]) List() []T {
	c.mu.Lock()
	c.loadLocked()
	out := c.cloneAll(c.cache)
	c.mu.Unlock()
	return out
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	for _, rec := range c.cache {
		if rec.RecordID() == id {
			return c.clone(rec), nil
		}
	}
	var zero T
	return zero, apperror.NotFound(c.name, id)
}

// Find returns clones of every record matching the predicate, preserving
// collection order.
func (c *Collection[T]) Find(pred func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	var out []T
	for _, rec := range c.cache {
		if pred(c.clone(rec)) {
			out = append(out, c.clone(rec))
		}
	}
	return out
}

// FindOne returns the first record matching the predicate.
func (c *Collection[T]) FindOne(pred func(T) bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	for _, rec := range c.cache {
		if pred(c.clone(rec)) {
			return c.clone(rec), true
		}
	}
	var zero T
	return zero, false
}

// Count returns the number of records matching the predicate, or the total
// size when pred is nil.
func (c *Collection[T]) Count(pred func(T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	if pred == nil {
		return len(c.cache)
	}
	n := 0
	for _, rec := range c.cache {
		if pred(c.clone(rec)) {
			n++
		}
	}
	return n
}

// Create appends a record. A missing id is generated; a supplied id must not
// collide with an existing record. CreatedAt is preserved when the caller
// supplies one, otherwise stamped now.
func (c *Collection[T]) Create(rec T) (T, error) {
	c.mu.Lock()
	c.loadLocked()

	rec = c.clone(rec)
	if rec.RecordID() == "" {
		rec.SetRecordID(c.newID())
	} else {
		for _, existing := range c.cache {
			if existing.RecordID() == rec.RecordID() {
				c.mu.Unlock()
				var zero T
				return zero, apperror.Validation("record id already exists", map[string]string{
					"collection": c.name,
					"id":         rec.RecordID(),
				})
			}
		}
	}
	now := c.now()
	if rec.Created().IsZero() {
		rec.StampCreated(now)
	}
	rec.StampUpdated(now)

	next := append(c.cloneAll(c.cache), rec)
	emit, err := c.commitLocked(next, "create")
	c.mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	emit()
	return c.clone(rec), nil
}

// Update applies the mutation to the record with the given id. It returns
// ok=false with a nil error when the record does not exist. The id cannot be
// changed by apply; UpdatedAt is stamped after apply runs.
func (c *Collection[T]) Update(id string, apply func(T)) (T, bool, error) {
	c.mu.Lock()
	c.loadLocked()

	idx := -1
	for i, rec := range c.cache {
		if rec.RecordID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		var zero T
		return zero, false, nil
	}

	next := c.cloneAll(c.cache)
	rec := next[idx]
	created := rec.Created()
	apply(rec)
	rec.SetRecordID(id)
	rec.StampCreated(created)
	rec.StampUpdated(c.now())

	emit, err := c.commitLocked(next, "update")
	c.mu.Unlock()
	if err != nil {
		var zero T
		return zero, false, err
	}
	emit()
	return c.clone(rec), true, nil
}

// Remove deletes the record with the given id. Removing an absent id is a
// no-op and reports removed=false.
func (c *Collection[T]) Remove(id string) (bool, error) {
	c.mu.Lock()
	c.loadLocked()

	idx := -1
	for i, rec := range c.cache {
		if rec.RecordID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false, nil
	}

	next := c.cloneAll(c.cache)
	next = append(next[:idx], next[idx+1:]...)
	emit, err := c.commitLocked(next, "remove")
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	emit()
	return true, nil
}

// ReplaceAll swaps the whole collection for the given records. A nil slice
// is rejected; pass an empty slice to clear the collection.
func (c *Collection[T]) ReplaceAll(recs []T) error {
	if recs == nil {
		return apperror.Validation("records must be a sequence", map[string]string{"collection": c.name})
	}

	c.mu.Lock()
	c.loadLocked()
	emit, err := c.commitLocked(c.cloneAll(recs), "replace")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	emit()
	return nil
}

// ImportMerge upserts a batch of records. Records whose id matches an
// existing one are merged field-by-field with the incoming value winning;
// records with new or missing ids are appended. The whole batch produces a
// single persist and a single notification. Returns the number of records
// processed.
func (c *Collection[T]) ImportMerge(incoming []T) (int, error) {
	c.mu.Lock()
	c.loadLocked()

	next := c.cloneAll(c.cache)
	index := make(map[string]int, len(next))
	for i, rec := range next {
		index[rec.RecordID()] = i
	}

	now := c.now()
	for _, in := range incoming {
		in = c.clone(in)
		id := in.RecordID()
		if id == "" {
			in.SetRecordID(c.newID())
			if in.Created().IsZero() {
				in.StampCreated(now)
			}
			in.StampUpdated(now)
			index[in.RecordID()] = len(next)
			next = append(next, in)
			continue
		}
		if i, ok := index[id]; ok {
			merged, err := mergeRecord(next[i], in)
			if err != nil {
				c.mu.Unlock()
				return 0, apperror.Validation("record could not be merged", map[string]string{
					"collection": c.name,
					"id":         id,
				})
			}
			merged.SetRecordID(id)
			if merged.Created().IsZero() {
				merged.StampCreated(next[i].Created())
			}
			merged.StampUpdated(now)
			next[i] = merged
			continue
		}
		if in.Created().IsZero() {
			in.StampCreated(now)
		}
		in.StampUpdated(now)
		index[id] = len(next)
		next = append(next, in)
	}

	emit, err := c.commitLocked(next, "import")
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	emit()
	return len(incoming), nil
}

// ExportSnapshot returns the collection as a JSON array, preserving order.
func (c *Collection[T]) ExportSnapshot() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	payload, err := marshalRecords(c.cache)
	if err != nil {
		return nil, apperror.Persistence(err, c.name)
	}
	return payload, nil
}

// Subscribe registers a listener invoked with a full snapshot after every
// change, local or remote. The returned function removes the listener.
func (c *Collection[T]) Subscribe(fn func([]T)) func() {
	c.mu.Lock()
	id := c.subSeq
	c.subSeq++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// commitLocked persists the candidate state and swaps the cache only on
// success. It returns an emit function to be called after the mutex is
// released, so subscribers may re-enter the collection.
func (c *Collection[T]) commitLocked(next []T, op string) (func(), error) {
	payload, err := marshalRecords(next)
	if err != nil {
		return nil, apperror.Persistence(err, c.name)
	}
	if err := c.medium.Put(c.name, payload); err != nil {
		persistFailuresTotal.WithLabelValues(c.name).Inc()
		c.logger.Error().Err(err).Str("collection", c.name).Msg("persist failed, state unchanged")
		return nil, apperror.Persistence(err, c.name)
	}
	c.cache = next
	mutationsTotal.WithLabelValues(c.name, op).Inc()
	emit := c.emitterLocked()
	bus := c.bus
	change := Change{Origin: c.origin, Collection: c.name, Snapshot: payload}
	return func() {
		emit()
		if bus != nil {
			bus.Publish(change)
		}
	}, nil
}

// emitterLocked snapshots the subscriber list and state under the lock and
// returns a function that performs the notifications.
func (c *Collection[T]) emitterLocked() func() {
	if len(c.subs) == 0 {
		return func() {}
	}
	fns := make([]func([]T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	snapshot := c.cloneAll(c.cache)
	return func() {
		for _, fn := range fns {
			fn(c.cloneAll(snapshot))
		}
	}
}

// handleRemote adopts a snapshot published by another instance. Remote
// snapshots are never re-persisted or re-published.
func (c *Collection[T]) handleRemote(change Change) {
	if change.Origin == c.origin {
		return
	}
	var recs []T
	if err := json.Unmarshal(change.Snapshot, &recs); err != nil {
		c.logger.Warn().Err(err).Str("collection", c.name).Msg("ignoring malformed remote snapshot")
		return
	}
	c.mu.Lock()
	c.loaded = true
	c.cache = recs
	emit := c.emitterLocked()
	c.mu.Unlock()
	emit()
}

// loadLocked reads the persisted payload on first access. A malformed
// payload is recoverable: the collection starts empty and the condition is
// logged.
func (c *Collection[T]) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true

	payload, ok, err := c.medium.Get(c.name)
	if err != nil {
		c.logger.Error().Err(err).Str("collection", c.name).Msg("load failed, starting empty")
		return
	}
	if !ok {
		c.seedLocked()
		return
	}
	var recs []T
	if err := json.Unmarshal(payload, &recs); err != nil {
		c.logger.Warn().Err(err).Str("collection", c.name).Msg("malformed payload, starting empty")
		return
	}
	c.cache = recs
}

func (c *Collection[T]) seedLocked() {
	if len(c.seed) == 0 {
		return
	}
	now := c.now()
	recs := c.cloneAll(c.seed)
	for _, rec := range recs {
		if rec.RecordID() == "" {
			rec.SetRecordID(c.newID())
		}
		if rec.Created().IsZero() {
			rec.StampCreated(now)
		}
		rec.StampUpdated(now)
	}
	payload, err := marshalRecords(recs)
	if err != nil {
		c.logger.Error().Err(err).Str("collection", c.name).Msg("seed not serializable")
		return
	}
	if err := c.medium.Put(c.name, payload); err != nil {
		persistFailuresTotal.WithLabelValues(c.name).Inc()
		c.logger.Error().Err(err).Str("collection", c.name).Msg("seed persist failed, starting empty")
		return
	}
	c.cache = recs
}

func (c *Collection[T]) clone(rec T) T {
	out, err := cloneRecord(rec)
	if err != nil {
		return rec
	}
	return out
}

func (c *Collection[T]) cloneAll(recs []T) []T {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, c.clone(rec))
	}
	return out
}

func cloneRecord[T any](rec T) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// mergeRecord overlays the incoming record on a clone of the existing one.
// Fields absent from the incoming JSON keep their existing values.
func mergeRecord[T Record](existing, incoming T) (T, error) {
	merged, err := cloneRecord(existing)
	if err != nil {
		return merged, err
	}
	raw, err := json.Marshal(incoming)
	if err != nil {
		return merged, err
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return merged, err
	}
	return merged, nil
}

// marshalRecords serializes a nil slice as an empty JSON array so the
// persisted payload is always a sequence.
func marshalRecords[T any](recs []T) ([]byte, error) {
	if recs == nil {
		recs = []T{}
	}
	return json.Marshal(recs)
}
