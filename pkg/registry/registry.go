// Package registry implements the index registry of spec.md §4.8: it owns
// every vector index keyed by (table, column), manages the per-index
// lifecycle state machine (Unloaded → Loading → Ready ⇄ Evicted → Closed),
// enforces an advisory memory bound at admission and eviction time, and
// forwards writes to the underlying index. The LRU-by-last-search-time
// eviction policy and the map+list bookkeeping are grounded on the
// teacher's pkg/search/cache.go LRUCache.
package registry

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/flatindex"
	"github.com/annexsearch/vecann/pkg/hnsw"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Kind selects the index implementation a descriptor builds.
type Kind int

const (
	HNSW Kind = iota
	Flat
)

// State is a node in the index lifecycle state machine of spec.md §4.6/§4.8.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Evicted
	Closed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Evicted:
		return "evicted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Key identifies an index by its owning (table, column) pair. Computed with
// xxhash rather than a string pair so Enumerate and the LRU list can use a
// cheap, fixed-size map/list key.
type Key uint64

// KeyFor hashes a (table, column) pair into a registry Key.
func KeyFor(table, column string) Key {
	h := xxhash.New()
	h.WriteString(table)
	h.Write([]byte{0})
	h.WriteString(column)
	return Key(h.Sum64())
}

// Descriptor holds everything needed to construct or restore an index,
// mirroring the DDL WITH-options of spec.md §6.1.
type Descriptor struct {
	Table  string
	Column string
	Kind   Kind

	Metric         kernel.Metric
	M              int
	EfConstruction int
	EfSearch       int
	Quantization   codec.Quantization
	Seed           int64
	SeedSet        bool

	Dimension int // 0 until the first Add fixes it, for FLAT indexes
}

func (d Descriptor) hnswConfig() hnsw.Config {
	cfg := hnsw.Config{
		M:              d.M,
		EfConstruction: d.EfConstruction,
		EfSearch:       d.EfSearch,
		Metric:         d.Metric,
		Quantization:   d.Quantization,
	}
	if d.SeedSet {
		cfg = cfg.WithSeed(d.Seed)
	}
	return cfg
}

// SnapshotStore is the storage-engine collaborator contract of spec.md
// §6.3: typed, bounded block read/write for graph snapshots, keyed by
// (table, column). A directory-layout host implements this over
// {db}/{table}_{column}.hnsw files; a single-file host implements it over
// a named metadata block.
type SnapshotStore interface {
	Load(table, column string) ([]byte, error)
	Save(table, column string, data []byte) error
	Delete(table, column string) error
}

type Entry struct {
	key        Key
	descriptor Descriptor

	mu         sync.Mutex
	state      State
	hnswIndex  *hnsw.Index
	flatIndex  *flatindex.Index
	lastSearch time.Time

	lruElem *list.Element // valid only while state == Ready
}

func (e *Entry) memoryBytes() int64 {
	switch e.state {
	case Ready:
		if e.hnswIndex != nil {
			return e.hnswIndex.MemoryBytes()
		}
		if e.flatIndex != nil {
			return e.flatIndex.MemoryBytes()
		}
	}
	return 0
}

// Config holds the registry-wide options of spec.md §6.1's "Configuration
// options recognized by the registry".
type Config struct {
	MaxMemoryMB            uint32 // 0 = unlimited
	LazyIndexLoading       bool
	EvictOnMemoryPressure  bool
	MaxDimensions          uint32
	DefaultIndexKind       Kind
	DefaultMetric          kernel.Metric
	DefaultQuantization    codec.Quantization
}

// DefaultConfig mirrors spec.md §6.1's registry defaults.
func DefaultConfig() Config {
	return Config{
		MaxMemoryMB:      256,
		LazyIndexLoading: true,
		MaxDimensions:    4096,
		DefaultMetric:    kernel.Cosine,
	}
}

// Registry owns every index in the host, keyed by (table, column).
type Registry struct {
	cfg   Config
	store SnapshotStore

	mu      sync.RWMutex
	entries map[Key]*Entry
	lru     *list.List // front = most recently searched Ready Entry
}

// New creates an empty registry. store may be nil if the host never needs
// restore-from-snapshot (e.g. in-memory-only use); GetOrLoad then always
// fails for an Unloaded index with no prior in-process state.
func New(cfg Config, store SnapshotStore) *Registry {
	return &Registry{
		cfg:     cfg,
		store:   store,
		entries: make(map[Key]*Entry),
		lru:     list.New(),
	}
}

// CreateIndex constructs an empty index for (table, column). Rejects a
// duplicate descriptor and refuses admission if the estimated memory need
// would breach MaxMemoryMB (spec.md §4.8).
func (r *Registry) CreateIndex(desc Descriptor) (Key, error) {
	key := KeyFor(desc.Table, desc.Column)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return 0, vecerr.Wrapf("registry.CreateIndex", vecerr.ErrIndexAlreadyExists, "%s.%s", desc.Table, desc.Column)
	}

	if err := r.admitLocked(0); err != nil {
		return 0, err
	}

	e := &Entry{key: key, descriptor: desc, state: Unloaded}
	if err := r.materializeLocked(e); err != nil {
		return 0, err
	}
	e.state = Ready
	e.lastSearch = time.Now()
	e.lruElem = r.lru.PushFront(e)

	r.entries[key] = e
	return key, nil
}

// materializeLocked builds the in-memory index structure for e according
// to its descriptor's Kind. Caller holds r.mu.
func (r *Registry) materializeLocked(e *Entry) error {
	switch e.descriptor.Kind {
	case HNSW:
		idx, err := hnsw.New(e.descriptor.hnswConfig())
		if err != nil {
			return err
		}
		e.hnswIndex = idx
	case Flat:
		dim := e.descriptor.Dimension
		idx, err := flatindex.New(dim, e.descriptor.Metric, e.descriptor.Quantization)
		if err != nil {
			return err
		}
		e.flatIndex = idx
	default:
		return vecerr.Wrap("registry.materialize", vecerr.ErrBadConfig, "unknown index kind")
	}
	return nil
}

// admitLocked checks whether adding additionalBytes would breach
// MaxMemoryMB, evicting LRU victims first if EvictOnMemoryPressure is set.
// Caller holds r.mu.
func (r *Registry) admitLocked(additionalBytes int64) error {
	if r.cfg.MaxMemoryMB == 0 {
		return nil
	}
	budget := int64(r.cfg.MaxMemoryMB) * 1024 * 1024

	used := r.totalMemoryLocked()
	for used+additionalBytes > budget {
		victim := r.lruVictimLocked()
		if victim == nil || !r.cfg.EvictOnMemoryPressure {
			return vecerr.Wrap("registry.admit", vecerr.ErrMemoryBudgetExceeded, "")
		}
		r.evictLocked(victim)
		used = r.totalMemoryLocked()
	}
	return nil
}

func (r *Registry) totalMemoryLocked() int64 {
	var total int64
	for _, e := range r.entries {
		e.mu.Lock()
		total += e.memoryBytes()
		e.mu.Unlock()
	}
	return total
}

// lruVictimLocked returns the least-recently-searched Ready Entry eligible
// for eviction, or nil if none exists. Caller holds r.mu.
func (r *Registry) lruVictimLocked() *Entry {
	for back := r.lru.Back(); back != nil; back = back.Prev() {
		e := back.Value.(*Entry)
		e.mu.Lock()
		ready := e.state == Ready
		e.mu.Unlock()
		if ready {
			return e
		}
	}
	return nil
}

// GetOrLoad resolves key to a live index, loading it from the
// SnapshotStore on first access if it is Unloaded (spec.md §4.8).
func (r *Registry) GetOrLoad(key Key) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, vecerr.Wrap("registry.GetOrLoad", vecerr.ErrNoSuchIndex, "")
	}

	e.mu.Lock()
	switch e.state {
	case Ready:
		e.mu.Unlock()
		r.touch(e)
		return e, nil
	case Loading:
		e.mu.Unlock()
		return nil, vecerr.Wrap("registry.GetOrLoad", vecerr.ErrIndexAlreadyExists, "index is currently loading")
	case Closed:
		e.mu.Unlock()
		return nil, vecerr.Wrap("registry.GetOrLoad", vecerr.ErrNoSuchIndex, "index closed")
	}
	// Unloaded or Evicted: attempt restore.
	e.state = Loading
	e.mu.Unlock()

	restored, err := r.restore(e)

	e.mu.Lock()
	if err != nil {
		e.state = Unloaded
		e.mu.Unlock()
		return nil, vecerr.Wrap("registry.GetOrLoad", vecerr.ErrIndexCorrupt, err.Error())
	}
	e.hnswIndex = restored
	e.state = Ready
	e.lastSearch = time.Now()
	e.mu.Unlock()

	// r.mu is always acquired before any Entry's mu elsewhere in this
	// package (see totalMemoryLocked/evictLocked); lock it only after
	// releasing e.mu here to preserve that order.
	r.mu.Lock()
	e.lruElem = r.lru.PushFront(e)
	r.mu.Unlock()
	return e, nil
}

func (r *Registry) restore(e *Entry) (*hnsw.Index, error) {
	if r.store == nil {
		return nil, vecerr.Wrap("registry.restore", vecerr.ErrNoSuchIndex, "no snapshot store configured")
	}
	data, err := r.store.Load(e.descriptor.Table, e.descriptor.Column)
	if err != nil {
		return nil, err
	}
	return hnsw.Restore(data)
}

// Evict moves a Ready index to Evicted, releasing its in-memory state
// while keeping the descriptor. Allowed only when lazy loading is enabled
// (spec.md §4.8).
func (r *Registry) Evict(key Key) error {
	if !r.cfg.LazyIndexLoading {
		return vecerr.Wrap("registry.Evict", vecerr.ErrBadConfig, "lazy index loading disabled")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return vecerr.Wrap("registry.Evict", vecerr.ErrNoSuchIndex, "")
	}

	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st != Ready {
		return vecerr.Wrapf("registry.Evict", vecerr.ErrBadConfig, "index is %s, not ready", st)
	}
	return r.evictLocked(e)
}

// evictLocked performs the Ready → Evicted transition and snapshots the
// index first if a store is configured, so a later GetOrLoad can restore
// it. Caller holds r.mu.
func (r *Registry) evictLocked(e *Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.store != nil && e.hnswIndex != nil {
		data, err := e.hnswIndex.Snapshot()
		if err != nil {
			return vecerr.Wrap("registry.evict", vecerr.ErrIndexCorrupt, err.Error())
		}
		if err := r.store.Save(e.descriptor.Table, e.descriptor.Column, data); err != nil {
			return err
		}
	}

	e.hnswIndex = nil
	e.flatIndex = nil
	e.state = Evicted
	if e.lruElem != nil {
		r.lru.Remove(e.lruElem)
		e.lruElem = nil
	}
	return nil
}

// DropIndex permanently removes key's descriptor and in-memory state
// (spec.md §3: "destroyed by DROP INDEX or table drop"), unlike Evict,
// which only unloads a Ready index while keeping its descriptor around for
// a later GetOrLoad. Also deletes any persisted snapshot, if a store is
// configured, so a later CreateIndex on the same (table, column) starts
// clean rather than silently resurrecting old graph state.
func (r *Registry) DropIndex(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return vecerr.Wrap("registry.DropIndex", vecerr.ErrNoSuchIndex, "")
	}

	e.mu.Lock()
	e.hnswIndex = nil
	e.flatIndex = nil
	e.state = Closed
	table, column := e.descriptor.Table, e.descriptor.Column
	e.mu.Unlock()

	if e.lruElem != nil {
		r.lru.Remove(e.lruElem)
		e.lruElem = nil
	}
	delete(r.entries, key)

	if r.store != nil {
		if err := r.store.Delete(table, column); err != nil {
			return err
		}
	}
	return nil
}

// touch records key as most-recently-searched, for the LRU eviction policy.
func (r *Registry) touch(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.mu.Lock()
	e.lastSearch = time.Now()
	e.mu.Unlock()
	if e.lruElem != nil {
		r.lru.MoveToFront(e.lruElem)
	}
}

// OnWrite forwards an insert/update to the index owning key. Exclusive per
// index (hnsw.Index.Add/AddWithID already serialize writers internally).
func (r *Registry) OnWrite(key Key, id uint64, v []float32) error {
	e, err := r.GetOrLoad(key)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.hnswIndex != nil:
		return e.hnswIndex.AddWithID(id, v)
	case e.flatIndex != nil:
		return e.flatIndex.Add(id, v)
	default:
		return vecerr.Wrap("registry.OnWrite", vecerr.ErrNoSuchIndex, "")
	}
}

// OnDelete forwards a tombstone/removal to the index owning key.
func (r *Registry) OnDelete(key Key, id uint64) error {
	e, err := r.GetOrLoad(key)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.hnswIndex != nil:
		return e.hnswIndex.Remove(id)
	case e.flatIndex != nil:
		return e.flatIndex.Remove(id)
	default:
		return vecerr.Wrap("registry.OnDelete", vecerr.ErrNoSuchIndex, "")
	}
}

// Handle returns the live index for key for callers that need to run a
// query directly (e.g. the planner). It does not update the LRU policy;
// see MarkSearched. The caller must type-switch on Kind to pick the right query
// API, since hnsw.Index and flatindex.Index don't share a search shape.
func (e *Entry) Handle() (Kind, *hnsw.Index, *flatindex.Index) {
	if e.hnswIndex != nil {
		return HNSW, e.hnswIndex, nil
	}
	return Flat, nil, e.flatIndex
}

// MarkSearched records a query against e for LRU accounting, and must be
// called by planner callers after using the handle returned by Handle.
func (r *Registry) MarkSearched(e *Entry) {
	r.touch(e)
}

// EnumerateEntry is one row of Enumerate's output.
type EnumerateEntry struct {
	Key         Key
	Table       string
	Column      string
	MemoryBytes int64
	State       State
}

// Enumerate yields (key, MemoryBytes, state) for every registered index,
// for introspection (spec.md §4.8).
func (r *Registry) Enumerate() []EnumerateEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EnumerateEntry, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		out = append(out, EnumerateEntry{
			Key:         e.key,
			Table:       e.descriptor.Table,
			Column:      e.descriptor.Column,
			MemoryBytes: e.memoryBytes(),
			State:       e.state,
		})
		e.mu.Unlock()
	}
	return out
}

// Close transitions every Entry to Closed, releasing in-memory state.
// Intended for host shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.mu.Lock()
		e.hnswIndex = nil
		e.flatIndex = nil
		e.state = Closed
		e.mu.Unlock()
	}
	r.lru.Init()
}
