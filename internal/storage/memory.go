package storage

import (
	"sync"
	"time"
)

// Compile-time proof that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// collection is one platform's record arena plus its two auxiliary indices.
// Records are keyed by a monotonic insertion id; byDevice and byIP are kept
// consistent with the arena under the owning store's mutex.
type collection struct {
	recs     map[uint64]Record
	byDevice map[string]uint64              // device identifier → record id
	byIP     map[string]map[uint64]struct{} // ip → set of record ids
}

func newCollection() *collection {
	return &collection{
		recs:     make(map[uint64]Record),
		byDevice: make(map[string]uint64),
		byIP:     make(map[string]map[uint64]struct{}),
	}
}

func (c *collection) insert(id uint64, rec Record) {
	if oldID, ok := c.byDevice[rec.DeviceID]; ok {
		c.remove(oldID)
	}
	c.recs[id] = rec
	c.byDevice[rec.DeviceID] = id
	set, ok := c.byIP[rec.IP]
	if !ok {
		set = make(map[uint64]struct{})
		c.byIP[rec.IP] = set
	}
	set[id] = struct{}{}
}

func (c *collection) remove(id uint64) {
	rec, ok := c.recs[id]
	if !ok {
		return
	}
	delete(c.recs, id)
	if c.byDevice[rec.DeviceID] == id {
		delete(c.byDevice, rec.DeviceID)
	}
	if set, ok := c.byIP[rec.IP]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(c.byIP, rec.IP)
		}
	}
}

// MemStore is the in-memory implementation of Store. All mutation happens
// under a single mutex, which also gives the per-collection linearizability
// the retrieval contract requires.
type MemStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	nextID  uint64
	android *collection
	ios     *collection
	now     func() time.Time // overridable in tests
}

// NewMemStore creates a fresh in-memory store whose records expire after ttl.
func NewMemStore(ttl time.Duration) *MemStore {
	return &MemStore{
		ttl:     ttl,
		android: newCollection(),
		ios:     newCollection(),
		now:     time.Now,
	}
}

func (m *MemStore) collection(p Platform) *collection {
	if p == IOS {
		return m.ios
	}
	return m.android
}

func (m *MemStore) Put(p Platform, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.collection(p).insert(m.nextID, rec)
	return nil
}

func (m *MemStore) Take(p Platform, ip string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(p)
	now := m.now()

	var (
		bestID uint64
		best   *Record
	)
	for id := range c.byIP[ip] {
		rec := c.recs[id]
		if !eligible(rec.CreatedAt, m.ttl, now) {
			continue
		}
		// Newest CreatedAt wins; ties go to the higher insertion id.
		if best == nil || rec.CreatedAt > best.CreatedAt ||
			(rec.CreatedAt == best.CreatedAt && id > bestID) {
			r := rec
			best, bestID = &r, id
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c.remove(bestID)
	return best, nil
}

func (m *MemStore) Prune() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruned := 0
	for _, c := range []*collection{m.android, m.ios} {
		for id, rec := range c.recs {
			if !eligible(rec.CreatedAt, m.ttl, now) {
				c.remove(id)
				pruned++
			}
		}
	}
	return pruned, nil
}

func (m *MemStore) Count(p Platform) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collection(p).recs), nil
}

// DBPath returns "" since the in-memory store has no backing file.
func (m *MemStore) DBPath() string { return "" }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }
