package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDatabase is an in-process Database used by unit tests and by the
// service when STORE_BACKEND=memory. Documents are kept in insertion order,
// which is also the iteration order queries observe.
type MemoryDatabase struct {
	mu          sync.RWMutex
	collections map[string]*memoryData
}

type memoryData struct {
	ids  []string
	docs map[string]Document
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{collections: make(map[string]*memoryData)}
}

func (m *MemoryDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryDatabase) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("create collection %s: %w", name, ErrConflict)
	}
	m.collections[name] = &memoryData{docs: make(map[string]Document)}
	return nil
}

func (m *MemoryDatabase) DropCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryDatabase) Collection(name string) Collection {
	return &memoryCollection{db: m, name: name}
}

type memoryCollection struct {
	db   *MemoryDatabase
	name string
}

func (c *memoryCollection) Name() string { return c.name }

// data must be called with the database lock held.
func (c *memoryCollection) data() (*memoryData, error) {
	d, ok := c.db.collections[c.name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.name, ErrCollectionNotFound)
	}
	return d, nil
}

func (c *memoryCollection) Insert(ctx context.Context, doc Document) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	id := DocumentID(doc)
	if id == "" {
		return Result{}, ErrMissingID
	}
	stored, err := cloneDocument(doc)
	if err != nil {
		return Result{}, fmt.Errorf("insert %s: %w", id, err)
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	data, err := c.data()
	if err != nil {
		return Result{}, err
	}
	if _, exists := data.docs[id]; exists {
		return Result{}, fmt.Errorf("insert %s: %w", id, ErrConflict)
	}
	etag := uuid.NewString()
	data.docs[id] = withField(stored, ETagField, etag)
	data.ids = append(data.ids, id)
	return Result{ETag: etag, Cost: 1}, nil
}

func (c *memoryCollection) Upsert(ctx context.Context, doc Document, opts UpsertOptions) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	id := DocumentID(doc)
	if id == "" {
		return Result{}, ErrMissingID
	}
	stored, err := cloneDocument(doc)
	if err != nil {
		return Result{}, fmt.Errorf("upsert %s: %w", id, err)
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	data, err := c.data()
	if err != nil {
		return Result{}, err
	}
	existing, exists := data.docs[id]
	if opts.IfMatch != "" && (!exists || DocumentETag(existing) != opts.IfMatch) {
		return Result{}, fmt.Errorf("upsert %s: %w", id, ErrPreconditionFailed)
	}
	etag := uuid.NewString()
	data.docs[id] = withField(stored, ETagField, etag)
	if !exists {
		data.ids = append(data.ids, id)
	}
	return Result{ETag: etag, Cost: 1}, nil
}

func (c *memoryCollection) Query(ctx context.Context, p Pipeline, opts QueryOptions) (Pager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.db.mu.RLock()
	data, err := c.data()
	if err != nil {
		c.db.mu.RUnlock()
		return nil, err
	}
	snapshot := make([]Document, 0, len(data.ids))
	for _, id := range data.ids {
		snapshot = append(snapshot, data.docs[id])
	}
	c.db.mu.RUnlock()

	results, err := evaluate(snapshot, p)
	if err != nil {
		return nil, err
	}
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &memoryPager{results: results, size: size}, nil
}

// memoryPager hands out evaluated results in fixed-size pages. At least one
// page is always produced so an empty result still costs a round trip.
type memoryPager struct {
	results []Document
	size    int
	served  bool
}

func (p *memoryPager) HasMore() bool { return !p.served || len(p.results) > 0 }

func (p *memoryPager) Next(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if !p.HasMore() {
		return Page{}, nil
	}
	p.served = true
	n := p.size
	if n > len(p.results) {
		n = len(p.results)
	}
	page := Page{Cost: 1, Documents: make([]Document, 0, n)}
	for _, d := range p.results[:n] {
		cp, err := cloneDocument(d)
		if err != nil {
			return Page{}, err
		}
		page.Documents = append(page.Documents, cp)
	}
	p.results = p.results[n:]
	return page, nil
}

func (p *memoryPager) Close(ctx context.Context) error {
	p.results = nil
	p.served = true
	return nil
}
