package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type docKey struct {
	collection string
	id         string
}

// Memory is an in-process Store. Subscribers are called synchronously by
// the writing goroutine after the store lock is released.
type Memory struct {
	mu      sync.Mutex
	docs    map[docKey]*Document
	subs    map[docKey]map[int]SnapshotFunc
	nextSub int
	version int64
	closed  bool
}

// Ensure Memory satisfies the Store interface
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[docKey]*Document),
		subs: make(map[docKey]map[int]SnapshotFunc),
	}
}

// pending is a snapshot queued for delivery once the lock is released
type pending struct {
	doc *Document
	fns []SnapshotFunc
}

func (m *Memory) deliver(queue []pending) {
	for _, p := range queue {
		for _, fn := range p.fns {
			fn(cloneDocument(p.doc))
		}
	}
}

// commitLocked stores doc as a new version and returns what subscribers must receive
func (m *Memory) commitLocked(key docKey, doc *Document) pending {
	m.version++
	doc.Version = m.version
	m.docs[key] = doc

	fns := make([]SnapshotFunc, 0, len(m.subs[key]))
	for _, fn := range m.subs[key] {
		fns = append(fns, fn)
	}
	return pending{doc: cloneDocument(doc), fns: fns}
}

// Get returns a copy of a document
func (m *Memory) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	doc, ok := m.docs[docKey{collection, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Create stores a new document under a generated id
func (m *Memory) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.New().String()
	if err := m.Batch(ctx, BatchOp{Collection: collection, ID: id, Create: true, Data: data}); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces a document
func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return m.Batch(ctx, BatchOp{Collection: collection, ID: id, Create: true, Data: data})
}

// Update applies field updates to an existing document
func (m *Memory) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return m.Batch(ctx, BatchOp{Collection: collection, ID: id, Updates: updates})
}

// Batch applies every op or none
func (m *Memory) Batch(ctx context.Context, ops ...BatchOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	// Stage every write on copies first
	staged := make(map[docKey]*Document, len(ops))
	order := make([]docKey, 0, len(ops))
	now := time.Now().UTC()
	for _, op := range ops {
		if op.ID == "" {
			op.ID = uuid.New().String()
		}
		key := docKey{op.Collection, op.ID}

		current, seen := staged[key]
		if !seen {
			if existing, ok := m.docs[key]; ok {
				current = cloneDocument(existing)
			}
			order = append(order, key)
		}

		if op.Create {
			data, err := normalizeData(op.Data)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			created := now
			if current != nil {
				created = current.CreatedAt
			}
			current = &Document{Collection: op.Collection, ID: op.ID, CreatedAt: created, Data: data}
		} else {
			if current == nil {
				m.mu.Unlock()
				return ErrNotFound
			}
			if err := applyUpdates(current.Data, op.Updates); err != nil {
				m.mu.Unlock()
				return err
			}
		}
		staged[key] = current
	}

	queue := make([]pending, 0, len(order))
	for _, key := range order {
		queue = append(queue, m.commitLocked(key, staged[key]))
	}
	m.mu.Unlock()

	m.deliver(queue)
	return nil
}

// Query returns matching documents of a collection
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	docs := make([]*Document, 0)
	for key, doc := range m.docs {
		if key.collection == collection {
			docs = append(docs, cloneDocument(doc))
		}
	}
	m.mu.Unlock()

	return runQuery(docs, q)
}

// Subscribe registers fn for every version of a document and delivers the current one
func (m *Memory) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	key := docKey{collection, id}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]SnapshotFunc)
	}
	subID := m.nextSub
	m.nextSub++
	m.subs[key][subID] = fn

	var initial *Document
	if doc, ok := m.docs[key]; ok {
		initial = cloneDocument(doc)
	}
	m.mu.Unlock()

	if initial != nil {
		fn(initial)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[key], subID)
			if len(m.subs[key]) == 0 {
				delete(m.subs, key)
			}
			m.mu.Unlock()
		})
	}
	return cancel, nil
}

// Close drops every subscription
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[docKey]map[int]SnapshotFunc)
	return nil
}
