package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultPollInterval is how often subscriptions check for changes
const DefaultPollInterval = 500 * time.Millisecond

// SQLite is a Store backed by a SQLite database. Document bodies are stored
// as serialized google.protobuf.Struct messages. Subscriptions poll the
// version column, so processes sharing one database file see each other's writes.
type SQLite struct {
	db           *sqlx.DB
	pollInterval time.Duration
	Logger       *zap.Logger

	mu      sync.Mutex
	subs    map[int]*sqliteSub
	nextSub int
	closed  bool
}

// Ensure SQLite satisfies the Store interface
var _ Store = (*SQLite)(nil)

type sqliteSub struct {
	collection string
	id         string
	fn         SnapshotFunc

	mu       sync.Mutex
	version  int64
	stopChan chan struct{}
	stopOnce sync.Once
}

type documentRow struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	Version    int64  `db:"version"`
	CreatedAt  int64  `db:"created_at"`
	Body       []byte `db:"body"`
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	version INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS store_meta (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

INSERT OR IGNORE INTO store_meta (key, value) VALUES ('version', 0);
`

// OpenSQLite opens or creates a document database at dsn
func OpenSQLite(dsn string, pollInterval time.Duration) (*SQLite, error) {
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &SQLite{
		db:           db,
		pollInterval: pollInterval,
		Logger:       zap.NewNop(),
		subs:         make(map[int]*sqliteSub),
	}, nil
}

func encodeBody(data map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document body: %w", err)
	}
	return proto.Marshal(st)
}

func decodeBody(body []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to decode document body: %w", err)
	}
	return st.AsMap(), nil
}

func (r documentRow) document() (*Document, error) {
	data, err := decodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	return &Document{
		Collection: r.Collection,
		ID:         r.ID,
		Version:    r.Version,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
		Data:       data,
	}, nil
}

func (s *SQLite) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Get returns a document or ErrNotFound
func (s *SQLite) Get(ctx context.Context, collection, id string) (*Document, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		`SELECT collection, id, version, created_at, body FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.document()
}

// Create stores a new document under a generated id
func (s *SQLite) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.New().String()
	if err := s.Batch(ctx, BatchOp{Collection: collection, ID: id, Create: true, Data: data}); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces a document
func (s *SQLite) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.Batch(ctx, BatchOp{Collection: collection, ID: id, Create: true, Data: data})
}

// Update applies field updates to an existing document
func (s *SQLite) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return s.Batch(ctx, BatchOp{Collection: collection, ID: id, Updates: updates})
}

// Batch applies every op inside one transaction
func (s *SQLite) Batch(ctx context.Context, ops ...BatchOp) error {
	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	if err := tx.GetContext(ctx, &version, `SELECT value FROM store_meta WHERE key = 'version'`); err != nil {
		return fmt.Errorf("failed to read store version: %w", err)
	}

	written := make([]docKey, 0, len(ops))
	now := time.Now().UTC().UnixNano()
	for _, op := range ops {
		if op.ID == "" {
			op.ID = uuid.New().String()
		}

		var row documentRow
		err := tx.GetContext(ctx, &row,
			`SELECT collection, id, version, created_at, body FROM documents WHERE collection = ? AND id = ?`,
			op.Collection, op.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read document: %w", err)
		}

		var data map[string]any
		createdAt := now
		if op.Create {
			data, err = normalizeData(op.Data)
			if err != nil {
				return err
			}
			if exists {
				createdAt = row.CreatedAt
			}
		} else {
			if !exists {
				return ErrNotFound
			}
			data, err = decodeBody(row.Body)
			if err != nil {
				return err
			}
			if err := applyUpdates(data, op.Updates); err != nil {
				return err
			}
			createdAt = row.CreatedAt
		}

		body, err := encodeBody(data)
		if err != nil {
			return err
		}

		version++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, version, created_at, body) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (collection, id) DO UPDATE SET version = excluded.version, body = excluded.body`,
			op.Collection, op.ID, version, createdAt, body); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		written = append(written, docKey{op.Collection, op.ID})
	}

	if _, err := tx.ExecContext(ctx, `UPDATE store_meta SET value = ? WHERE key = 'version'`, version); err != nil {
		return fmt.Errorf("failed to bump store version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Local subscribers are told right away, other processes find out by polling
	for _, key := range written {
		s.notify(ctx, key)
	}
	return nil
}

// Query returns matching documents of a collection
func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT collection, id, version, created_at, body FROM documents WHERE collection = ?`,
		collection); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			s.Logger.Warn("Skipping malformed document",
				zap.String("collection", row.Collection),
				zap.String("id", row.ID),
				zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return runQuery(docs, q)
}

// Subscribe delivers the current document and every later version to fn
func (s *SQLite) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &sqliteSub{
		collection: collection,
		id:         id,
		fn:         fn,
		stopChan:   make(chan struct{}),
	}
	subID := s.nextSub
	s.nextSub++
	s.subs[subID] = sub
	s.mu.Unlock()

	s.check(ctx, sub)
	go s.poll(sub)

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, subID)
		s.mu.Unlock()
		sub.stop()
	}
	return cancel, nil
}

func (sub *sqliteSub) stop() {
	sub.stopOnce.Do(func() { close(sub.stopChan) })
}

func (sub *sqliteSub) stopped() bool {
	select {
	case <-sub.stopChan:
		return true
	default:
		return false
	}
}

func (s *SQLite) poll(sub *sqliteSub) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.check(context.Background(), sub)
		case <-sub.stopChan:
			return
		}
	}
}

// check delivers the document to sub when its version moved past the last one seen
func (s *SQLite) check(ctx context.Context, sub *sqliteSub) {
	if sub.stopped() {
		return
	}
	doc, err := s.Get(ctx, sub.collection, sub.id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrClosed) {
			s.Logger.Warn("Subscription poll failed",
				zap.String("collection", sub.collection),
				zap.String("id", sub.id),
				zap.Error(err))
		}
		return
	}

	sub.mu.Lock()
	if doc.Version <= sub.version {
		sub.mu.Unlock()
		return
	}
	sub.version = doc.Version
	sub.mu.Unlock()

	sub.fn(doc)
}

func (s *SQLite) notify(ctx context.Context, key docKey) {
	s.mu.Lock()
	targets := make([]*sqliteSub, 0)
	for _, sub := range s.subs {
		if sub.collection == key.collection && sub.id == key.id {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.check(ctx, sub)
	}
}

// Close stops every subscription and closes the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[int]*sqliteSub)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return s.db.Close()
}
