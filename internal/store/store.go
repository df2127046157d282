// Package store defines the shared document store used by multiplayer games
// and provides in-memory and SQLite implementations.
//
// Documents are JSON-shaped trees (map[string]any, []any, float64, string,
// bool, nil). Updates address fields with dotted paths such as
// "playerData.p1.resources.economy"; keys must therefore not contain dots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid field path")
	ErrClosed      = errors.New("store closed")
)

// Document is one stored document at a given version
type Document struct {
	Collection string
	ID         string
	Version    int64
	CreatedAt  time.Time
	Data       map[string]any
}

// Decode unmarshals the document data into out
func (d *Document) Decode(out any) error {
	return Decode(d.Data, out)
}

// OpKind is the kind of a field update
type OpKind string

const (
	OpSet       OpKind = "set"
	OpIncrement OpKind = "increment"
	OpAppend    OpKind = "append"
	OpDelete    OpKind = "delete"
)

// Update changes one field path of a document
type Update struct {
	Path  string
	Kind  OpKind
	Value any
}

// Set replaces the value at path, creating intermediate maps
func Set(path string, value any) Update {
	return Update{Path: path, Kind: OpSet, Value: value}
}

// Increment adds n to the number at path, a missing field counts as zero
func Increment(path string, n float64) Update {
	return Update{Path: path, Kind: OpIncrement, Value: n}
}

// Append adds value to the array at path
func Append(path string, value any) Update {
	return Update{Path: path, Kind: OpAppend, Value: value}
}

// Delete removes the field at path
func Delete(path string) Update {
	return Update{Path: path, Kind: OpDelete}
}

// Filter matches documents whose field equals a value
type Filter struct {
	Field  string
	Equals any
}

// Query selects documents of a collection
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// BatchOp is one document write inside an atomic batch.
// With Create set the document is created from Data (ID generated if empty),
// otherwise Updates are applied to the existing document.
type BatchOp struct {
	Collection string
	ID         string
	Create     bool
	Data       map[string]any
	Updates    []Update
}

// SnapshotFunc receives the full document after every write
type SnapshotFunc func(doc *Document)

// Store is the document store contract
type Store interface {
	// Get returns a document or ErrNotFound
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Create stores a new document under a generated id
	Create(ctx context.Context, collection string, data map[string]any) (string, error)

	// Set creates or replaces a whole document
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Update applies field updates atomically; ErrNotFound if the document is missing
	Update(ctx context.Context, collection, id string, updates ...Update) error

	// Query returns the documents matching q
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)

	// Subscribe delivers the current document and every later version to fn
	// until cancel is called
	Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (cancel func(), err error)

	// Batch applies every op or none
	Batch(ctx context.Context, ops ...BatchOp) error

	// Close releases the store
	Close() error
}

// Encode converts a value into a document tree through its JSON form
func Encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return out, nil
}

// Decode converts a document tree into out through its JSON form
func Decode(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
