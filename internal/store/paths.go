package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// normalize converts a Go value into its JSON tree form
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return out, nil
}

// deepCopy copies a JSON tree
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return make(map[string]any)
	}
	return deepCopy(data).(map[string]any)
}

func cloneDocument(doc *Document) *Document {
	c := *doc
	c.Data = copyData(doc.Data)
	return &c
}

// normalizeData converts a whole document body into tree form
func normalizeData(data map[string]any) (map[string]any, error) {
	if data == nil {
		return make(map[string]any), nil
	}
	out, err := normalize(data)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document body must be an object", ErrInvalidPath)
	}
	return m, nil
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// parent walks to the map holding the last path segment, creating missing maps when create is set
func parent(data map[string]any, parts []string, create bool) (map[string]any, error) {
	current := data
	for _, key := range parts[:len(parts)-1] {
		next, exists := current[key]
		if !exists || next == nil {
			if !create {
				return nil, nil
			}
			child := make(map[string]any)
			current[key] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an object", ErrInvalidPath, key)
		}
		current = child
	}
	return current, nil
}

// lookup returns the value at a dotted path
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// applyUpdates applies updates to data in place. data must be a private copy.
func applyUpdates(data map[string]any, updates []Update) error {
	for _, u := range updates {
		if err := applyUpdate(data, u); err != nil {
			return err
		}
	}
	return nil
}

func applyUpdate(data map[string]any, u Update) error {
	parts, err := splitPath(u.Path)
	if err != nil {
		return err
	}
	key := parts[len(parts)-1]

	if u.Kind == OpDelete {
		m, err := parent(data, parts, false)
		if err != nil || m == nil {
			return err
		}
		delete(m, key)
		return nil
	}

	m, err := parent(data, parts, true)
	if err != nil {
		return err
	}

	value, err := normalize(u.Value)
	if err != nil {
		return err
	}

	switch u.Kind {
	case OpSet:
		m[key] = value
	case OpIncrement:
		n, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: increment of %s needs a number", ErrInvalidPath, u.Path)
		}
		current, exists := m[key]
		if !exists || current == nil {
			m[key] = n
			return nil
		}
		cur, ok := current.(float64)
		if !ok {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidPath, u.Path)
		}
		m[key] = cur + n
	case OpAppend:
		current, exists := m[key]
		if !exists || current == nil {
			m[key] = []any{value}
			return nil
		}
		arr, ok := current.([]any)
		if !ok {
			return fmt.Errorf("%w: %s is not an array", ErrInvalidPath, u.Path)
		}
		m[key] = append(arr, value)
	default:
		return fmt.Errorf("%w: unknown update kind %q", ErrInvalidPath, u.Kind)
	}
	return nil
}

// runQuery filters, orders and limits documents
func runQuery(docs []*Document, q Query) ([]*Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		value, err := normalize(f.Equals)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Equals: value}
	}

	matched := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		if matches(doc, filters) {
			matched = append(matched, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := lookup(matched[i].Data, q.OrderBy)
			b, _ := lookup(matched[j].Data, q.OrderBy)
			c := compareValues(a, b)
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func matches(doc *Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(doc.Data, f.Field)
		if !ok || !reflect.DeepEqual(v, f.Equals) {
			return false
		}
	}
	return true
}

// compareValues orders missing < bool < number < string
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		y := b.(string)
		// Timestamps order by instant
		if tx, err := time.Parse(time.RFC3339Nano, x); err == nil {
			if ty, err := time.Parse(time.RFC3339Nano, y); err == nil {
				return tx.Compare(ty)
			}
		}
		return strings.Compare(x, y)
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 0
}
