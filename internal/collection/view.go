package collection

import (
	"fmt"
	"sync"
)

// View bundles a collection with its search index and selection and
// routes every mutation through all three, so the consistency
// invariants hold by construction: a removed record is dropped from the
// index and deselected in the same logical operation, and the index can
// never report a record the collection no longer holds.
//
// Unlike the bare structures, a View is safe for concurrent use; it is
// the surface shared between request handlers.
type View[T any] struct {
	mu        sync.RWMutex
	records   *Collection[T]
	index     *Index[T]
	selection *Selection
}

// NewView builds an empty view keyed by keyOf and indexed over the
// values returned by fields.
func NewView[T any](keyOf func(T) string, fields func(T) []string) *View[T] {
	records := New(keyOf)
	return &View[T]{
		records:   records,
		index:     NewIndex(records, fields),
		selection: NewSelection(),
	}
}

// Add inserts or replaces record in the collection and re-indexes it.
func (v *View[T]) Add(record T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records.Add(record)
	v.index.Add(record)
}

// BulkAdd inserts records in order.
func (v *View[T]) BulkAdd(records []T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, record := range records {
		v.records.Add(record)
		v.index.Add(record)
	}
}

// Remove drops the record under key everywhere: collection, index, and
// selection.
func (v *View[T]) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.index.Remove(key)
	v.records.Remove(key)
	v.selection.Deselect(key)
}

// Update applies merge to the record under key and re-indexes the
// result. Absent keys are a no-op.
func (v *View[T]) Update(key string, merge func(T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records.Update(key, merge)
	if record, ok := v.records.Get(key); ok {
		v.index.Add(record)
	}
}

// Replace swaps the whole contents for records, keeping selections only
// for keys that survive.
func (v *View[T]) Replace(records []T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records.Clear()
	v.index.Clear()
	for _, record := range records {
		v.records.Add(record)
		v.index.Add(record)
	}
	for _, key := range v.selection.Selected() {
		if !v.records.Has(key) {
			v.selection.Deselect(key)
		}
	}
}

// Clear empties the view.
func (v *View[T]) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records.Clear()
	v.index.Clear()
	v.selection.DeselectAll()
}

// Get returns the record under key.
func (v *View[T]) Get(key string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.records.Get(key)
}

// All returns every record in insertion order.
func (v *View[T]) All() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.records.All()
}

// Len reports the record count.
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.records.Len()
}

// Search returns the records matching term in insertion order; an empty
// term returns everything.
func (v *View[T]) Search(term string) []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.index.Search(term)
}

// Toggle flips the selection state of key. Keys not present in the
// collection cannot be selected.
func (v *View[T]) Toggle(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.records.Has(key) {
		return false
	}
	v.selection.Toggle(key)
	return true
}

// SelectAll selects every record currently held.
func (v *View[T]) SelectAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection.SelectAll(v.records.Keys())
}

// DeselectAll clears the selection.
func (v *View[T]) DeselectAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection.DeselectAll()
}

// IsSelected reports whether key is selected.
func (v *View[T]) IsSelected(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selection.IsSelected(key)
}

// Selected returns the selected keys in selection order.
func (v *View[T]) Selected() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selection.Selected()
}

// Record is the shape of a decoded API record.
type Record = map[string]any

// FieldKey extracts the named field as the record key, covering the
// usual JSON decodings of identifiers (string and float64).
func FieldKey(name string) func(Record) string {
	return func(record Record) string {
		switch value := record[name].(type) {
		case string:
			return value
		case float64:
			return trimFloat(value)
		case int:
			return fmt.Sprintf("%d", value)
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", value)
		}
	}
}

// FieldStrings extracts the named fields as searchable text.
func FieldStrings(names ...string) func(Record) []string {
	return func(record Record) []string {
		values := make([]string, 0, len(names))
		for _, name := range names {
			switch value := record[name].(type) {
			case string:
				values = append(values, value)
			case float64:
				values = append(values, trimFloat(value))
			case nil:
			default:
				values = append(values, fmt.Sprintf("%v", value))
			}
		}
		return values
	}
}

// trimFloat renders JSON numbers without a trailing ".0" when they are
// integral, matching how record IDs are written in URLs.
func trimFloat(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%g", value)
}
