package collection

import (
	"strings"
)

// Index is an inverted token index over configured fields of a paired
// collection. Tokens are the lowercased whole field values plus their
// whitespace-separated words; a search term matches a token by
// substring. The index must be fed through the same add/remove path as
// the collection (View does this) so it never reports a record the
// collection no longer holds.
type Index[T any] struct {
	collection *Collection[T]
	fields     func(T) []string
	tokens     map[string]map[string]struct{}
	byKey      map[string][]string
}

// NewIndex builds an empty index over collection, tokenizing the values
// returned by fields.
func NewIndex[T any](collection *Collection[T], fields func(T) []string) *Index[T] {
	return &Index[T]{
		collection: collection,
		fields:     fields,
		tokens:     make(map[string]map[string]struct{}),
		byKey:      make(map[string][]string),
	}
}

// Add indexes record under every token derived from its fields. A key
// indexed before is re-indexed from scratch so stale tokens from a
// previous version of the record cannot linger.
func (x *Index[T]) Add(record T) {
	key := x.collection.KeyOf(record)
	x.Remove(key)
	tokens := tokenize(x.fields(record))
	for _, token := range tokens {
		set, ok := x.tokens[token]
		if !ok {
			set = make(map[string]struct{})
			x.tokens[token] = set
		}
		set[key] = struct{}{}
	}
	x.byKey[key] = tokens
}

// Remove drops every token mapping for key. Absent keys are a no-op.
func (x *Index[T]) Remove(key string) {
	for _, token := range x.byKey[key] {
		if set, ok := x.tokens[token]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(x.tokens, token)
			}
		}
	}
	delete(x.byKey, key)
}

// Clear drops the whole index.
func (x *Index[T]) Clear() {
	x.tokens = make(map[string]map[string]struct{})
	x.byKey = make(map[string][]string)
}

// Search returns the records whose indexed fields contain term,
// case-insensitively, in collection insertion order. An empty or
// whitespace-only term means "no filter applied" and returns the full
// collection, not an empty result.
func (x *Index[T]) Search(term string) []T {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return x.collection.All()
	}
	matched := make(map[string]struct{})
	for token, keys := range x.tokens {
		if !strings.Contains(token, needle) {
			continue
		}
		for key := range keys {
			matched[key] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	var records []T
	for _, key := range x.collection.Keys() {
		if _, ok := matched[key]; !ok {
			continue
		}
		if record, ok := x.collection.Get(key); ok {
			records = append(records, record)
		}
	}
	return records
}

func tokenize(values []string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	add := func(token string) {
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	for _, value := range values {
		lowered := strings.ToLower(strings.TrimSpace(value))
		add(lowered)
		for _, word := range strings.Fields(lowered) {
			add(word)
		}
	}
	return tokens
}
