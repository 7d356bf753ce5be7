package collection

import (
	"container/list"
)

// Selection is an ordered set of selected keys, decoupled from the
// records themselves. View prunes it when the owning collection drops a
// record so no orphaned selections survive.
type Selection struct {
	items map[string]*list.Element
	order *list.List
}

// NewSelection builds an empty selection.
func NewSelection() *Selection {
	return &Selection{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Select marks key as selected. Selecting an already-selected key keeps
// its original position.
func (s *Selection) Select(key string) {
	if _, ok := s.items[key]; ok {
		return
	}
	s.items[key] = s.order.PushBack(key)
}

// Deselect unmarks key. Absent keys are a no-op.
func (s *Selection) Deselect(key string) {
	if existing, ok := s.items[key]; ok {
		s.order.Remove(existing)
		delete(s.items, key)
	}
}

// Toggle selects key when absent and deselects it when present, so two
// toggles always restore the starting state.
func (s *Selection) Toggle(key string) {
	if _, ok := s.items[key]; ok {
		s.Deselect(key)
		return
	}
	s.Select(key)
}

// SelectAll selects every listed key in order.
func (s *Selection) SelectAll(keys []string) {
	for _, key := range keys {
		s.Select(key)
	}
}

// DeselectAll clears the selection.
func (s *Selection) DeselectAll() {
	s.items = make(map[string]*list.Element)
	s.order.Init()
}

// IsSelected reports whether key is selected.
func (s *Selection) IsSelected(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Selected returns the selected keys in selection order.
func (s *Selection) Selected() []string {
	keys := make([]string, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(string))
	}
	return keys
}

// Len reports how many keys are selected.
func (s *Selection) Len() int {
	return s.order.Len()
}

// Empty reports whether nothing is selected.
func (s *Selection) Empty() bool {
	return s.order.Len() == 0
}
