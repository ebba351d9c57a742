package dirty

import (
	"encoding/json"
	"iter"
	"reflect"
)

// Iterator walks a container. Next advances and reports whether a value
// is available, Value returns the value at the cursor, and Remove deletes
// the value Value currently reports.
type Iterator interface {
	Next() bool
	Value() any
	Remove()
}

// List is an ordered container with positional access.
type List interface {
	Add(value any)
	AddAll(values ...any)
	Insert(index int, value any)
	Set(index int, value any) any
	Get(index int) any
	Remove(value any) bool
	RemoveAt(index int) any
	RemoveIf(predicate func(value any) bool) bool
	RemoveAll(values ...any) bool
	RetainAll(values ...any) bool
	Clear()
	Contains(value any) bool
	IndexOf(value any) int
	Len() int
	Iterator() Iterator
	All() iter.Seq[any]
}

// Set is an insertion-ordered container without duplicates.
type Set interface {
	Add(value any) bool
	AddAll(values ...any) bool
	Remove(value any) bool
	RemoveIf(predicate func(value any) bool) bool
	RemoveAll(values ...any) bool
	RetainAll(values ...any) bool
	Clear()
	Contains(value any) bool
	Len() int
	Iterator() Iterator
	All() iter.Seq[any]
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   any
	Value any
}

// Map is an insertion-ordered key/value container.
type Map interface {
	Put(key, value any) any
	PutAll(src Map)
	Merge(key, value any, remap func(current, value any) any) any
	Get(key any) (any, bool)
	Remove(key any) (any, bool)
	ContainsKey(key any) bool
	Clear()
	Keys() []any
	Values() []any
	Entries() []MapEntry
	Len() int
	Iterator() Iterator
	All() iter.Seq2[any, any]
}

// NewList returns an insertion-ordered List seeded with values.
func NewList(values ...any) List {
	list := &arrayList{}
	list.AddAll(values...)
	return list
}

// NewSet returns an insertion-ordered Set seeded with values.
func NewSet(values ...any) Set {
	set := &linkedSet{}
	set.AddAll(values...)
	return set
}

// NewMap returns an empty insertion-ordered Map.
func NewMap() Map {
	return &linkedMap{}
}

// valuesEqual is the membership rule for the built-in containers.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

type arrayList struct {
	items []any
}

func (l *arrayList) Add(value any) {
	l.items = append(l.items, value)
}

func (l *arrayList) AddAll(values ...any) {
	l.items = append(l.items, values...)
}

func (l *arrayList) Insert(index int, value any) {
	l.items = append(l.items, nil)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = value
}

func (l *arrayList) Set(index int, value any) any {
	previous := l.items[index]
	l.items[index] = value
	return previous
}

func (l *arrayList) Get(index int) any {
	return l.items[index]
}

func (l *arrayList) Remove(value any) bool {
	for i, item := range l.items {
		if valuesEqual(item, value) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *arrayList) RemoveAt(index int) any {
	previous := l.items[index]
	l.items = append(l.items[:index], l.items[index+1:]...)
	return previous
}

func (l *arrayList) RemoveIf(predicate func(value any) bool) bool {
	if predicate == nil {
		return false
	}
	kept := l.items[:0]
	changed := false
	for _, item := range l.items {
		if predicate(item) {
			changed = true
			continue
		}
		kept = append(kept, item)
	}
	l.items = kept
	return changed
}

func (l *arrayList) RemoveAll(values ...any) bool {
	return l.RemoveIf(func(item any) bool {
		return containsValue(values, item)
	})
}

func (l *arrayList) RetainAll(values ...any) bool {
	return l.RemoveIf(func(item any) bool {
		return !containsValue(values, item)
	})
}

func (l *arrayList) Clear() {
	l.items = nil
}

func (l *arrayList) Contains(value any) bool {
	return l.IndexOf(value) >= 0
}

func (l *arrayList) IndexOf(value any) int {
	for i, item := range l.items {
		if valuesEqual(item, value) {
			return i
		}
	}
	return -1
}

func (l *arrayList) Len() int {
	return len(l.items)
}

func (l *arrayList) Iterator() Iterator {
	return &listIterator{list: l, last: -1}
}

func (l *arrayList) All() iter.Seq[any] {
	snapshot := append([]any(nil), l.items...)
	return func(yield func(any) bool) {
		for _, item := range snapshot {
			if !yield(item) {
				return
			}
		}
	}
}

func (l *arrayList) MarshalJSON() ([]byte, error) {
	if l.items == nil {
		return json.Marshal([]any{})
	}
	return json.Marshal(l.items)
}

func containsValue(values []any, candidate any) bool {
	for _, value := range values {
		if valuesEqual(value, candidate) {
			return true
		}
	}
	return false
}

type listIterator struct {
	list *arrayList
	next int
	last int
}

func (it *listIterator) Next() bool {
	if it.next >= len(it.list.items) {
		return false
	}
	it.last = it.next
	it.next++
	return true
}

func (it *listIterator) Value() any {
	if it.last < 0 || it.last >= len(it.list.items) {
		return nil
	}
	return it.list.items[it.last]
}

func (it *listIterator) Remove() {
	if it.last < 0 || it.last >= len(it.list.items) {
		return
	}
	it.list.items = append(it.list.items[:it.last], it.list.items[it.last+1:]...)
	it.next = it.last
	it.last = -1
}

type linkedSet struct {
	items arrayList
}

func (s *linkedSet) Add(value any) bool {
	if s.items.Contains(value) {
		return false
	}
	s.items.Add(value)
	return true
}

func (s *linkedSet) AddAll(values ...any) bool {
	changed := false
	for _, value := range values {
		if s.Add(value) {
			changed = true
		}
	}
	return changed
}

func (s *linkedSet) Remove(value any) bool {
	return s.items.Remove(value)
}

func (s *linkedSet) RemoveIf(predicate func(value any) bool) bool {
	return s.items.RemoveIf(predicate)
}

func (s *linkedSet) RemoveAll(values ...any) bool {
	return s.items.RemoveAll(values...)
}

func (s *linkedSet) RetainAll(values ...any) bool {
	return s.items.RetainAll(values...)
}

func (s *linkedSet) Clear() {
	s.items.Clear()
}

func (s *linkedSet) Contains(value any) bool {
	return s.items.Contains(value)
}

func (s *linkedSet) Len() int {
	return s.items.Len()
}

func (s *linkedSet) Iterator() Iterator {
	return s.items.Iterator()
}

func (s *linkedSet) All() iter.Seq[any] {
	return s.items.All()
}

func (s *linkedSet) MarshalJSON() ([]byte, error) {
	return s.items.MarshalJSON()
}

type linkedMap struct {
	entries []MapEntry
}

func (m *linkedMap) Put(key, value any) any {
	for i, entry := range m.entries {
		if valuesEqual(entry.Key, key) {
			previous := entry.Value
			m.entries[i].Value = value
			return previous
		}
	}
	m.entries = append(m.entries, MapEntry{Key: key, Value: value})
	return nil
}

func (m *linkedMap) PutAll(src Map) {
	if src == nil {
		return
	}
	for _, entry := range src.Entries() {
		m.Put(entry.Key, entry.Value)
	}
}

func (m *linkedMap) Merge(key, value any, remap func(current, value any) any) any {
	current, ok := m.Get(key)
	if !ok || remap == nil {
		m.Put(key, value)
		return value
	}
	merged := remap(current, value)
	m.Put(key, merged)
	return merged
}

func (m *linkedMap) Get(key any) (any, bool) {
	for _, entry := range m.entries {
		if valuesEqual(entry.Key, key) {
			return entry.Value, true
		}
	}
	return nil, false
}

func (m *linkedMap) Remove(key any) (any, bool) {
	for i, entry := range m.entries {
		if valuesEqual(entry.Key, key) {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return entry.Value, true
		}
	}
	return nil, false
}

func (m *linkedMap) ContainsKey(key any) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *linkedMap) Clear() {
	m.entries = nil
}

func (m *linkedMap) Keys() []any {
	keys := make([]any, len(m.entries))
	for i, entry := range m.entries {
		keys[i] = entry.Key
	}
	return keys
}

func (m *linkedMap) Values() []any {
	values := make([]any, len(m.entries))
	for i, entry := range m.entries {
		values[i] = entry.Value
	}
	return values
}

func (m *linkedMap) Entries() []MapEntry {
	return append([]MapEntry(nil), m.entries...)
}

func (m *linkedMap) Len() int {
	return len(m.entries)
}

func (m *linkedMap) Iterator() Iterator {
	return &mapIterator{owner: m, last: -1}
}

func (m *linkedMap) All() iter.Seq2[any, any] {
	snapshot := m.Entries()
	return func(yield func(any, any) bool) {
		for _, entry := range snapshot {
			if !yield(entry.Key, entry.Value) {
				return
			}
		}
	}
}

// MarshalJSON renders an object when every key is a string and an entry
// array otherwise.
func (m *linkedMap) MarshalJSON() ([]byte, error) {
	object := map[string]any{}
	for _, entry := range m.entries {
		key, ok := entry.Key.(string)
		if !ok {
			object = nil
			break
		}
		object[key] = entry.Value
	}
	if object != nil {
		return json.Marshal(object)
	}
	rows := make([]map[string]any, len(m.entries))
	for i, entry := range m.entries {
		rows[i] = map[string]any{"key": entry.Key, "value": entry.Value}
	}
	return json.Marshal(rows)
}

type mapIterator struct {
	owner *linkedMap
	next  int
	last  int
}

func (it *mapIterator) Next() bool {
	if it.next >= len(it.owner.entries) {
		return false
	}
	it.last = it.next
	it.next++
	return true
}

func (it *mapIterator) Value() any {
	if it.last < 0 || it.last >= len(it.owner.entries) {
		return nil
	}
	return it.owner.entries[it.last]
}

func (it *mapIterator) Remove() {
	if it.last < 0 || it.last >= len(it.owner.entries) {
		return
	}
	it.owner.entries = append(it.owner.entries[:it.last], it.owner.entries[it.last+1:]...)
	it.next = it.last
	it.last = -1
}
