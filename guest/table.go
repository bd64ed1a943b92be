package guest

import (
	"strings"
	"weak"
)

// Table is a guest associative table.
//
// A table whose metatable carries a "__mode" containing 'k' holds its
// *Function keys weakly: once nothing else references the function the
// entry is dropped by the next sweep. Other key kinds are always held
// strongly.
type Table struct {
	state *State
	hash  map[Value]Value

	weakKeys bool
	weak     map[weak.Pointer[Function]]Value

	meta *Table
}

// NewTable allocates an empty table.
func (s *State) NewTable() *Table {
	s.charge(0, tableSize)
	return &Table{state: s, hash: make(map[Value]Value)}
}

// Get returns the value stored under key, or nil.
func (t *Table) Get(key Value) Value {
	if key == nil {
		return nil
	}
	if fn, ok := key.(*Function); ok && t.weakKeys {
		return t.weak[weak.Make(fn)]
	}
	return t.hash[key]
}

// Set stores v under key. Storing nil deletes the entry.
func (t *Table) Set(key Value, v Value) {
	if key == nil {
		return
	}
	if fn, ok := key.(*Function); ok && t.weakKeys {
		wp := weak.Make(fn)
		_, exists := t.weak[wp]
		switch {
		case v == nil && exists:
			delete(t.weak, wp)
			t.state.charge(entrySize, 0)
		case v != nil:
			if !exists {
				t.state.charge(0, entrySize)
			}
			t.weak[wp] = v
		}
		return
	}

	_, exists := t.hash[key]
	switch {
	case v == nil && exists:
		delete(t.hash, key)
		t.state.charge(entrySize, 0)
	case v != nil:
		if !exists {
			t.state.charge(0, entrySize)
		}
		t.hash[key] = v
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	n := len(t.hash)
	for wp := range t.weak {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

// Range calls fn for every live entry until fn returns false. Iteration
// order is unspecified.
func (t *Table) Range(fn func(k, v Value) bool) {
	for k, v := range t.hash {
		if !fn(k, v) {
			return
		}
	}
	for wp, v := range t.weak {
		key := wp.Value()
		if key == nil {
			continue
		}
		if !fn(key, v) {
			return
		}
	}
}

// Metatable returns the table's metatable.
func (t *Table) Metatable() *Table { return t.meta }

// SetMetatable installs mt. A "__mode" field containing 'k' switches the
// table to weak keys.
func (t *Table) SetMetatable(mt *Table) {
	t.meta = mt
	weakKeys := false
	if mt != nil {
		if mode, ok := mt.Get("__mode").(string); ok && strings.ContainsRune(mode, 'k') {
			weakKeys = true
		}
	}
	if weakKeys == t.weakKeys {
		return
	}
	t.weakKeys = weakKeys
	if weakKeys {
		t.weak = make(map[weak.Pointer[Function]]Value)
		for k, v := range t.hash {
			if fn, ok := k.(*Function); ok {
				delete(t.hash, k)
				t.weak[weak.Make(fn)] = v
			}
		}
		t.state.weakTables = append(t.state.weakTables, t)
		return
	}
	for wp, v := range t.weak {
		if fn := wp.Value(); fn != nil {
			t.hash[fn] = v
		}
	}
	t.weak = nil
	tables := t.state.weakTables
	for i, wt := range tables {
		if wt == t {
			t.state.weakTables = append(tables[:i], tables[i+1:]...)
			break
		}
	}
}

// WeakKeys reports whether *Function keys are held weakly.
func (t *Table) WeakKeys() bool { return t.weakKeys }

// Sweep drops entries whose weak key has been reclaimed and returns how
// many were dropped.
func (t *Table) Sweep() int {
	n := 0
	for wp := range t.weak {
		if wp.Value() == nil {
			delete(t.weak, wp)
			n++
		}
	}
	if n > 0 {
		t.state.charge(n*entrySize, 0)
	}
	return n
}

// DeleteIf removes every entry for which pred returns true and returns
// how many were removed.
func (t *Table) DeleteIf(pred func(k, v Value) bool) int {
	var keys []Value
	t.Range(func(k, v Value) bool {
		if pred(k, v) {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		t.Set(k, nil)
	}
	return len(keys)
}
