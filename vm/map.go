package vm

// ---------------------------------------------------------------------------
// ObjMap: open-addressed hash table keyed by values
// ---------------------------------------------------------------------------

// ObjMap is a script-visible hash map. Keys may be numbers, strings,
// booleans, null, ranges, or classes; anything else is rejected before
// insertion by the map primitives.
//
// The table uses open addressing with linear probing over a power-of-two
// capacity. An entry whose key is undefined is either empty (value false)
// or a tombstone left by a removal (value true). Tombstones keep probe
// chains intact until the next resize rebuilds the table.
type ObjMap struct {
	Obj
	count   int
	entries []mapEntry
}

type mapEntry struct {
	key   Value
	value Value
}

const (
	mapMinCapacity = 16
	mapLoadPercent = 75
	mapGrowFactor  = 2
)

func (vm *VM) newMap() *ObjMap {
	vm.reallocate(0, sizeObjMap)
	m := &ObjMap{}
	vm.initObj(&m.Obj, KindMap, vm.mapClass)
	return m
}

// findEntry locates the entry for key, or the slot where it would be
// inserted. Returns false when the key is absent; the returned index then
// points at the first reusable slot on the probe chain.
func (m *ObjMap) findEntry(key Value) (int, bool) {
	if len(m.entries) == 0 {
		return 0, false
	}

	hash, _ := hashValue(key)
	index := int(hash) & (len(m.entries) - 1)
	tombstone := -1
	start := index

	// Live entries never fill the table, but tombstones can take every
	// empty slot, so the probe stops at an empty slot or after one full
	// lap, whichever comes first.
	for {
		entry := &m.entries[index]
		if entry.key.IsUndefined() {
			if entry.value.IsFalse() {
				if tombstone >= 0 {
					return tombstone, false
				}
				return index, false
			}
			if tombstone < 0 {
				tombstone = index
			}
		} else if valuesEqual(entry.key, key) {
			return index, true
		}
		index = (index + 1) & (len(m.entries) - 1)
		if index == start {
			return tombstone, false
		}
	}
}

// insert adds or replaces key in the current table. Returns true if a new
// entry was created rather than an existing one updated.
func (m *ObjMap) insert(key, value Value) bool {
	index, found := m.findEntry(key)
	m.entries[index] = mapEntry{key: key, value: value}
	return !found
}

func (vm *VM) mapResize(m *ObjMap, capacity int) {
	old := m.entries
	vm.reallocate(len(old)*2*sizeValue, capacity*2*sizeValue)

	m.entries = make([]mapEntry, capacity)
	for i := range m.entries {
		m.entries[i] = mapEntry{key: UndefinedValue, value: FalseValue}
	}
	for i := range old {
		if !old[i].key.IsUndefined() {
			m.insert(old[i].key, old[i].value)
		}
	}
}

// mapGet returns the value for key, or undefined if absent.
func mapGet(m *ObjMap, key Value) Value {
	index, found := m.findEntry(key)
	if !found {
		return UndefinedValue
	}
	return m.entries[index].value
}

// mapSet associates key with value, growing the table when it crosses the
// load threshold.
func (vm *VM) mapSet(m *ObjMap, key, value Value) {
	if m.count+1 > len(m.entries)*mapLoadPercent/100 {
		capacity := len(m.entries) * mapGrowFactor
		if capacity < mapMinCapacity {
			capacity = mapMinCapacity
		}
		vm.mapResize(m, capacity)
	}
	if m.insert(key, value) {
		m.count++
	}
}

// mapRemove deletes key and returns its previous value, or null if the key
// was absent. The vacated slot becomes a tombstone.
func (vm *VM) mapRemove(m *ObjMap, key Value) Value {
	index, found := m.findEntry(key)
	if !found {
		return NullValue
	}

	value := m.entries[index].value
	m.entries[index] = mapEntry{key: UndefinedValue, value: TrueValue}

	if value.IsObj() {
		// Keep the value reachable across the resize below.
		vm.pushRoot(value.Obj())
	}

	m.count--
	if m.count == 0 {
		vm.mapClear(m)
	} else if len(m.entries) > mapMinCapacity &&
		m.count < len(m.entries)/mapGrowFactor*mapLoadPercent/100 {
		capacity := len(m.entries) / mapGrowFactor
		if capacity < mapMinCapacity {
			capacity = mapMinCapacity
		}
		vm.mapResize(m, capacity)
	}

	if value.IsObj() {
		vm.popRoot()
	}
	return value
}

// mapClear removes all entries and releases the table.
func (vm *VM) mapClear(m *ObjMap) {
	vm.reallocate(len(m.entries)*2*sizeValue, 0)
	m.entries = nil
	m.count = 0
}
