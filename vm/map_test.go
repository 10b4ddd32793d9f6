package vm

import "testing"

func TestMapSetGet(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	vm.mapSet(m, NumValue(1), NumValue(10))
	vm.mapSet(m, vm.stringValue("key"), NumValue(20))
	vm.mapSet(m, TrueValue, NumValue(30))
	vm.mapSet(m, NullValue, NumValue(40))

	if m.count != 4 {
		t.Fatalf("count: got %d, want 4", m.count)
	}
	if got := mapGet(m, NumValue(1)); got.Num() != 10 {
		t.Errorf("number key: got %v", got)
	}
	if got := mapGet(m, vm.stringValue("key")); got.Num() != 20 {
		t.Errorf("string key: got %v", got)
	}
	if got := mapGet(m, TrueValue); got.Num() != 30 {
		t.Errorf("bool key: got %v", got)
	}
	if got := mapGet(m, NullValue); got.Num() != 40 {
		t.Errorf("null key: got %v", got)
	}
	if got := mapGet(m, NumValue(99)); !got.IsUndefined() {
		t.Errorf("absent key: got %v, want undefined", got)
	}
}

func TestMapOverwrite(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	vm.mapSet(m, NumValue(7), NumValue(1))
	vm.mapSet(m, NumValue(7), NumValue(2))

	if m.count != 1 {
		t.Errorf("count after overwrite: got %d, want 1", m.count)
	}
	if got := mapGet(m, NumValue(7)); got.Num() != 2 {
		t.Errorf("overwritten value: got %v", got)
	}
}

func TestMapGrowsAcrossResize(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	const n = 1000
	for i := 0; i < n; i++ {
		vm.mapSet(m, NumValue(float64(i)), NumValue(float64(i*2)))
	}

	if m.count != n {
		t.Fatalf("count: got %d, want %d", m.count, n)
	}
	if len(m.entries)&(len(m.entries)-1) != 0 {
		t.Errorf("capacity %d is not a power of two", len(m.entries))
	}
	for i := 0; i < n; i++ {
		got := mapGet(m, NumValue(float64(i)))
		if got.IsUndefined() || got.Num() != float64(i*2) {
			t.Fatalf("key %d: got %v, want %d", i, got, i*2)
		}
	}
}

func TestMapRemove(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	vm.mapSet(m, NumValue(1), vm.stringValue("one"))
	vm.mapSet(m, NumValue(2), vm.stringValue("two"))

	removed := vm.mapRemove(m, NumValue(1))
	if removed.asString().value != "one" {
		t.Errorf("removed value: got %v", removed)
	}
	if m.count != 1 {
		t.Errorf("count after remove: got %d, want 1", m.count)
	}
	if got := mapGet(m, NumValue(1)); !got.IsUndefined() {
		t.Errorf("removed key still present: %v", got)
	}
	if got := mapGet(m, NumValue(2)); got.asString().value != "two" {
		t.Errorf("surviving key: got %v", got)
	}

	if got := vm.mapRemove(m, NumValue(99)); !got.IsNull() {
		t.Errorf("removing absent key: got %v, want null", got)
	}
}

// Removal leaves a tombstone; keys that probed past the removed slot must
// still be reachable.
func TestMapTombstoneProbing(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	// Enough entries to force probe chains. The removals shrink the
	// table once (128 to 64 slots, at the 17th removal); the five after
	// that leave tombstones in the smaller table.
	const n = 64
	for i := 0; i < n; i++ {
		vm.mapSet(m, NumValue(float64(i)), NumValue(float64(i)))
	}
	for i := 0; i < n; i += 3 {
		vm.mapRemove(m, NumValue(float64(i)))
	}
	for i := 0; i < n; i++ {
		got := mapGet(m, NumValue(float64(i)))
		if i%3 == 0 {
			if !got.IsUndefined() {
				t.Errorf("key %d: still present after remove", i)
			}
		} else if got.IsUndefined() || got.Num() != float64(i) {
			t.Errorf("key %d: got %v, want %d", i, got, i)
		}
	}

	// Reinserting a removed key must reuse its chain, not duplicate it.
	before := m.count
	vm.mapSet(m, NumValue(0), NumValue(100))
	vm.mapSet(m, NumValue(0), NumValue(200))
	if m.count != before+1 {
		t.Errorf("count after reinsert: got %d, want %d", m.count, before+1)
	}
	if got := mapGet(m, NumValue(0)); got.Num() != 200 {
		t.Errorf("reinserted key: got %v", got)
	}
}

func TestMapShrinksAndClears(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	const n = 512
	for i := 0; i < n; i++ {
		vm.mapSet(m, NumValue(float64(i)), NumValue(float64(i)))
	}
	grown := len(m.entries)

	for i := 0; i < n-1; i++ {
		vm.mapRemove(m, NumValue(float64(i)))
	}
	if len(m.entries) >= grown {
		t.Errorf("table did not shrink: %d entries for count %d", len(m.entries), m.count)
	}
	if got := mapGet(m, NumValue(float64(n-1))); got.Num() != float64(n-1) {
		t.Errorf("last key lost during shrink: %v", got)
	}

	vm.mapRemove(m, NumValue(float64(n-1)))
	if m.count != 0 || m.entries != nil {
		t.Errorf("empty map kept its table: count %d, %d entries", m.count, len(m.entries))
	}

	// A cleared map must accept new entries.
	vm.mapSet(m, NumValue(5), NumValue(50))
	if got := mapGet(m, NumValue(5)); got.Num() != 50 {
		t.Errorf("insert after clear: got %v", got)
	}
}

func TestMapStringKeysHashByContent(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	m := vm.newMap()
	vm.pushRoot(&m.Obj)
	defer vm.popRoot()

	vm.mapSet(m, vm.stringValue("hello"), NumValue(1))

	// A distinct string object with equal content must find the entry.
	other := vm.stringValue("hel" + "lo")
	if got := mapGet(m, other); got.IsUndefined() || got.Num() != 1 {
		t.Errorf("equal-content string key missed: %v", got)
	}
}

func TestHashValueRejectsUnhashable(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	list := vm.newList(0)
	if _, ok := hashValue(list.val()); ok {
		t.Error("list reported as hashable")
	}
	if _, ok := hashValue(NumValue(3)); !ok {
		t.Error("number reported as unhashable")
	}
	if _, ok := hashValue(vm.stringValue("s")); !ok {
		t.Error("string reported as unhashable")
	}
}
