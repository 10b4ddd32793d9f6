package vm

import (
	"strings"
	"testing"
)

func countObjects(vm *VM) int {
	n := 0
	for obj := vm.first; obj != nil; obj = obj.next {
		n++
	}
	return n
}

func TestCollectGarbageFreesUnreachable(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.collectGarbage()
	baseline := countObjects(vm)

	for i := 0; i < 100; i++ {
		vm.newString(strings.Repeat("x", 100))
	}
	if countObjects(vm) <= baseline {
		t.Fatal("allocations did not appear on the object list")
	}

	vm.collectGarbage()
	if got := countObjects(vm); got != baseline {
		t.Errorf("after collection: %d objects, want %d", got, baseline)
	}
}

func TestTempRootSurvivesCollection(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	s := vm.newString("pinned")
	vm.pushRoot(&s.Obj)
	vm.collectGarbage()
	vm.popRoot()

	if s.value != "pinned" {
		t.Errorf("rooted string corrupted: %q", s.value)
	}

	found := false
	for obj := vm.first; obj != nil; obj = obj.next {
		if obj == &s.Obj {
			found = true
		}
	}
	if !found {
		t.Error("rooted object was swept")
	}
}

func TestHandleSurvivesCollection(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	if vm.Interpret("main", `var greeting = "hello from afar"`) != ResultSuccess {
		t.Fatal("interpret failed")
	}
	vm.EnsureSlots(1)
	vm.GetVariable("main", "greeting", 0)
	handle := vm.GetSlotHandle(0)

	vm.collectGarbage()
	vm.collectGarbage()

	vm.EnsureSlots(1)
	vm.SetSlotHandle(0, handle)
	if got := vm.GetSlotString(0); got != "hello from afar" {
		t.Errorf("handled value after GC: got %q", got)
	}
	vm.ReleaseHandle(handle)
}

func TestReleaseHandleUnlinks(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.EnsureSlots(1)
	vm.SetSlotString(0, "a")
	a := vm.GetSlotHandle(0)
	vm.SetSlotString(0, "b")
	b := vm.GetSlotHandle(0)
	vm.SetSlotString(0, "c")
	c := vm.GetSlotHandle(0)

	// Release the middle of the list, then the head, then the tail.
	vm.ReleaseHandle(b)
	vm.ReleaseHandle(c)
	vm.ReleaseHandle(a)

	if vm.handles != nil {
		t.Error("handle list not empty after releasing all handles")
	}
}

func TestGCStressRunsScripts(t *testing.T) {
	var out strings.Builder
	vm := NewVM(Config{
		GCStress: true,
		WriteFn:  func(_ *VM, text string) { out.WriteString(text) },
	})
	defer vm.Free()

	source := `
		var items = []
		for (i in 0..50) {
			items.add("item %(i)")
		}
		var map = {}
		for (item in items) {
			map[item] = item.count
		}
		System.print(items.count)
		System.print(map["item 7"])
		System.print(items[3..5].join(","))
	`
	if vm.Interpret("main", source) != ResultSuccess {
		t.Fatal("script failed under GC stress")
	}
	want := "51\n6\nitem 3,item 4,item 5\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestGCStressFibers(t *testing.T) {
	var out strings.Builder
	vm := NewVM(Config{
		GCStress: true,
		WriteFn:  func(_ *VM, text string) { out.WriteString(text) },
	})
	defer vm.Free()

	source := `
		var producer = Fiber.new {
			for (i in 1..5) {
				Fiber.yield("value %(i)")
			}
		}
		while (!producer.isDone) {
			var v = producer.call()
			if (v != null) System.print(v)
		}
	`
	if vm.Interpret("main", source) != ResultSuccess {
		t.Fatal("fiber script failed under GC stress")
	}
	want := "value 1\nvalue 2\nvalue 3\nvalue 4\nvalue 5\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestCollectionResetsThreshold(t *testing.T) {
	vm := NewVM(Config{MinHeapSize: 1024, HeapGrowthPercent: 50})
	defer vm.Free()

	vm.collectGarbage()
	if vm.nextGC < 1024 {
		t.Errorf("threshold below floor: %d", vm.nextGC)
	}
	if vm.nextGC < vm.bytesAllocated {
		t.Errorf("threshold %d below live size %d", vm.nextGC, vm.bytesAllocated)
	}
}
