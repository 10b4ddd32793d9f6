package vm

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func TestSlotRoundTrips(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.EnsureSlots(4)
	if vm.SlotCount() < 4 {
		t.Fatalf("SlotCount: got %d, want >= 4", vm.SlotCount())
	}

	vm.SetSlotBool(0, true)
	vm.SetSlotDouble(1, 3.25)
	vm.SetSlotString(2, "hello")
	vm.SetSlotNull(3)

	if vm.GetSlotType(0) != SlotBool || !vm.GetSlotBool(0) {
		t.Error("bool slot")
	}
	if vm.GetSlotType(1) != SlotNum || vm.GetSlotDouble(1) != 3.25 {
		t.Error("num slot")
	}
	if vm.GetSlotType(2) != SlotString || vm.GetSlotString(2) != "hello" {
		t.Error("string slot")
	}
	if vm.GetSlotType(3) != SlotNull {
		t.Error("null slot")
	}
}

func TestSlotBytes(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.EnsureSlots(1)
	data := []byte{0x00, 0xff, 0x7f, 0x00}
	vm.SetSlotBytes(0, data)

	got := vm.GetSlotBytes(0)
	if len(got) != len(data) {
		t.Fatalf("length: got %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Errorf("byte %d: got %x, want %x", i, got[i], data[i])
		}
	}
}

func TestListSlotOperations(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.EnsureSlots(2)
	vm.SetSlotNewList(0)
	if vm.GetSlotType(0) != SlotList {
		t.Fatal("new list slot type")
	}

	for i := 0; i < 3; i++ {
		vm.SetSlotDouble(1, float64(i*10))
		vm.InsertInList(0, -1, 1)
	}
	if vm.GetListCount(0) != 3 {
		t.Fatalf("list count: got %d", vm.GetListCount(0))
	}

	vm.GetListElement(0, 1, 1)
	if vm.GetSlotDouble(1) != 10 {
		t.Errorf("element 1: got %g", vm.GetSlotDouble(1))
	}
	vm.GetListElement(0, -1, 1)
	if vm.GetSlotDouble(1) != 20 {
		t.Errorf("element -1: got %g", vm.GetSlotDouble(1))
	}

	vm.SetSlotDouble(1, 99)
	vm.SetListElement(0, 0, 1)
	vm.GetListElement(0, 0, 1)
	if vm.GetSlotDouble(1) != 99 {
		t.Errorf("after set: got %g", vm.GetSlotDouble(1))
	}

	// Insert at the front shifts the rest along.
	vm.SetSlotDouble(1, 7)
	vm.InsertInList(0, 0, 1)
	vm.GetListElement(0, 0, 1)
	if vm.GetSlotDouble(1) != 7 {
		t.Errorf("front insert: got %g", vm.GetSlotDouble(1))
	}
	if vm.GetListCount(0) != 4 {
		t.Errorf("count after insert: got %d", vm.GetListCount(0))
	}
}

func TestMapSlotOperations(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	vm.EnsureSlots(3)
	vm.SetSlotNewMap(0)
	if vm.GetSlotType(0) != SlotMap {
		t.Fatal("new map slot type")
	}
	if vm.GetMapCount(0) != 0 {
		t.Fatal("new map not empty")
	}

	vm.SetSlotString(1, "answer")
	vm.SetSlotDouble(2, 42)
	vm.SetMapValue(0, 1, 2)

	if vm.GetMapCount(0) != 1 {
		t.Errorf("map count: got %d", vm.GetMapCount(0))
	}
	vm.SetSlotString(1, "answer")
	if !vm.GetMapContainsKey(0, 1) {
		t.Error("containsKey missed inserted key")
	}
	vm.GetMapValue(0, 1, 2)
	if vm.GetSlotDouble(2) != 42 {
		t.Errorf("map value: got %g", vm.GetSlotDouble(2))
	}

	// A missing key reads as null.
	vm.SetSlotString(1, "absent")
	vm.GetMapValue(0, 1, 2)
	if vm.GetSlotType(2) != SlotNull {
		t.Error("absent key did not read as null")
	}

	vm.SetSlotString(1, "answer")
	vm.RemoveMapValue(0, 1, 2)
	if vm.GetSlotDouble(2) != 42 {
		t.Errorf("removed value: got %g", vm.GetSlotDouble(2))
	}
	if vm.GetMapCount(0) != 0 {
		t.Errorf("map count after remove: got %d", vm.GetMapCount(0))
	}
}

func TestGetVariable(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	if vm.Interpret("main", `
		var answer = 42
		var label = "ok"
	`) != ResultSuccess {
		t.Fatal("interpret failed")
	}

	vm.EnsureSlots(1)
	vm.GetVariable("main", "answer", 0)
	if vm.GetSlotDouble(0) != 42 {
		t.Errorf("answer: got %g", vm.GetSlotDouble(0))
	}
	vm.GetVariable("main", "label", 0)
	if vm.GetSlotString(0) != "ok" {
		t.Errorf("label: got %q", vm.GetSlotString(0))
	}

	if !vm.HasVariable("main", "answer") {
		t.Error("HasVariable missed a defined variable")
	}
	if vm.HasVariable("main", "nothing") {
		t.Error("HasVariable reported an undefined variable")
	}
	if !vm.HasModule("main") {
		t.Error("HasModule missed a loaded module")
	}
	if vm.HasModule("other") {
		t.Error("HasModule reported an unloaded module")
	}
}

func TestCallHandle(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	if vm.Interpret("main", `
		class Calc {
			static add(a, b) { a + b }
			static describe() { "calc v1" }
		}
	`) != ResultSuccess {
		t.Fatal("interpret failed")
	}

	vm.EnsureSlots(1)
	vm.GetVariable("main", "Calc", 0)
	calc := vm.GetSlotHandle(0)
	add := vm.MakeCallHandle("add(_,_)")
	describe := vm.MakeCallHandle("describe()")

	vm.EnsureSlots(3)
	vm.SetSlotHandle(0, calc)
	vm.SetSlotDouble(1, 19)
	vm.SetSlotDouble(2, 23)
	if vm.Call(add) != ResultSuccess {
		t.Fatal("call add failed")
	}
	if got := vm.GetSlotDouble(0); got != 42 {
		t.Errorf("add result: got %g", got)
	}

	vm.EnsureSlots(1)
	vm.SetSlotHandle(0, calc)
	if vm.Call(describe) != ResultSuccess {
		t.Fatal("call describe failed")
	}
	if got := vm.GetSlotString(0); got != "calc v1" {
		t.Errorf("describe result: got %q", got)
	}

	vm.ReleaseHandle(describe)
	vm.ReleaseHandle(add)
	vm.ReleaseHandle(calc)
}

func TestCallHandleRuntimeError(t *testing.T) {
	var errs []string
	vm := NewVM(Config{
		ErrorFn: func(_ *VM, _ ErrorKind, _ string, _ int, message string) {
			errs = append(errs, message)
		},
	})
	defer vm.Free()

	if vm.Interpret("main", `
		class Boom {
			static go() { Fiber.abort("kaboom") }
		}
	`) != ResultSuccess {
		t.Fatal("interpret failed")
	}

	vm.EnsureSlots(1)
	vm.GetVariable("main", "Boom", 0)
	boom := vm.GetSlotHandle(0)
	go_ := vm.MakeCallHandle("go()")

	vm.EnsureSlots(1)
	vm.SetSlotHandle(0, boom)
	if vm.Call(go_) != ResultRuntimeError {
		t.Error("aborting call did not report a runtime error")
	}
	found := false
	for _, e := range errs {
		if strings.Contains(e, "kaboom") {
			found = true
		}
	}
	if !found {
		t.Errorf("abort message not reported: %v", errs)
	}

	vm.ReleaseHandle(go_)
	vm.ReleaseHandle(boom)
}

// ---------------------------------------------------------------------------
// Foreign classes
// ---------------------------------------------------------------------------

func counterValue(data []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(data))
}

func setCounterValue(data []byte, v float64) {
	binary.LittleEndian.PutUint64(data, math.Float64bits(v))
}

func TestForeignClass(t *testing.T) {
	var out strings.Builder
	finalized := 0

	vm := NewVM(Config{
		WriteFn: func(_ *VM, text string) { out.WriteString(text) },
		BindForeignClassFn: func(_ *VM, module, className string) ForeignClassMethods {
			if module != "main" || className != "Counter" {
				return ForeignClassMethods{}
			}
			return ForeignClassMethods{
				Allocate: func(vm *VM) {
					data := vm.SetSlotNewForeign(0, 0, 8)
					setCounterValue(data, vm.GetSlotDouble(1))
				},
				Finalize: func(_ []byte) { finalized++ },
			}
		},
		BindForeignMethodFn: func(_ *VM, module, className string, isStatic bool, signature string) ForeignMethodFn {
			if module != "main" || className != "Counter" || isStatic {
				return nil
			}
			switch signature {
			case "increment(_)":
				return func(vm *VM) {
					data := vm.GetSlotForeign(0)
					setCounterValue(data, counterValue(data)+vm.GetSlotDouble(1))
					vm.SetSlotNull(0)
				}
			case "value":
				return func(vm *VM) {
					vm.SetSlotDouble(0, counterValue(vm.GetSlotForeign(0)))
				}
			}
			return nil
		},
	})

	source := `
		foreign class Counter {
			construct new(start) {}
			foreign increment(amount)
			foreign value
		}
		var c = Counter.new(10)
		c.increment(5)
		c.increment(2.5)
		System.print(c.value)
	`
	if vm.Interpret("main", source) != ResultSuccess {
		t.Fatal("foreign class script failed")
	}
	if got := strings.TrimSpace(out.String()); got != "17.5" {
		t.Errorf("counter value: got %q", got)
	}

	vm.Free()
	if finalized == 0 {
		t.Error("finalizer never ran")
	}
}

func TestForeignMethodAbort(t *testing.T) {
	var errs []string
	vm := NewVM(Config{
		ErrorFn: func(_ *VM, _ ErrorKind, _ string, _ int, message string) {
			errs = append(errs, message)
		},
		BindForeignMethodFn: func(_ *VM, _, className string, isStatic bool, signature string) ForeignMethodFn {
			if className == "Guard" && isStatic && signature == "check(_)" {
				return func(vm *VM) {
					if vm.GetSlotType(1) != SlotNum {
						vm.EnsureSlots(1)
						vm.SetSlotString(0, "check expects a number")
						vm.AbortFiber(0)
						return
					}
					vm.SetSlotBool(0, true)
				}
			}
			return nil
		},
	})
	defer vm.Free()

	result := vm.Interpret("main", `
		class Guard {
			foreign static check(n)
		}
		Guard.check("nope")
	`)
	if result != ResultRuntimeError {
		t.Fatal("aborting foreign method did not fail the fiber")
	}
	found := false
	for _, e := range errs {
		if strings.Contains(e, "check expects a number") {
			found = true
		}
	}
	if !found {
		t.Errorf("abort message not reported: %v", errs)
	}
}

func TestUnboundForeignMethodErrors(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	result := vm.Interpret("main", `
		class Orphan {
			foreign static lost()
		}
	`)
	if result == ResultSuccess {
		t.Error("unbound foreign method did not error")
	}
}
