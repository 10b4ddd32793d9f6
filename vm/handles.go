package vm

// ---------------------------------------------------------------------------
// Handles: host references that survive garbage collection
// ---------------------------------------------------------------------------

// Handle pins a value for the host. Handled values are GC roots until
// released, so every handle must eventually be passed to ReleaseHandle.
type Handle struct {
	value Value

	prev *Handle
	next *Handle
}

func (vm *VM) makeHandle(value Value) *Handle {
	handle := &Handle{value: value}

	if vm.handles != nil {
		vm.handles.prev = handle
	}
	handle.next = vm.handles
	vm.handles = handle
	return handle
}

// GetSlotHandle creates a handle for the value in the given slot.
func (vm *VM) GetSlotHandle(slot int) *Handle {
	return vm.makeHandle(vm.slot(slot))
}

// SetSlotHandle stores the handled value into the given slot.
func (vm *VM) SetSlotHandle(slot int, handle *Handle) {
	vm.setSlot(slot, handle.value)
}

// ReleaseHandle unpins the value so the collector may reclaim it.
func (vm *VM) ReleaseHandle(handle *Handle) {
	if handle.prev != nil {
		handle.prev.next = handle.next
	}
	if handle.next != nil {
		handle.next.prev = handle.prev
	}
	if vm.handles == handle {
		vm.handles = handle.next
	}
	handle.prev = nil
	handle.next = nil
	handle.value = NullValue
}

// MakeCallHandle creates a handle for invoking a method with the given
// signature. The receiver and arguments are passed through the slots; the
// handle itself is a little stub function that issues the call.
func (vm *VM) MakeCallHandle(signature string) *Handle {
	numParams := 0
	if len(signature) > 0 && signature[len(signature)-1] == ')' {
		for i := len(signature) - 1; i > 0 && signature[i] != '('; i-- {
			if signature[i] == '_' {
				numParams++
			}
		}
	}
	if len(signature) > 0 && signature[0] == '[' {
		for i := 0; i < len(signature) && signature[i] != ']'; i++ {
			if signature[i] == '_' {
				numParams++
			}
		}
	}

	symbol := vm.methodNames.Ensure(signature)

	// The stub assumes the receiver and arguments are already on the
	// stack and simply dispatches.
	fn := vm.newFunction(nil, numParams+1)
	vm.pushRoot(&fn.Obj)
	handle := vm.makeHandle(vm.newClosure(fn).val())
	vm.popRoot()

	fn.code = append(fn.code,
		byte(OpCall0)+byte(numParams),
		byte(symbol>>8), byte(symbol),
		byte(OpReturn),
		byte(OpEnd))
	fn.debug.sourceLines = append(fn.debug.sourceLines, 0, 0, 0, 0, 0)
	fn.debug.name = signature
	vm.reallocate(0, len(fn.code))

	return handle
}

// Call invokes the method referred to by a call handle created with
// MakeCallHandle. The receiver and arguments must have been placed in
// slots 0 through arity first.
func (vm *VM) Call(method *Handle) InterpretResult {
	closure := method.value.asClosure()

	// The stack layout below slot arity is exactly the stub's call
	// window; drop any extra temporary slots.
	vm.apiStack = nil
	fiber := vm.fiber
	fiber.stackTop = closure.fn.maxSlots

	vm.callFunction(fiber, closure, 0)
	result := vm.runInterpreter(fiber)

	if vm.fiber != nil {
		vm.apiStack = vm.fiber.stack
		vm.apiStackStart = 0
	}
	return result
}
