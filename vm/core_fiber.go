package vm

// ---------------------------------------------------------------------------
// Fiber primitives
// ---------------------------------------------------------------------------

func fiberNew(vm *VM, args []Value) bool {
	if !validateFn(vm, args[1], "Argument") {
		return false
	}

	closure := args[1].asClosure()
	if closure.fn.arity > 1 {
		vm.abortFiberf("Function cannot take more than one parameter.")
		return false
	}

	args[0] = vm.newFiber(closure).val()
	return true
}

func fiberAbort(vm *VM, args []Value) bool {
	vm.fiber.error = args[1]

	// Aborting with null is a no-op rather than an error.
	return args[1].IsNull()
}

func fiberCurrent(vm *VM, args []Value) bool {
	args[0] = vm.fiber.val()
	return true
}

func fiberSuspend(vm *VM, args []Value) bool {
	// The interpreter sees a nil fiber and returns to the host.
	vm.fiber = nil
	vm.apiStack = nil
	return false
}

func fiberYield(vm *VM, args []Value) bool {
	current := vm.fiber
	vm.fiber = current.caller

	current.caller = nil
	current.state = fiberOther

	if vm.fiber != nil {
		// The caller's call() returns null.
		vm.fiber.stack[vm.fiber.stackTop-1] = NullValue
	}
	return false
}

func fiberYield1(vm *VM, args []Value) bool {
	current := vm.fiber
	vm.fiber = current.caller

	current.caller = nil
	current.state = fiberOther

	if vm.fiber != nil {
		// The caller's call() returns the yielded value. The yielding
		// fiber keeps one slot for the result of its own yield call.
		vm.fiber.stack[vm.fiber.stackTop-1] = args[1]
		current.stackTop--
	}
	return false
}

// runFiber switches execution to fiber for call, try, or transfer. False
// with no error set means the switch happened.
func runFiber(vm *VM, fiber *ObjFiber, args []Value, isCall, hasValue bool, verb string) bool {
	if fiber.hasError() {
		vm.abortFiberf("Cannot %s an aborted fiber.", verb)
		return false
	}

	if isCall {
		if fiber.caller != nil {
			vm.abortFiberf("Fiber has already been called.")
			return false
		}
		if fiber.state == fiberRoot {
			vm.abortFiberf("Cannot call root fiber.")
			return false
		}
		fiber.caller = vm.fiber
	}

	if len(fiber.frames) == 0 {
		vm.abortFiberf("Cannot %s a finished fiber.", verb)
		return false
	}

	// The calling fiber keeps one slot for the eventual result; a passed
	// value occupied a second one.
	if hasValue {
		vm.fiber.stackTop--
	}

	if len(fiber.frames) == 1 && fiber.frames[0].ip == 0 {
		// The fiber has not started yet; bind the value to its function's
		// parameter if it takes one.
		if fiber.frames[0].closure.fn.arity == 1 {
			if hasValue {
				fiber.stack[fiber.stackTop] = args[1]
			} else {
				fiber.stack[fiber.stackTop] = NullValue
			}
			fiber.stackTop++
		}
	} else {
		// Resuming: the value becomes the result of the fiber's pending
		// yield or transfer call.
		if hasValue {
			fiber.stack[fiber.stackTop-1] = args[1]
		} else {
			fiber.stack[fiber.stackTop-1] = NullValue
		}
	}

	vm.fiber = fiber
	return false
}

func fiberCall(vm *VM, args []Value) bool {
	return runFiber(vm, args[0].asFiber(), args, true, false, "call")
}

func fiberCall1(vm *VM, args []Value) bool {
	return runFiber(vm, args[0].asFiber(), args, true, true, "call")
}

func fiberError(vm *VM, args []Value) bool {
	args[0] = args[0].asFiber().error
	return true
}

func fiberIsDone(vm *VM, args []Value) bool {
	fiber := args[0].asFiber()
	args[0] = BoolValue(len(fiber.frames) == 0 || fiber.hasError())
	return true
}

func fiberTransfer(vm *VM, args []Value) bool {
	return runFiber(vm, args[0].asFiber(), args, false, false, "transfer to")
}

func fiberTransfer1(vm *VM, args []Value) bool {
	return runFiber(vm, args[0].asFiber(), args, false, true, "transfer to")
}

func fiberTransferError(vm *VM, args []Value) bool {
	runFiber(vm, args[0].asFiber(), args, false, true, "transfer to")
	vm.fiber.error = args[1]
	return false
}

func primFiberTry(vm *VM, args []Value) bool {
	runFiber(vm, args[0].asFiber(), args, true, false, "try")
	if !vm.fiber.hasError() {
		vm.fiber.state = fiberTry
	}
	return false
}

func fiberTry1(vm *VM, args []Value) bool {
	runFiber(vm, args[0].asFiber(), args, true, true, "try")
	if !vm.fiber.hasError() {
		vm.fiber.state = fiberTry
	}
	return false
}

// ---------------------------------------------------------------------------
// Fn primitives
// ---------------------------------------------------------------------------

func fnNew(vm *VM, args []Value) bool {
	if !validateFn(vm, args[1], "Argument") {
		return false
	}
	args[0] = args[1]
	return true
}

func fnArity(vm *VM, args []Value) bool {
	args[0] = NumValue(float64(args[0].asClosure().fn.arity))
	return true
}

func fnToString(vm *VM, args []Value) bool {
	args[0] = vm.stringValue("<fn>")
	return true
}
