package vm

import "time"

// ---------------------------------------------------------------------------
// Object, Class, Bool, Null, System primitives
// ---------------------------------------------------------------------------

func objectNot(vm *VM, args []Value) bool {
	args[0] = FalseValue
	return true
}

func objectEqEq(vm *VM, args []Value) bool {
	args[0] = BoolValue(valuesEqual(args[0], args[1]))
	return true
}

func objectBangEq(vm *VM, args []Value) bool {
	args[0] = BoolValue(!valuesEqual(args[0], args[1]))
	return true
}

func objectIs(vm *VM, args []Value) bool {
	if !args[1].IsClass() {
		vm.abortFiberf("Right operand must be a class.")
		return false
	}

	class := vm.classOf(args[0])
	target := args[1].asClass()

	// Walk the superclass chain looking for the target.
	for class != nil {
		if class == target {
			args[0] = TrueValue
			return true
		}
		class = class.superclass
	}
	args[0] = FalseValue
	return true
}

func objectToString(vm *VM, args []Value) bool {
	name := vm.classOf(args[0]).Name()
	args[0] = vm.stringValue("instance of " + name)
	return true
}

func objectType(vm *VM, args []Value) bool {
	args[0] = vm.classOf(args[0]).val()
	return true
}

func objectSame(vm *VM, args []Value) bool {
	args[0] = BoolValue(Same(args[1], args[2]))
	return true
}

func classGetName(vm *VM, args []Value) bool {
	args[0] = args[0].asClass().name.val()
	return true
}

func classSupertype(vm *VM, args []Value) bool {
	class := args[0].asClass()
	if class.superclass == nil {
		args[0] = NullValue
	} else {
		args[0] = class.superclass.val()
	}
	return true
}

func classToString(vm *VM, args []Value) bool {
	args[0] = args[0].asClass().name.val()
	return true
}

func classAttributes(vm *VM, args []Value) bool {
	args[0] = args[0].asClass().attributes
	return true
}

func boolToString(vm *VM, args []Value) bool {
	if args[0].Bool() {
		args[0] = vm.stringValue("true")
	} else {
		args[0] = vm.stringValue("false")
	}
	return true
}

func boolNot(vm *VM, args []Value) bool {
	args[0] = BoolValue(!args[0].Bool())
	return true
}

func nullNot(vm *VM, args []Value) bool {
	args[0] = TrueValue
	return true
}

func nullToString(vm *VM, args []Value) bool {
	args[0] = vm.stringValue("null")
	return true
}

var processStart = time.Now()

func systemClock(vm *VM, args []Value) bool {
	args[0] = NumValue(time.Since(processStart).Seconds())
	return true
}

func systemGC(vm *VM, args []Value) bool {
	vm.collectGarbage()
	args[0] = NullValue
	return true
}

func systemIsDebugBuild(vm *VM, args []Value) bool {
	// Release and debug interpreters share one build here.
	args[0] = FalseValue
	return true
}

func systemWriteString(vm *VM, args []Value) bool {
	vm.write(args[1].asString().value)
	args[0] = args[1]
	return true
}
