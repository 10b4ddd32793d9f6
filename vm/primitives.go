package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Primitive argument validation
// ---------------------------------------------------------------------------

// The validators abort the running fiber with a descriptive message when
// an argument has the wrong shape. argName names the argument in the
// message, capitalized ("Index", "Count").

func (vm *VM) abortFiberf(format string, args ...any) {
	vm.fiber.error = vm.stringValue(fmt.Sprintf(format, args...))
}

func validateFn(vm *VM, arg Value, argName string) bool {
	if arg.IsClosure() {
		return true
	}
	vm.abortFiberf("%s must be a function.", argName)
	return false
}

func validateNum(vm *VM, arg Value, argName string) bool {
	if arg.IsNum() {
		return true
	}
	vm.abortFiberf("%s must be a number.", argName)
	return false
}

func validateIntValue(vm *VM, value float64, argName string) bool {
	if math.Trunc(value) == value {
		return true
	}
	vm.abortFiberf("%s must be an integer.", argName)
	return false
}

func validateInt(vm *VM, arg Value, argName string) bool {
	if !validateNum(vm, arg, argName) {
		return false
	}
	return validateIntValue(vm, arg.Num(), argName)
}

func validateKey(vm *VM, arg Value) bool {
	if arg.IsBool() || arg.IsClass() || arg.IsNull() || arg.IsNum() ||
		arg.IsRange() || arg.IsString() {
		return true
	}
	vm.abortFiberf("Key must be a value type.")
	return false
}

func validateString(vm *VM, arg Value, argName string) bool {
	if arg.IsString() {
		return true
	}
	vm.abortFiberf("%s must be a string.", argName)
	return false
}

// validateIndexValue range-checks an integral index, wrapping a negative
// one from the end. Returns -1 on error.
func validateIndexValue(vm *VM, count int, value float64, argName string) int {
	if !validateIntValue(vm, value, argName) {
		return -1
	}
	index := int(value)
	if index < 0 {
		index += count
	}
	if index >= 0 && index < count {
		return index
	}
	vm.abortFiberf("%s out of bounds.", argName)
	return -1
}

// validateIndex checks that arg is an integer within [0, count), after
// wrapping negatives. Returns -1 on error.
func validateIndex(vm *VM, arg Value, count int, argName string) int {
	if !validateNum(vm, arg, argName) {
		return -1
	}
	return validateIndexValue(vm, count, arg.Num(), argName)
}

// calculateRange resolves a range used as a subscript over count
// elements. Returns the start index, the number of elements, and the
// direction of iteration.
func calculateRange(vm *VM, r *ObjRange, count int) (start, length, step int, ok bool) {
	// An empty range at the very end of the sequence is allowed.
	emptyTo := float64(count)
	if r.isInclusive {
		emptyTo = -1
	}
	if r.from == float64(count) && r.to == emptyTo {
		return 0, 0, 0, true
	}

	from := validateIndexValue(vm, count, r.from, "Range start")
	if from == -1 {
		return 0, 0, 0, false
	}

	if !validateIntValue(vm, r.to, "Range end") {
		return 0, 0, 0, false
	}
	to := int(r.to)
	if to < 0 {
		to += count
	}

	if !r.isInclusive {
		// An exclusive range with equal endpoints is empty.
		if to == from {
			return from, 0, 0, true
		}
		// Shift the endpoint inward to make it inclusive in either
		// direction.
		if to >= from {
			to--
		} else {
			to++
		}
	}

	if to < 0 || to >= count {
		vm.abortFiberf("Range end out of bounds.")
		return 0, 0, 0, false
	}

	length = from - to
	if length < 0 {
		length = -length
	}
	length++
	step = 1
	if from > to {
		step = -1
	}
	return from, length, step, true
}
