package vm

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// String primitives
// ---------------------------------------------------------------------------

// codePointString returns the one code point starting at byte index i,
// or the single raw byte when it is not valid UTF-8.
func (vm *VM) codePointString(s string, i int) Value {
	r, size := utf8.DecodeRuneInString(s[i:])
	if r == utf8.RuneError && size <= 1 {
		return vm.stringValue(s[i : i+1])
	}
	return vm.stringValue(s[i : i+size])
}

// stringFromRange builds a string from a range subscript. Each index
// selects the whole code point starting at that byte offset.
func (vm *VM) stringFromRange(s string, start, count, step int) Value {
	var b strings.Builder
	for i := 0; i < count; i++ {
		index := start + i*step
		r, size := utf8.DecodeRuneInString(s[index:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteByte(s[index])
			continue
		}
		b.WriteString(s[index : index+size])
	}
	return vm.stringValue(b.String())
}

func stringFromCodePoint(vm *VM, args []Value) bool {
	if !validateInt(vm, args[1], "Code point") {
		return false
	}
	codePoint := int(args[1].Num())
	if codePoint < 0 {
		vm.abortFiberf("Code point cannot be negative.")
		return false
	}
	if codePoint > 0x10ffff {
		vm.abortFiberf("Code point cannot be greater than 0x10ffff.")
		return false
	}
	args[0] = vm.stringValue(string(rune(codePoint)))
	return true
}

func stringFromByte(vm *VM, args []Value) bool {
	if !validateInt(vm, args[1], "Byte") {
		return false
	}
	byteValue := int(args[1].Num())
	if byteValue < 0 {
		vm.abortFiberf("Byte cannot be negative.")
		return false
	}
	if byteValue > 0xff {
		vm.abortFiberf("Byte cannot be greater than 0xff.")
		return false
	}
	args[0] = vm.stringValue(string([]byte{byte(byteValue)}))
	return true
}

func stringPlus(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Right operand") {
		return false
	}
	args[0] = vm.stringValue(args[0].asString().value + args[1].asString().value)
	return true
}

func stringSubscript(vm *VM, args []Value) bool {
	s := args[0].asString().value

	if args[1].IsNum() {
		index := validateIndex(vm, args[1], len(s), "Subscript")
		if index == -1 {
			return false
		}
		args[0] = vm.codePointString(s, index)
		return true
	}

	if !args[1].IsRange() {
		vm.abortFiberf("Subscript must be a number or a range.")
		return false
	}

	start, count, step, ok := calculateRange(vm, args[1].asRange(), len(s))
	if !ok {
		return false
	}
	args[0] = vm.stringFromRange(s, start, count, step)
	return true
}

func stringByteAt(vm *VM, args []Value) bool {
	s := args[0].asString().value
	index := validateIndex(vm, args[1], len(s), "Index")
	if index == -1 {
		return false
	}
	args[0] = NumValue(float64(s[index]))
	return true
}

func stringByteCount(vm *VM, args []Value) bool {
	args[0] = NumValue(float64(len(args[0].asString().value)))
	return true
}

func stringCodePointAt(vm *VM, args []Value) bool {
	s := args[0].asString().value
	index := validateIndex(vm, args[1], len(s), "Index")
	if index == -1 {
		return false
	}

	// A continuation byte is not the start of a code point.
	if s[index]&0xc0 == 0x80 {
		args[0] = NumValue(-1)
		return true
	}

	r, size := utf8.DecodeRuneInString(s[index:])
	if r == utf8.RuneError && size <= 1 {
		args[0] = NumValue(float64(s[index]))
		return true
	}
	args[0] = NumValue(float64(r))
	return true
}

func stringContains(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}
	args[0] = BoolValue(strings.Contains(args[0].asString().value, args[1].asString().value))
	return true
}

func stringEndsWith(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}
	args[0] = BoolValue(strings.HasSuffix(args[0].asString().value, args[1].asString().value))
	return true
}

func stringIndexOf1(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}
	index := strings.Index(args[0].asString().value, args[1].asString().value)
	args[0] = NumValue(float64(index))
	return true
}

func stringIndexOf2(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}
	s := args[0].asString().value
	start := validateIndex(vm, args[2], len(s)+1, "Start")
	if start == -1 {
		return false
	}

	index := strings.Index(s[start:], args[1].asString().value)
	if index != -1 {
		index += start
	}
	args[0] = NumValue(float64(index))
	return true
}

func stringIterate(vm *VM, args []Value) bool {
	s := args[0].asString().value

	if args[1].IsNull() {
		if len(s) == 0 {
			args[0] = FalseValue
			return true
		}
		args[0] = NumValue(0)
		return true
	}

	if !validateInt(vm, args[1], "Iterator") {
		return false
	}
	if args[1].Num() < 0 {
		args[0] = FalseValue
		return true
	}

	// Advance to the start of the next code point, skipping continuation
	// bytes.
	index := int(args[1].Num()) + 1
	for index < len(s) && s[index]&0xc0 == 0x80 {
		index++
	}
	if index >= len(s) {
		args[0] = FalseValue
		return true
	}
	args[0] = NumValue(float64(index))
	return true
}

func stringIterateByte(vm *VM, args []Value) bool {
	s := args[0].asString().value

	if args[1].IsNull() {
		if len(s) == 0 {
			args[0] = FalseValue
			return true
		}
		args[0] = NumValue(0)
		return true
	}

	if !validateInt(vm, args[1], "Iterator") {
		return false
	}
	if args[1].Num() < 0 {
		args[0] = FalseValue
		return true
	}

	index := int(args[1].Num()) + 1
	if index >= len(s) {
		args[0] = FalseValue
		return true
	}
	args[0] = NumValue(float64(index))
	return true
}

func stringIteratorValue(vm *VM, args []Value) bool {
	s := args[0].asString().value
	index := validateIndex(vm, args[1], len(s), "Iterator")
	if index == -1 {
		return false
	}
	args[0] = vm.codePointString(s, index)
	return true
}

func stringStartsWith(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}
	args[0] = BoolValue(strings.HasPrefix(args[0].asString().value, args[1].asString().value))
	return true
}

func stringToString(vm *VM, args []Value) bool {
	return true
}
