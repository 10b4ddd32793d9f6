package vm

// ---------------------------------------------------------------------------
// List primitives
// ---------------------------------------------------------------------------

func listFilled(vm *VM, args []Value) bool {
	if !validateInt(vm, args[1], "Size") {
		return false
	}
	if args[1].Num() < 0 {
		vm.abortFiberf("Size cannot be negative.")
		return false
	}

	size := int(args[1].Num())
	list := vm.newList(size)
	for i := 0; i < size; i++ {
		list.elements[i] = args[2]
	}
	args[0] = list.val()
	return true
}

func listNew(vm *VM, args []Value) bool {
	args[0] = vm.newList(0).val()
	return true
}

func listSubscript(vm *VM, args []Value) bool {
	list := args[0].asList()

	if args[1].IsNum() {
		index := validateIndex(vm, args[1], len(list.elements), "Subscript")
		if index == -1 {
			return false
		}
		args[0] = list.elements[index]
		return true
	}

	if !args[1].IsRange() {
		vm.abortFiberf("Subscript must be a number or a range.")
		return false
	}

	start, count, step, ok := calculateRange(vm, args[1].asRange(), len(list.elements))
	if !ok {
		return false
	}

	result := vm.newList(count)
	for i := 0; i < count; i++ {
		result.elements[i] = list.elements[start+i*step]
	}
	args[0] = result.val()
	return true
}

func listSubscriptSetter(vm *VM, args []Value) bool {
	list := args[0].asList()
	index := validateIndex(vm, args[1], len(list.elements), "Subscript")
	if index == -1 {
		return false
	}
	list.elements[index] = args[2]
	args[0] = args[2]
	return true
}

func listAdd(vm *VM, args []Value) bool {
	list := args[0].asList()
	vm.reallocate(0, sizeValue)
	list.elements = append(list.elements, args[1])
	args[0] = args[1]
	return true
}

// listAddCore returns the list itself so the compiler can chain adds when
// building a list literal.
func listAddCore(vm *VM, args []Value) bool {
	list := args[0].asList()
	vm.reallocate(0, sizeValue)
	list.elements = append(list.elements, args[1])
	return true
}

func listClear(vm *VM, args []Value) bool {
	list := args[0].asList()
	vm.reallocate(cap(list.elements)*sizeValue, 0)
	list.elements = nil
	args[0] = NullValue
	return true
}

func listCount(vm *VM, args []Value) bool {
	args[0] = NumValue(float64(len(args[0].asList().elements)))
	return true
}

func listInsert(vm *VM, args []Value) bool {
	list := args[0].asList()

	// count is a valid index here, to insert at the end.
	index := validateIndex(vm, args[1], len(list.elements)+1, "Index")
	if index == -1 {
		return false
	}

	vm.reallocate(0, sizeValue)
	list.elements = append(list.elements, NullValue)
	copy(list.elements[index+1:], list.elements[index:])
	list.elements[index] = args[2]
	args[0] = args[2]
	return true
}

func listIterate(vm *VM, args []Value) bool {
	list := args[0].asList()

	if args[1].IsNull() {
		if len(list.elements) == 0 {
			args[0] = FalseValue
			return true
		}
		args[0] = NumValue(0)
		return true
	}

	if !validateInt(vm, args[1], "Iterator") {
		return false
	}
	index := args[1].Num()
	if index < 0 || index >= float64(len(list.elements)-1) {
		args[0] = FalseValue
		return true
	}
	args[0] = NumValue(index + 1)
	return true
}

func listIteratorValue(vm *VM, args []Value) bool {
	list := args[0].asList()
	index := validateIndex(vm, args[1], len(list.elements), "Iterator")
	if index == -1 {
		return false
	}
	args[0] = list.elements[index]
	return true
}

func listRemoveAt(vm *VM, args []Value) bool {
	list := args[0].asList()
	index := validateIndex(vm, args[1], len(list.elements), "Index")
	if index == -1 {
		return false
	}

	removed := list.elements[index]
	copy(list.elements[index:], list.elements[index+1:])
	list.elements = list.elements[:len(list.elements)-1]
	vm.reallocate(sizeValue, 0)
	args[0] = removed
	return true
}

func listRemoveValue(vm *VM, args []Value) bool {
	list := args[0].asList()
	for i, element := range list.elements {
		if valuesEqual(element, args[1]) {
			removed := list.elements[i]
			copy(list.elements[i:], list.elements[i+1:])
			list.elements = list.elements[:len(list.elements)-1]
			vm.reallocate(sizeValue, 0)
			args[0] = removed
			return true
		}
	}
	args[0] = NullValue
	return true
}

func listIndexOf(vm *VM, args []Value) bool {
	list := args[0].asList()
	for i, element := range list.elements {
		if valuesEqual(element, args[1]) {
			args[0] = NumValue(float64(i))
			return true
		}
	}
	args[0] = NumValue(-1)
	return true
}

func listSwap(vm *VM, args []Value) bool {
	list := args[0].asList()
	indexA := validateIndex(vm, args[1], len(list.elements), "Index 0")
	if indexA == -1 {
		return false
	}
	indexB := validateIndex(vm, args[2], len(list.elements), "Index 1")
	if indexB == -1 {
		return false
	}

	list.elements[indexA], list.elements[indexB] = list.elements[indexB], list.elements[indexA]
	args[0] = NullValue
	return true
}
