package vm

// ---------------------------------------------------------------------------
// Map and Range primitives
// ---------------------------------------------------------------------------

func mapNew(vm *VM, args []Value) bool {
	args[0] = vm.newMap().val()
	return true
}

func mapSubscript(vm *VM, args []Value) bool {
	if !validateKey(vm, args[1]) {
		return false
	}

	value := mapGet(args[0].asMap(), args[1])
	if value.IsUndefined() {
		args[0] = NullValue
	} else {
		args[0] = value
	}
	return true
}

func mapSubscriptSetter(vm *VM, args []Value) bool {
	if !validateKey(vm, args[1]) {
		return false
	}
	vm.mapSet(args[0].asMap(), args[1], args[2])
	args[0] = args[2]
	return true
}

// mapAddCore returns the map itself so the compiler can chain inserts when
// building a map literal.
func mapAddCore(vm *VM, args []Value) bool {
	if !validateKey(vm, args[1]) {
		return false
	}
	vm.mapSet(args[0].asMap(), args[1], args[2])
	return true
}

func mapClearPrimitive(vm *VM, args []Value) bool {
	vm.mapClear(args[0].asMap())
	args[0] = NullValue
	return true
}

func mapContainsKey(vm *VM, args []Value) bool {
	if !validateKey(vm, args[1]) {
		return false
	}
	args[0] = BoolValue(!mapGet(args[0].asMap(), args[1]).IsUndefined())
	return true
}

func mapCount(vm *VM, args []Value) bool {
	args[0] = NumValue(float64(args[0].asMap().count))
	return true
}

// mapIterate walks the entry array; the iterator is the index of the
// current occupied slot.
func mapIterate(vm *VM, args []Value) bool {
	m := args[0].asMap()

	if m.count == 0 {
		args[0] = FalseValue
		return true
	}

	index := 0
	if !args[1].IsNull() {
		if !validateInt(vm, args[1], "Iterator") {
			return false
		}
		if args[1].Num() < 0 {
			args[0] = FalseValue
			return true
		}
		index = int(args[1].Num())
		if index >= len(m.entries) {
			args[0] = FalseValue
			return true
		}
		index++
	}

	for ; index < len(m.entries); index++ {
		if !m.entries[index].key.IsUndefined() {
			args[0] = NumValue(float64(index))
			return true
		}
	}
	args[0] = FalseValue
	return true
}

func mapKeyIteratorValue(vm *VM, args []Value) bool {
	m := args[0].asMap()
	index := validateIndex(vm, args[1], len(m.entries), "Iterator")
	if index == -1 {
		return false
	}

	entry := &m.entries[index]
	if entry.key.IsUndefined() {
		vm.abortFiberf("Invalid map iterator.")
		return false
	}
	args[0] = entry.key
	return true
}

func mapValueIteratorValue(vm *VM, args []Value) bool {
	m := args[0].asMap()
	index := validateIndex(vm, args[1], len(m.entries), "Iterator")
	if index == -1 {
		return false
	}

	entry := &m.entries[index]
	if entry.key.IsUndefined() {
		vm.abortFiberf("Invalid map iterator.")
		return false
	}
	args[0] = entry.value
	return true
}

func mapRemovePrimitive(vm *VM, args []Value) bool {
	if !validateKey(vm, args[1]) {
		return false
	}
	args[0] = vm.mapRemove(args[0].asMap(), args[1])
	return true
}

// ---------------------------------------------------------------------------
// Range primitives
// ---------------------------------------------------------------------------

func rangeFrom(vm *VM, args []Value) bool {
	args[0] = NumValue(args[0].asRange().from)
	return true
}

func rangeTo(vm *VM, args []Value) bool {
	args[0] = NumValue(args[0].asRange().to)
	return true
}

func rangeMin(vm *VM, args []Value) bool {
	r := args[0].asRange()
	if r.from < r.to {
		args[0] = NumValue(r.from)
	} else {
		args[0] = NumValue(r.to)
	}
	return true
}

func rangeMax(vm *VM, args []Value) bool {
	r := args[0].asRange()
	if r.from > r.to {
		args[0] = NumValue(r.from)
	} else {
		args[0] = NumValue(r.to)
	}
	return true
}

func rangeIsInclusive(vm *VM, args []Value) bool {
	args[0] = BoolValue(args[0].asRange().isInclusive)
	return true
}

func rangeIterate(vm *VM, args []Value) bool {
	r := args[0].asRange()

	// An empty exclusive range never produces a value.
	if r.from == r.to && !r.isInclusive {
		args[0] = FalseValue
		return true
	}

	if args[1].IsNull() {
		args[0] = NumValue(r.from)
		return true
	}

	if !validateNum(vm, args[1], "Iterator") {
		return false
	}

	iterator := args[1].Num()
	if r.from < r.to {
		iterator++
		if iterator > r.to {
			args[0] = FalseValue
			return true
		}
	} else {
		iterator--
		if iterator < r.to {
			args[0] = FalseValue
			return true
		}
	}

	if !r.isInclusive && iterator == r.to {
		args[0] = FalseValue
		return true
	}
	args[0] = NumValue(iterator)
	return true
}

func rangeIteratorValue(vm *VM, args []Value) bool {
	args[0] = args[1]
	return true
}

func rangeToString(vm *VM, args []Value) bool {
	r := args[0].asRange()
	op := "..."
	if r.isInclusive {
		op = ".."
	}
	args[0] = vm.stringValue(numToDisplay(r.from) + op + numToDisplay(r.to))
	return true
}
