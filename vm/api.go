package vm

// ---------------------------------------------------------------------------
// Slot API: how the host exchanges values with the VM
// ---------------------------------------------------------------------------

// SlotType classifies the value in an API slot for hosts that cannot know
// it statically.
type SlotType int

const (
	SlotBool SlotType = iota
	SlotNum
	SlotForeign
	SlotList
	SlotMap
	SlotNull
	SlotString
	SlotUnknown
)

func (vm *VM) slot(i int) Value {
	return vm.apiStack[vm.apiStackStart+i]
}

func (vm *VM) setSlot(i int, v Value) {
	vm.apiStack[vm.apiStackStart+i] = v
}

// SlotCount returns the number of slots currently available.
func (vm *VM) SlotCount() int {
	if vm.apiStack == nil {
		return 0
	}
	return vm.fiber.stackTop - vm.apiStackStart
}

// EnsureSlots grows the slot window to at least numSlots. Outside a
// foreign call this sets up a scratch fiber to hold the slots.
func (vm *VM) EnsureSlots(numSlots int) {
	if vm.apiStack == nil {
		vm.fiber = vm.newFiber(nil)
		vm.apiStack = vm.fiber.stack
		vm.apiStackStart = 0
	}

	currentSize := vm.fiber.stackTop - vm.apiStackStart
	if currentSize >= numSlots {
		return
	}

	vm.ensureStack(vm.fiber, vm.apiStackStart+numSlots)
	vm.apiStack = vm.fiber.stack
	vm.fiber.stackTop = vm.apiStackStart + numSlots
}

// GetSlotType returns the classification of the value in the slot.
func (vm *VM) GetSlotType(slot int) SlotType {
	v := vm.slot(slot)
	switch {
	case v.IsBool():
		return SlotBool
	case v.IsNum():
		return SlotNum
	case v.IsForeign():
		return SlotForeign
	case v.IsList():
		return SlotList
	case v.IsMap():
		return SlotMap
	case v.IsNull():
		return SlotNull
	case v.IsString():
		return SlotString
	}
	return SlotUnknown
}

// GetSlotBool reads a boolean from the slot. The slot must hold a Bool.
func (vm *VM) GetSlotBool(slot int) bool {
	return vm.slot(slot).Bool()
}

// GetSlotDouble reads a number from the slot. The slot must hold a Num.
func (vm *VM) GetSlotDouble(slot int) float64 {
	return vm.slot(slot).Num()
}

// GetSlotString reads a string from the slot. The slot must hold a
// String.
func (vm *VM) GetSlotString(slot int) string {
	return vm.slot(slot).asString().value
}

// GetSlotBytes reads the raw bytes of the string in the slot.
func (vm *VM) GetSlotBytes(slot int) []byte {
	return []byte(vm.slot(slot).asString().value)
}

// GetSlotForeign returns the byte payload of the foreign object in the
// slot. The slot must hold an instance of a foreign class.
func (vm *VM) GetSlotForeign(slot int) []byte {
	return vm.slot(slot).asForeign().data
}

// GetSlotValue returns the raw value in the slot, for hosts that thread
// values between calls without a handle.
func (vm *VM) GetSlotValue(slot int) Value {
	return vm.slot(slot)
}

// SetSlotBool stores a boolean into the slot.
func (vm *VM) SetSlotBool(slot int, value bool) {
	vm.setSlot(slot, BoolValue(value))
}

// SetSlotDouble stores a number into the slot.
func (vm *VM) SetSlotDouble(slot int, value float64) {
	vm.setSlot(slot, NumValue(value))
}

// SetSlotNull stores null into the slot.
func (vm *VM) SetSlotNull(slot int) {
	vm.setSlot(slot, NullValue)
}

// SetSlotString stores a string into the slot.
func (vm *VM) SetSlotString(slot int, text string) {
	vm.setSlot(slot, vm.stringValue(text))
}

// SetSlotBytes stores the bytes as a string value into the slot.
func (vm *VM) SetSlotBytes(slot int, data []byte) {
	vm.setSlot(slot, vm.stringValue(string(data)))
}

// SetSlotValue stores a raw value into the slot.
func (vm *VM) SetSlotValue(slot int, value Value) {
	vm.setSlot(slot, value)
}

// SetSlotNewList stores a freshly created empty list into the slot.
func (vm *VM) SetSlotNewList(slot int) {
	vm.setSlot(slot, vm.newList(0).val())
}

// SetSlotNewMap stores a freshly created empty map into the slot.
func (vm *VM) SetSlotNewMap(slot int) {
	vm.setSlot(slot, vm.newMap().val())
}

// SetSlotNewForeign creates a foreign instance of the class held in
// classSlot with a payload of size bytes, stores it into slot, and
// returns the payload for the host to fill in.
func (vm *VM) SetSlotNewForeign(slot, classSlot, size int) []byte {
	class := vm.slot(classSlot).asClass()
	foreign := vm.newForeign(class, size)
	vm.setSlot(slot, foreign.val())
	return foreign.data
}

// ---------------------------------------------------------------------------
// List slots
// ---------------------------------------------------------------------------

// GetListCount returns the element count of the list in the slot.
func (vm *VM) GetListCount(slot int) int {
	return len(vm.slot(slot).asList().elements)
}

// GetListElement copies list[index] into elementSlot. A negative index
// counts back from the end.
func (vm *VM) GetListElement(listSlot, index, elementSlot int) {
	elements := vm.slot(listSlot).asList().elements
	if index < 0 {
		index += len(elements)
	}
	vm.setSlot(elementSlot, elements[index])
}

// SetListElement stores the value in elementSlot into list[index].
func (vm *VM) SetListElement(listSlot, index, elementSlot int) {
	elements := vm.slot(listSlot).asList().elements
	if index < 0 {
		index += len(elements)
	}
	elements[index] = vm.slot(elementSlot)
}

// InsertInList inserts the value in elementSlot into the list at index.
// An index of -1 (or the count) appends.
func (vm *VM) InsertInList(listSlot, index, elementSlot int) {
	list := vm.slot(listSlot).asList()
	if index < 0 {
		index += len(list.elements) + 1
	}
	vm.reallocate(0, sizeValue)
	list.elements = append(list.elements, NullValue)
	copy(list.elements[index+1:], list.elements[index:])
	list.elements[index] = vm.slot(elementSlot)
}

// ---------------------------------------------------------------------------
// Map slots
// ---------------------------------------------------------------------------

// GetMapCount returns the entry count of the map in the slot.
func (vm *VM) GetMapCount(slot int) int {
	return vm.slot(slot).asMap().count
}

// GetMapContainsKey reports whether the map has an entry for the key in
// keySlot.
func (vm *VM) GetMapContainsKey(mapSlot, keySlot int) bool {
	key := vm.slot(keySlot)
	if !validateKey(vm, key) {
		return false
	}
	return !mapGet(vm.slot(mapSlot).asMap(), key).IsUndefined()
}

// GetMapValue copies map[key] into valueSlot, or null when the key is
// absent.
func (vm *VM) GetMapValue(mapSlot, keySlot, valueSlot int) {
	value := mapGet(vm.slot(mapSlot).asMap(), vm.slot(keySlot))
	if value.IsUndefined() {
		value = NullValue
	}
	vm.setSlot(valueSlot, value)
}

// SetMapValue stores the value in valueSlot under the key in keySlot.
func (vm *VM) SetMapValue(mapSlot, keySlot, valueSlot int) {
	key := vm.slot(keySlot)
	if !validateKey(vm, key) {
		return
	}
	vm.mapSet(vm.slot(mapSlot).asMap(), key, vm.slot(valueSlot))
}

// RemoveMapValue removes the entry for the key in keySlot and places the
// removed value, or null, into removedValueSlot.
func (vm *VM) RemoveMapValue(mapSlot, keySlot, removedValueSlot int) {
	key := vm.slot(keySlot)
	if !validateKey(vm, key) {
		return
	}
	removed := vm.mapRemove(vm.slot(mapSlot).asMap(), key)
	vm.setSlot(removedValueSlot, removed)
}

// ---------------------------------------------------------------------------
// Variables and modules
// ---------------------------------------------------------------------------

// GetVariable copies a top-level variable of a loaded module into the
// slot. The module and variable must both exist.
func (vm *VM) GetVariable(module, name string, slot int) {
	moduleName := vm.stringValue(module)
	vm.pushRoot(moduleName.Obj())
	moduleObj := vm.getModule(moduleName)
	vm.popRoot()

	symbol := moduleObj.variableNames.Find(name)
	vm.setSlot(slot, moduleObj.variables[symbol])
}

// HasVariable reports whether a loaded module declares a top-level
// variable with the name. The module must exist.
func (vm *VM) HasVariable(module, name string) bool {
	moduleName := vm.stringValue(module)
	vm.pushRoot(moduleName.Obj())
	moduleObj := vm.getModule(moduleName)
	vm.popRoot()

	return moduleObj.variableNames.Find(name) != -1
}

// HasModule reports whether a module with the name has been loaded.
func (vm *VM) HasModule(module string) bool {
	moduleName := vm.stringValue(module)
	vm.pushRoot(moduleName.Obj())
	moduleObj := vm.getModule(moduleName)
	vm.popRoot()

	return moduleObj != nil
}

// AbortFiber aborts the current fiber with the value in the slot as the
// error object.
func (vm *VM) AbortFiber(slot int) {
	vm.fiber.error = vm.slot(slot)
}
