package vm

import "time"

// ---------------------------------------------------------------------------
// Memory accounting and mark-sweep collection
// ---------------------------------------------------------------------------

// The VM tracks an accounted byte size for every object it creates. The
// bytes themselves come from the Go allocator; the accounting only decides
// when to collect. Objects stay reachable from Go's point of view through
// the intrusive all-objects list, so a sweep is an unlink plus a finalizer
// call, after which the Go runtime reclaims the memory.

// reallocate records a size change and may trigger a collection when the
// accounted total crosses the threshold. Call it before the allocation it
// describes so a triggered collection cannot see a half-built object.
func (vm *VM) reallocate(oldSize, newSize int) {
	vm.bytesAllocated += newSize - oldSize
	if newSize > oldSize {
		if vm.config.GCStress || vm.bytesAllocated > vm.nextGC {
			vm.collectGarbage()
		}
	}
}

// pushRoot pins an object for the duration of an allocation sequence that
// could collect before the object is reachable from a proper root.
func (vm *VM) pushRoot(obj *Obj) {
	if vm.numTempRoots >= tempRootsMax {
		panic("too many temporary roots")
	}
	vm.tempRoots[vm.numTempRoots] = obj
	vm.numTempRoots++
}

// popRoot releases the most recent temporary root.
func (vm *VM) popRoot() {
	vm.numTempRoots--
	vm.tempRoots[vm.numTempRoots] = nil
}

// collectGarbage runs a full mark-sweep cycle and resets the threshold
// from the surviving size.
func (vm *VM) collectGarbage() {
	start := time.Now()
	before := vm.bytesAllocated

	// The marking phase rebuilds the accounted total from survivors.
	vm.bytesAllocated = 0

	if vm.modules != nil {
		vm.grayObj(&vm.modules.Obj)
	}
	for i := 0; i < vm.numTempRoots; i++ {
		vm.grayObj(vm.tempRoots[i])
	}
	if vm.fiber != nil {
		vm.grayObj(&vm.fiber.Obj)
	}
	for h := vm.handles; h != nil; h = h.next {
		vm.grayValue(h.value)
	}
	vm.markCompilerRoots()

	for len(vm.gray) > 0 {
		obj := vm.gray[len(vm.gray)-1]
		vm.gray = vm.gray[:len(vm.gray)-1]
		vm.blackenObject(obj)
	}

	// Sweep: unlink everything still white, finalizing foreigns, and
	// clear the mark on survivors for the next cycle.
	link := &vm.first
	for *link != nil {
		obj := *link
		if obj.dark {
			obj.dark = false
			link = &obj.next
			continue
		}
		*link = obj.next
		obj.next = nil
		if obj.kind == KindForeign {
			vm.finalizeForeign(objAsForeign(obj))
		}
	}

	vm.nextGC = vm.bytesAllocated + vm.bytesAllocated*vm.config.HeapGrowthPercent/100
	if vm.nextGC < vm.config.MinHeapSize {
		vm.nextGC = vm.config.MinHeapSize
	}

	vm.log.Debugf("gc: %d -> %d bytes, next at %d, took %s",
		before, vm.bytesAllocated, vm.nextGC, time.Since(start))
}

// grayObj marks an object and queues it for tracing.
func (vm *VM) grayObj(obj *Obj) {
	if obj == nil || obj.dark {
		return
	}
	obj.dark = true
	vm.gray = append(vm.gray, obj)
}

// grayValue marks the object behind a value, if any.
func (vm *VM) grayValue(v Value) {
	if v.IsObj() {
		vm.grayObj(v.Obj())
	}
}

func (vm *VM) grayValues(values []Value) {
	for _, v := range values {
		vm.grayValue(v)
	}
}

// blackenObject traces an object's references and re-accounts its size.
func (vm *VM) blackenObject(obj *Obj) {
	if obj.class != nil {
		vm.grayObj(&obj.class.Obj)
	}

	switch obj.kind {
	case KindString:
		s := objAsString(obj)
		vm.bytesAllocated += sizeObjString + len(s.value)

	case KindList:
		l := objAsList(obj)
		vm.grayValues(l.elements)
		vm.bytesAllocated += sizeObjList + cap(l.elements)*sizeValue

	case KindMap:
		m := objAsMap(obj)
		for i := range m.entries {
			if !m.entries[i].key.IsUndefined() {
				vm.grayValue(m.entries[i].key)
				vm.grayValue(m.entries[i].value)
			}
		}
		vm.bytesAllocated += sizeObjMap + len(m.entries)*2*sizeValue

	case KindRange:
		vm.bytesAllocated += sizeObjRange

	case KindModule:
		m := objAsModule(obj)
		vm.grayValues(m.variables)
		if m.name != nil {
			vm.grayObj(&m.name.Obj)
		}
		vm.bytesAllocated += sizeObjModule + cap(m.variables)*sizeValue

	case KindFn:
		fn := objAsFn(obj)
		vm.grayValues(fn.constants)
		if fn.module != nil {
			vm.grayObj(&fn.module.Obj)
		}
		vm.bytesAllocated += sizeObjFn +
			cap(fn.code) + cap(fn.constants)*sizeValue + len(fn.debug.sourceLines)*8

	case KindClosure:
		c := objAsClosure(obj)
		vm.grayObj(&c.fn.Obj)
		for _, uv := range c.upvalues {
			if uv != nil {
				vm.grayObj(&uv.Obj)
			}
		}
		vm.bytesAllocated += sizeObjClosure + len(c.upvalues)*sizePointer

	case KindUpvalue:
		uv := objAsUpvalue(obj)
		if uv.owner != nil {
			vm.grayObj(&uv.owner.Obj)
		}
		vm.grayValue(uv.closed)
		vm.bytesAllocated += sizeObjUpvalue

	case KindFiber:
		f := objAsFiber(obj)
		vm.grayValues(f.stack[:f.stackTop])
		for i := range f.frames {
			vm.grayObj(&f.frames[i].closure.Obj)
		}
		for uv := f.openUpvalues; uv != nil; uv = uv.next {
			vm.grayObj(&uv.Obj)
		}
		if f.caller != nil {
			vm.grayObj(&f.caller.Obj)
		}
		vm.grayValue(f.error)
		vm.bytesAllocated += sizeObjFiber +
			cap(f.stack)*sizeValue + cap(f.frames)*sizeCallFrame

	case KindClass:
		c := objAsClass(obj)
		if c.superclass != nil {
			vm.grayObj(&c.superclass.Obj)
		}
		for i := range c.methods {
			if c.methods[i].kind == MethodBlock {
				vm.grayObj(&c.methods[i].closure.Obj)
			}
		}
		if c.name != nil {
			vm.grayObj(&c.name.Obj)
		}
		vm.grayValue(c.attributes)
		vm.bytesAllocated += sizeObjClass + len(c.methods)*sizeMethod

	case KindInstance:
		inst := objAsInstance(obj)
		vm.grayValues(inst.fields)
		vm.bytesAllocated += sizeObjInstance + len(inst.fields)*sizeValue

	case KindForeign:
		f := objAsForeign(obj)
		vm.bytesAllocated += sizeObjForeign + len(f.data)
	}
}

// finalizeForeign runs the class finalizer for a foreign object, if the
// class registered one.
func (vm *VM) finalizeForeign(foreign *ObjForeign) {
	symbol := vm.methodNames.Find("<finalize>")
	if symbol == -1 {
		return
	}
	class := foreign.class
	if symbol >= len(class.methods) {
		return
	}
	if fin := class.methods[symbol].finalize; fin != nil {
		fin(foreign.data)
	}
}
