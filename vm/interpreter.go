package vm

import "fmt"

// ---------------------------------------------------------------------------
// Bytecode interpreter
// ---------------------------------------------------------------------------

// Interpret compiles and runs source in the named module, creating the
// module if needed.
func (vm *VM) Interpret(module, source string) InterpretResult {
	closure := vm.compileSourceInModule(module, source)
	if closure == nil {
		return ResultCompileError
	}

	vm.pushRoot(&closure.Obj)
	fiber := vm.newFiber(closure)
	vm.popRoot()
	vm.apiStack = nil

	return vm.runInterpreter(fiber)
}

func (vm *VM) compileSourceInModule(module, source string) *ObjClosure {
	nameValue := NullValue
	if module != "" {
		nameValue = vm.stringValue(module)
		vm.pushRoot(nameValue.Obj())
		defer vm.popRoot()
	}
	return vm.compileInModule(nameValue, source, false, true)
}

// CompilesAsExpression reports whether source parses as a single
// expression in the named module. No diagnostics are reported and
// nothing runs; a REPL uses this to decide whether to echo a result.
func (vm *VM) CompilesAsExpression(module, source string) bool {
	nameValue := NullValue
	if module != "" {
		nameValue = vm.stringValue(module)
		vm.pushRoot(nameValue.Obj())
		defer vm.popRoot()
	}
	return vm.compileInModule(nameValue, source, true, false) != nil
}

// getModule looks up a loaded module. The core module is keyed by null.
func (vm *VM) getModule(name Value) *ObjModule {
	moduleValue := mapGet(vm.modules, name)
	if moduleValue.IsUndefined() {
		return nil
	}
	return moduleValue.asModule()
}

// compileInModule compiles source in the module named by name, creating
// the module with the core names copied in if it does not exist yet.
func (vm *VM) compileInModule(name Value, source string, isExpression, printErrors bool) *ObjClosure {
	module := vm.getModule(name)
	if module == nil {
		var moduleName *ObjString
		if !name.IsNull() {
			moduleName = name.asString()
		}
		module = vm.newModule(moduleName)

		vm.pushRoot(&module.Obj)
		vm.mapSet(vm.modules, name, module.val())
		vm.popRoot()

		// Every module implicitly imports the core names.
		core := vm.getModule(NullValue)
		for i := 0; i < core.variableNames.Count(); i++ {
			vm.defineModuleVariable(module, core.variableNames.Name(i), core.variables[i])
		}
	}

	fn := compileSource(vm, module, source, isExpression, printErrors)
	if fn == nil {
		return nil
	}

	vm.pushRoot(&fn.Obj)
	closure := vm.newClosure(fn)
	vm.popRoot()
	return closure
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

func (vm *VM) runtimeErrorf(format string, args ...any) {
	vm.fiber.error = vm.stringValue(fmt.Sprintf(format, args...))
}

func (vm *VM) methodNotFound(class *ObjClass, symbol int) {
	vm.runtimeErrorf("%s does not implement '%s'.", class.Name(), vm.methodNames.Name(symbol))
}

// raiseError walks the caller chain of the erroring fiber looking for a
// try. A try fiber's caller resumes with the error as the try's result;
// otherwise the trace is reported and the VM stops.
func (vm *VM) raiseError() {
	err := vm.fiber.error

	current := vm.fiber
	for current != nil {
		current.error = err
		if current.state == fiberTry {
			current.caller.stack[current.caller.stackTop-1] = err
			vm.fiber = current.caller
			return
		}
		caller := current.caller
		current.caller = nil
		current = caller
	}

	vm.printStackTrace()
	vm.fiber = nil
	vm.apiStack = nil
}

func (vm *VM) printStackTrace() {
	if vm.config.ErrorFn == nil {
		return
	}

	fiber := vm.fiber
	if fiber.error.IsString() {
		vm.reportError(ErrorRuntime, "", -1, fiber.error.asString().value)
	} else {
		vm.reportError(ErrorRuntime, "", -1, "[error object]")
	}

	for i := len(fiber.frames) - 1; i >= 0; i-- {
		frame := &fiber.frames[i]
		fn := frame.closure.fn

		// Synthesized functions have no module or name to report.
		if fn.module == nil || fn.module.name == nil {
			continue
		}

		line := fn.debug.sourceLines[frame.ip-1]
		vm.reportError(ErrorStackTrace, fn.module.name.value, line, fn.debug.name)
	}
}

// checkArity validates that a Fn call provides enough arguments. The
// receiver does not count.
func (vm *VM) checkArity(value Value, numArgs int) bool {
	if numArgs-1 >= value.asClosure().fn.arity {
		return true
	}
	vm.fiber.error = vm.stringValue("Function expects more arguments.")
	return false
}

// ---------------------------------------------------------------------------
// Classes at runtime
// ---------------------------------------------------------------------------

// validateSuperclass checks an inheritance clause. Returns the error
// message value, or null when the superclass is acceptable.
func (vm *VM) validateSuperclass(name Value, superclassValue Value, numFields int) Value {
	if !superclassValue.IsClass() {
		return vm.stringValue(fmt.Sprintf(
			"Class '%s' cannot inherit from a non-class object.",
			name.asString().value))
	}

	// The built-in classes assume their instances have a fixed internal
	// layout, so they cannot be subclassed.
	superclass := superclassValue.asClass()
	switch superclass {
	case vm.classClass, vm.fiberClass, vm.fnClass, vm.listClass, vm.mapClass,
		vm.rangeClass, vm.stringClass, vm.boolClass, vm.nullClass, vm.numClass:
		return vm.stringValue(fmt.Sprintf(
			"Class '%s' cannot inherit from built-in class '%s'.",
			name.asString().value, superclass.Name()))
	}

	if superclass.numFields == -1 {
		return vm.stringValue(fmt.Sprintf(
			"Class '%s' cannot inherit from foreign class '%s'.",
			name.asString().value, superclass.Name()))
	}
	if numFields == -1 && superclass.numFields > 0 {
		return vm.stringValue(fmt.Sprintf(
			"Foreign class '%s' may not inherit from a class with fields.",
			name.asString().value))
	}
	if superclass.numFields+numFields > maxFields {
		return vm.stringValue(fmt.Sprintf(
			"Class '%s' may not have more than 255 fields, including inherited ones.",
			name.asString().value))
	}

	return NullValue
}

// createClass implements the class opcodes. The name and superclass are
// on the stack; the new class replaces them. numFields is -1 for a
// foreign class.
func (vm *VM) createClass(numFields int, module *ObjModule) {
	fiber := vm.fiber
	name := fiber.peek(1)
	superclassValue := fiber.peek(0)
	fiber.stackTop--

	fiber.error = vm.validateSuperclass(name, superclassValue, numFields)
	if fiber.hasError() {
		return
	}

	class := vm.newClass(superclassValue.asClass(), numFields, name.asString())
	fiber.stack[fiber.stackTop-1] = class.val()

	if numFields == -1 {
		vm.bindForeignClass(class, module)
	}
}

func (vm *VM) bindForeignClass(class *ObjClass, module *ObjModule) {
	var methods ForeignClassMethods
	if vm.config.BindForeignClassFn != nil {
		methods = vm.config.BindForeignClassFn(vm, module.Name(), class.Name())
	}

	allocateSymbol := vm.methodNames.Ensure("<allocate>")
	if methods.Allocate != nil {
		vm.bindMethod(class, allocateSymbol, Method{
			kind:    MethodForeign,
			foreign: methods.Allocate,
		})
	}

	finalizeSymbol := vm.methodNames.Ensure("<finalize>")
	if methods.Finalize != nil {
		vm.bindMethod(class, finalizeSymbol, Method{
			kind:     MethodNone,
			finalize: methods.Finalize,
		})
	}
}

// createForeign runs the host allocator for a foreign class. The class is
// in the frame's receiver slot and is replaced by the new instance.
func (vm *VM) createForeign(fiber *ObjFiber, stackStart int) {
	class := fiber.stack[stackStart].asClass()

	symbol := vm.methodNames.Find("<allocate>")
	if symbol == -1 || symbol >= len(class.methods) ||
		class.methods[symbol].kind != MethodForeign {
		vm.runtimeErrorf("Foreign class '%s' has no allocator.", class.Name())
		return
	}

	// The allocator sees the constructor arguments through the slot API.
	vm.apiStack = fiber.stack
	vm.apiStackStart = stackStart
	class.methods[symbol].foreign(vm)
	vm.apiStack = nil
}

// endClass attaches the runtime attribute map built by the compiler.
func (vm *VM) endClass(fiber *ObjFiber) {
	attributes := fiber.peek(0)
	class := fiber.peek(1).asClass()
	class.attributes = attributes
	fiber.stackTop -= 2
}

// bindMethodCode fixes up a method body for the class it was bound to:
// field offsets shift by the inherited count, and the superclass constant
// slots reserved for super calls are filled in. Nested functions get the
// same treatment.
func (vm *VM) bindMethodCode(class *ObjClass, fn *ObjFn) {
	ip := 0
	for {
		op := Opcode(fn.code[ip])
		switch op {
		case OpLoadField, OpStoreField, OpLoadFieldThis, OpStoreFieldThis:
			fn.code[ip+1] += byte(class.superclass.numFields)

		case OpSuper0, OpSuper1, OpSuper2, OpSuper3, OpSuper4, OpSuper5,
			OpSuper6, OpSuper7, OpSuper8, OpSuper9, OpSuper10, OpSuper11,
			OpSuper12, OpSuper13, OpSuper14, OpSuper15, OpSuper16:
			constant := readShort(fn.code, ip+3)
			fn.constants[constant] = class.superclass.val()

		case OpClosure:
			constant := readShort(fn.code, ip+1)
			vm.bindMethodCode(class, fn.constants[constant].asFn())

		case OpEnd:
			return
		}
		ip += 1 + instructionArgBytes(fn, ip)
	}
}

// bindMethodToClass implements the method opcodes: the class is on top of
// the stack with the method body or foreign signature under it.
func (vm *VM) bindMethodToClass(op Opcode, symbol int, module *ObjModule, class *ObjClass, methodValue Value) {
	className := class.Name()
	if op == OpMethodStatic {
		class = class.Obj.class
	}

	var method Method
	if methodValue.IsString() {
		signature := methodValue.asString().value
		method.kind = MethodForeign
		method.foreign = vm.findForeignMethod(module.Name(), className,
			op == OpMethodStatic, signature)
		if method.foreign == nil {
			vm.runtimeErrorf("Could not find foreign method '%s' for class %s in module '%s'.",
				signature, className, module.Name())
			return
		}
	} else {
		method.kind = MethodBlock
		method.closure = methodValue.asClosure()
		vm.bindMethodCode(class, method.closure.fn)
	}

	vm.bindMethod(class, symbol, method)
}

func (vm *VM) findForeignMethod(module, className string, isStatic bool, signature string) ForeignMethodFn {
	if vm.config.BindForeignMethodFn == nil {
		return nil
	}
	return vm.config.BindForeignMethodFn(vm, module, className, isStatic, signature)
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func (vm *VM) resolveModule(name string) string {
	if vm.config.ResolveModuleFn == nil {
		return name
	}
	importer := ""
	fn := vm.fiber.frames[len(vm.fiber.frames)-1].closure.fn
	if fn.module != nil && fn.module.name != nil {
		importer = fn.module.name.value
	}
	return vm.config.ResolveModuleFn(vm, importer, name)
}

// importModule loads and compiles a module by name. Returns the module
// body closure to run, or null when the module is already loaded, or sets
// the fiber error.
func (vm *VM) importModule(nameValue Value) Value {
	name := vm.resolveModule(nameValue.asString().value)
	if name == "" {
		vm.runtimeErrorf("Could not resolve module '%s'.", nameValue.asString().value)
		return NullValue
	}
	resolved := vm.stringValue(name)
	vm.pushRoot(resolved.Obj())
	defer vm.popRoot()

	if existing := mapGet(vm.modules, resolved); !existing.IsUndefined() {
		vm.lastModule = existing.asModule()
		return NullValue
	}

	source, ok := "", false
	if vm.config.LoadModuleFn != nil {
		source, ok = vm.config.LoadModuleFn(vm, name)
	}
	if !ok {
		vm.runtimeErrorf("Could not load module '%s'.", name)
		return NullValue
	}

	closure := vm.compileInModule(resolved, source, false, true)
	if closure == nil {
		vm.runtimeErrorf("Could not compile module '%s'.", name)
		return NullValue
	}

	vm.lastModule = vm.getModule(resolved)
	return closure.val()
}

func (vm *VM) getModuleVariable(module *ObjModule, variableName Value) Value {
	name := variableName.asString().value
	symbol := module.variableNames.Find(name)
	if symbol == -1 {
		vm.runtimeErrorf("Could not find a variable named '%s' in module '%s'.",
			name, module.Name())
		return NullValue
	}
	return module.variables[symbol]
}

// ---------------------------------------------------------------------------
// The dispatch loop
// ---------------------------------------------------------------------------

// callForeign runs a host method over a stack window. The window collapses
// to the single return slot afterwards.
func (vm *VM) callForeign(fiber *ObjFiber, foreign ForeignMethodFn, numArgs int) {
	vm.apiStack = fiber.stack
	vm.apiStackStart = fiber.stackTop - numArgs
	foreign(vm)
	fiber.stackTop = vm.apiStackStart + 1
	vm.apiStack = nil
}

func (vm *VM) runInterpreter(fiber *ObjFiber) InterpretResult {
	vm.fiber = fiber
	fiber.state = fiberRoot

	var frame *CallFrame
	var stackStart int
	var fn *ObjFn
	var ip int

	// The hot frame state lives in locals; storeFrame writes the ip back
	// before anything that can push a frame or switch fibers.
	storeFrame := func() { frame.ip = ip }
	loadFrame := func() {
		frame = &fiber.frames[len(fiber.frames)-1]
		stackStart = frame.stackStart
		fn = frame.closure.fn
		ip = frame.ip
	}
	loadFrame()

	// raise unwinds after a runtime error. False means nothing caught it.
	raise := func() bool {
		storeFrame()
		vm.raiseError()
		if vm.fiber == nil {
			return false
		}
		fiber = vm.fiber
		loadFrame()
		return true
	}

	for {
		op := Opcode(fn.code[ip])
		ip++

		switch op {
		case OpLoadLocal0, OpLoadLocal1, OpLoadLocal2, OpLoadLocal3,
			OpLoadLocal4, OpLoadLocal5, OpLoadLocal6, OpLoadLocal7, OpLoadLocal8:
			fiber.push(fiber.stack[stackStart+int(op-OpLoadLocal0)])

		case OpLoadLocal:
			fiber.push(fiber.stack[stackStart+int(fn.code[ip])])
			ip++

		case OpStoreLocal:
			fiber.stack[stackStart+int(fn.code[ip])] = fiber.peek(0)
			ip++

		case OpConstant:
			fiber.push(fn.constants[readShort(fn.code, ip)])
			ip += 2

		case OpNull:
			fiber.push(NullValue)
		case OpFalse:
			fiber.push(FalseValue)
		case OpTrue:
			fiber.push(TrueValue)

		case OpLoadUpvalue:
			fiber.push(frame.closure.upvalues[fn.code[ip]].get())
			ip++

		case OpStoreUpvalue:
			frame.closure.upvalues[fn.code[ip]].set(fiber.peek(0))
			ip++

		case OpLoadModuleVar:
			fiber.push(fn.module.variables[readShort(fn.code, ip)])
			ip += 2

		case OpStoreModuleVar:
			fn.module.variables[readShort(fn.code, ip)] = fiber.peek(0)
			ip += 2

		case OpLoadFieldThis:
			field := int(fn.code[ip])
			ip++
			receiver := fiber.stack[stackStart]
			fiber.push(receiver.asInstance().fields[field])

		case OpStoreFieldThis:
			field := int(fn.code[ip])
			ip++
			receiver := fiber.stack[stackStart]
			receiver.asInstance().fields[field] = fiber.peek(0)

		case OpLoadField:
			field := int(fn.code[ip])
			ip++
			receiver := fiber.pop()
			fiber.push(receiver.asInstance().fields[field])

		case OpStoreField:
			field := int(fn.code[ip])
			ip++
			receiver := fiber.pop()
			receiver.asInstance().fields[field] = fiber.peek(0)

		case OpPop:
			fiber.pop()

		case OpCall0, OpCall1, OpCall2, OpCall3, OpCall4, OpCall5, OpCall6,
			OpCall7, OpCall8, OpCall9, OpCall10, OpCall11, OpCall12,
			OpCall13, OpCall14, OpCall15, OpCall16:
			numArgs := int(op-OpCall0) + 1
			symbol := readShort(fn.code, ip)
			ip += 2

			args := fiber.stack[fiber.stackTop-numArgs : fiber.stackTop]
			class := vm.classOf(args[0])
			if !vm.completeCall(&fiber, class, symbol, numArgs, args,
				storeFrame, loadFrame, raise) {
				if vm.fiber == nil {
					if fiber.hasError() {
						return ResultRuntimeError
					}
					return ResultSuccess
				}
				return ResultRuntimeError
			}

		case OpSuper0, OpSuper1, OpSuper2, OpSuper3, OpSuper4, OpSuper5,
			OpSuper6, OpSuper7, OpSuper8, OpSuper9, OpSuper10, OpSuper11,
			OpSuper12, OpSuper13, OpSuper14, OpSuper15, OpSuper16:
			numArgs := int(op-OpSuper0) + 1
			symbol := readShort(fn.code, ip)
			ip += 2

			// The superclass was patched into the reserved constant slot
			// when the method was bound.
			class := fn.constants[readShort(fn.code, ip)].asClass()
			ip += 2

			args := fiber.stack[fiber.stackTop-numArgs : fiber.stackTop]
			if !vm.completeCall(&fiber, class, symbol, numArgs, args,
				storeFrame, loadFrame, raise) {
				if vm.fiber == nil {
					if fiber.hasError() {
						return ResultRuntimeError
					}
					return ResultSuccess
				}
				return ResultRuntimeError
			}

		case OpJump:
			ip += readShort(fn.code, ip) + 2

		case OpLoop:
			ip += 2
			ip -= readShort(fn.code, ip-2)

		case OpJumpIf:
			offset := readShort(fn.code, ip)
			ip += 2
			condition := fiber.pop()
			if condition.IsFalse() || condition.IsNull() {
				ip += offset
			}

		case OpAnd:
			offset := readShort(fn.code, ip)
			ip += 2
			condition := fiber.peek(0)
			if condition.IsFalse() || condition.IsNull() {
				ip += offset
			} else {
				fiber.pop()
			}

		case OpOr:
			offset := readShort(fn.code, ip)
			ip += 2
			condition := fiber.peek(0)
			if condition.IsFalse() || condition.IsNull() {
				fiber.pop()
			} else {
				ip += offset
			}

		case OpCloseUpvalue:
			closeUpvalues(fiber, fiber.stackTop-1)
			fiber.pop()

		case OpReturn:
			result := fiber.pop()
			fiber.frames = fiber.frames[:len(fiber.frames)-1]

			closeUpvalues(fiber, stackStart)

			if len(fiber.frames) == 0 {
				if fiber.caller == nil {
					// The root fiber finished; leave the result in slot
					// zero for the embedding API.
					fiber.stack[0] = result
					fiber.stackTop = 1
					return ResultSuccess
				}

				resuming := fiber.caller
				fiber.caller = nil
				fiber = resuming
				vm.fiber = resuming
				fiber.stack[fiber.stackTop-1] = result
			} else {
				fiber.stack[stackStart] = result
				fiber.stackTop = stackStart + 1
			}
			loadFrame()

		case OpConstruct:
			class := fiber.stack[stackStart].asClass()
			fiber.stack[stackStart] = vm.newInstance(class).val()

		case OpForeignConstruct:
			storeFrame()
			vm.createForeign(fiber, stackStart)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
			}

		case OpClosure:
			constant := readShort(fn.code, ip)
			ip += 2
			closureFn := fn.constants[constant].asFn()
			closure := vm.newClosure(closureFn)
			fiber.push(closure.val())

			for i := 0; i < closureFn.numUpvalues; i++ {
				isLocal := fn.code[ip]
				index := int(fn.code[ip+1])
				ip += 2
				if isLocal != 0 {
					closure.upvalues[i] = vm.captureUpvalue(fiber, stackStart+index)
				} else {
					closure.upvalues[i] = frame.closure.upvalues[index]
				}
			}

		case OpClass:
			numFields := int(fn.code[ip])
			ip++
			vm.createClass(numFields, nil)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
			}

		case OpForeignClass:
			vm.createClass(-1, fn.module)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
			}

		case OpEndClass:
			vm.endClass(fiber)

		case OpMethodInstance, OpMethodStatic:
			symbol := readShort(fn.code, ip)
			ip += 2
			class := fiber.peek(0).asClass()
			methodValue := fiber.peek(1)
			storeFrame()
			vm.bindMethodToClass(op, symbol, fn.module, class, methodValue)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
				break
			}
			fiber.stackTop -= 2

		case OpEndModule:
			vm.lastModule = fn.module
			fiber.push(NullValue)

		case OpImportModule:
			nameValue := fn.constants[readShort(fn.code, ip)]
			ip += 2
			storeFrame()
			result := vm.importModule(nameValue)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
				break
			}
			fiber.push(result)

			if result.IsClosure() {
				// Run the module body; the import completes when it
				// returns.
				vm.callFunction(fiber, result.asClosure(), 1)
				loadFrame()
			}

		case OpImportVariable:
			variableName := fn.constants[readShort(fn.code, ip)]
			ip += 2
			storeFrame()
			result := vm.getModuleVariable(vm.lastModule, variableName)
			if fiber.hasError() {
				if !raise() {
					return ResultRuntimeError
				}
				break
			}
			fiber.push(result)

		case OpEnd:
			// OpEnd marks the end of a function body and is never
			// executed; break placeholders are patched before this point.
			panic("unreachable bytecode")
		}
	}
}

// completeCall dispatches one method invocation. Returns false when the
// interpreter should stop: either the VM has no runnable fiber left, or a
// runtime error went uncaught.
func (vm *VM) completeCall(fiberRef **ObjFiber, class *ObjClass, symbol, numArgs int,
	args []Value, storeFrame, loadFrame func(), raise func() bool) bool {

	fiber := *fiberRef

	if symbol >= len(class.methods) || class.methods[symbol].kind == MethodNone {
		vm.methodNotFound(class, symbol)
		if !raise() {
			return false
		}
		*fiberRef = vm.fiber
		return true
	}

	method := &class.methods[symbol]
	switch method.kind {
	case MethodPrimitive:
		if method.primitive(vm, args) {
			// The primitive succeeded and left its result in args[0].
			fiber.stackTop -= numArgs - 1
			return true
		}
		storeFrame()
		if fiber.hasError() {
			if !raise() {
				return false
			}
			*fiberRef = vm.fiber
			return true
		}
		// The primitive switched fibers, or finished the run.
		if vm.fiber == nil {
			return false
		}
		*fiberRef = vm.fiber
		loadFrame()
		return true

	case MethodFunctionCall:
		if !vm.checkArity(args[0], numArgs) {
			if !raise() {
				return false
			}
			*fiberRef = vm.fiber
			return true
		}
		storeFrame()
		vm.callFunction(fiber, args[0].asClosure(), numArgs)
		loadFrame()
		return true

	case MethodForeign:
		storeFrame()
		vm.callForeign(fiber, method.foreign, numArgs)
		if fiber.hasError() {
			if !raise() {
				return false
			}
			*fiberRef = vm.fiber
		}
		return true

	case MethodBlock:
		storeFrame()
		vm.callFunction(fiber, method.closure, numArgs)
		loadFrame()
		return true
	}
	return true
}
