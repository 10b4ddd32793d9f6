package vm

// ---------------------------------------------------------------------------
// Core library bootstrap
// ---------------------------------------------------------------------------

// defineClass creates a bare class and binds it to a module variable. Used
// only during bootstrap, before the full class graph exists.
func (vm *VM) defineClass(module *ObjModule, name string) *ObjClass {
	nameString := vm.newString(name)
	vm.pushRoot(&nameString.Obj)
	class := vm.newSingleClass(0, nameString)
	vm.defineModuleVariable(module, name, class.val())
	vm.popRoot()
	return class
}

func (vm *VM) findVariable(module *ObjModule, name string) Value {
	symbol := module.variableNames.Find(name)
	return module.variables[symbol]
}

func (vm *VM) primitive(class *ObjClass, signature string, fn primitiveFn) {
	symbol := vm.methodNames.Ensure(signature)
	vm.bindMethod(class, symbol, Method{kind: MethodPrimitive, primitive: fn})
}

func (vm *VM) functionCall(class *ObjClass, signature string) {
	symbol := vm.methodNames.Ensure(signature)
	vm.bindMethod(class, symbol, Method{kind: MethodFunctionCall})
}

func (vm *VM) initializeCore() {
	coreModule := vm.newModule(nil)
	vm.pushRoot(&coreModule.Obj)
	vm.mapSet(vm.modules, NullValue, coreModule.val())
	vm.popRoot()

	// Object and Class refer to each other, so the first few classes are
	// tied together by hand before anything else can exist.
	vm.objectClass = vm.defineClass(coreModule, "Object")
	vm.primitive(vm.objectClass, "!", objectNot)
	vm.primitive(vm.objectClass, "==(_)", objectEqEq)
	vm.primitive(vm.objectClass, "!=(_)", objectBangEq)
	vm.primitive(vm.objectClass, "is(_)", objectIs)
	vm.primitive(vm.objectClass, "toString", objectToString)
	vm.primitive(vm.objectClass, "type", objectType)

	vm.classClass = vm.defineClass(coreModule, "Class")
	vm.bindSuperclass(vm.classClass, vm.objectClass)
	vm.primitive(vm.classClass, "name", classGetName)
	vm.primitive(vm.classClass, "supertype", classSupertype)
	vm.primitive(vm.classClass, "toString", classToString)
	vm.primitive(vm.classClass, "attributes", classAttributes)

	objectMetaclass := vm.defineClass(coreModule, "Object metaclass")
	vm.objectClass.Obj.class = objectMetaclass
	objectMetaclass.Obj.class = vm.classClass
	vm.classClass.Obj.class = vm.classClass
	vm.bindSuperclass(objectMetaclass, vm.classClass)
	vm.primitive(objectMetaclass, "same(_,_)", objectSame)

	// The rest of the core classes are defined in source; the primitives
	// are grafted onto them afterwards.
	vm.Interpret("", coreScript)

	vm.boolClass = vm.findVariable(coreModule, "Bool").asClass()
	vm.primitive(vm.boolClass, "toString", boolToString)
	vm.primitive(vm.boolClass, "!", boolNot)

	vm.fiberClass = vm.findVariable(coreModule, "Fiber").asClass()
	vm.primitive(vm.fiberClass.Obj.class, "new(_)", fiberNew)
	vm.primitive(vm.fiberClass.Obj.class, "abort(_)", fiberAbort)
	vm.primitive(vm.fiberClass.Obj.class, "current", fiberCurrent)
	vm.primitive(vm.fiberClass.Obj.class, "suspend()", fiberSuspend)
	vm.primitive(vm.fiberClass.Obj.class, "yield()", fiberYield)
	vm.primitive(vm.fiberClass.Obj.class, "yield(_)", fiberYield1)
	vm.primitive(vm.fiberClass, "call()", fiberCall)
	vm.primitive(vm.fiberClass, "call(_)", fiberCall1)
	vm.primitive(vm.fiberClass, "error", fiberError)
	vm.primitive(vm.fiberClass, "isDone", fiberIsDone)
	vm.primitive(vm.fiberClass, "transfer()", fiberTransfer)
	vm.primitive(vm.fiberClass, "transfer(_)", fiberTransfer1)
	vm.primitive(vm.fiberClass, "transferError(_)", fiberTransferError)
	vm.primitive(vm.fiberClass, "try()", primFiberTry)
	vm.primitive(vm.fiberClass, "try(_)", fiberTry1)

	vm.fnClass = vm.findVariable(coreModule, "Fn").asClass()
	vm.primitive(vm.fnClass.Obj.class, "new(_)", fnNew)
	vm.primitive(vm.fnClass, "arity", fnArity)
	vm.primitive(vm.fnClass, "toString", fnToString)
	for numArgs := 0; numArgs <= maxParameters; numArgs++ {
		sig := Signature{Name: "call", Kind: SigMethod, Arity: numArgs}
		vm.functionCall(vm.fnClass, sig.String())
	}

	vm.nullClass = vm.findVariable(coreModule, "Null").asClass()
	vm.primitive(vm.nullClass, "!", nullNot)
	vm.primitive(vm.nullClass, "toString", nullToString)

	vm.numClass = vm.findVariable(coreModule, "Num").asClass()
	vm.primitive(vm.numClass.Obj.class, "fromString(_)", numFromString)
	vm.primitive(vm.numClass.Obj.class, "infinity", numInfinity)
	vm.primitive(vm.numClass.Obj.class, "nan", numNan)
	vm.primitive(vm.numClass.Obj.class, "pi", numPi)
	vm.primitive(vm.numClass.Obj.class, "tau", numTau)
	vm.primitive(vm.numClass.Obj.class, "largest", numLargest)
	vm.primitive(vm.numClass.Obj.class, "smallest", numSmallest)
	vm.primitive(vm.numClass.Obj.class, "maxSafeInteger", numMaxSafeInteger)
	vm.primitive(vm.numClass.Obj.class, "minSafeInteger", numMinSafeInteger)
	vm.primitive(vm.numClass, "-(_)", numMinus)
	vm.primitive(vm.numClass, "+(_)", numPlus)
	vm.primitive(vm.numClass, "*(_)", numMultiply)
	vm.primitive(vm.numClass, "/(_)", numDivide)
	vm.primitive(vm.numClass, "<(_)", numLt)
	vm.primitive(vm.numClass, ">(_)", numGt)
	vm.primitive(vm.numClass, "<=(_)", numLtEq)
	vm.primitive(vm.numClass, ">=(_)", numGtEq)
	vm.primitive(vm.numClass, "&(_)", numBitwiseAnd)
	vm.primitive(vm.numClass, "|(_)", numBitwiseOr)
	vm.primitive(vm.numClass, "^(_)", numBitwiseXor)
	vm.primitive(vm.numClass, "<<(_)", numBitwiseLeftShift)
	vm.primitive(vm.numClass, ">>(_)", numBitwiseRightShift)
	vm.primitive(vm.numClass, "abs", numAbs)
	vm.primitive(vm.numClass, "acos", numAcos)
	vm.primitive(vm.numClass, "asin", numAsin)
	vm.primitive(vm.numClass, "atan", numAtan)
	vm.primitive(vm.numClass, "atan(_)", numAtan2)
	vm.primitive(vm.numClass, "cbrt", numCbrt)
	vm.primitive(vm.numClass, "ceil", numCeil)
	vm.primitive(vm.numClass, "cos", numCos)
	vm.primitive(vm.numClass, "floor", numFloor)
	vm.primitive(vm.numClass, "-", numNegate)
	vm.primitive(vm.numClass, "round", numRound)
	vm.primitive(vm.numClass, "min(_)", numMin)
	vm.primitive(vm.numClass, "max(_)", numMax)
	vm.primitive(vm.numClass, "clamp(_,_)", numClamp)
	vm.primitive(vm.numClass, "sin", numSin)
	vm.primitive(vm.numClass, "sqrt", numSqrt)
	vm.primitive(vm.numClass, "tan", numTan)
	vm.primitive(vm.numClass, "log", numLog)
	vm.primitive(vm.numClass, "log2", numLog2)
	vm.primitive(vm.numClass, "exp", numExp)
	vm.primitive(vm.numClass, "%(_)", numMod)
	vm.primitive(vm.numClass, "~", numBitwiseNot)
	vm.primitive(vm.numClass, "..(_)", numDotDot)
	vm.primitive(vm.numClass, "...(_)", numDotDotDot)
	vm.primitive(vm.numClass, "pow(_)", numPow)
	vm.primitive(vm.numClass, "fraction", numFraction)
	vm.primitive(vm.numClass, "isInfinity", numIsInfinity)
	vm.primitive(vm.numClass, "isInteger", numIsInteger)
	vm.primitive(vm.numClass, "isNan", numIsNan)
	vm.primitive(vm.numClass, "sign", numSign)
	vm.primitive(vm.numClass, "toString", numToString)
	vm.primitive(vm.numClass, "truncate", numTruncate)
	vm.primitive(vm.numClass, "==(_)", numEqEq)
	vm.primitive(vm.numClass, "!=(_)", numBangEq)

	vm.stringClass = vm.findVariable(coreModule, "String").asClass()
	vm.primitive(vm.stringClass.Obj.class, "fromCodePoint(_)", stringFromCodePoint)
	vm.primitive(vm.stringClass.Obj.class, "fromByte(_)", stringFromByte)
	vm.primitive(vm.stringClass, "+(_)", stringPlus)
	vm.primitive(vm.stringClass, "[_]", stringSubscript)
	vm.primitive(vm.stringClass, "byteAt_(_)", stringByteAt)
	vm.primitive(vm.stringClass, "byteCount_", stringByteCount)
	vm.primitive(vm.stringClass, "codePointAt_(_)", stringCodePointAt)
	vm.primitive(vm.stringClass, "contains(_)", stringContains)
	vm.primitive(vm.stringClass, "endsWith(_)", stringEndsWith)
	vm.primitive(vm.stringClass, "indexOf(_)", stringIndexOf1)
	vm.primitive(vm.stringClass, "indexOf(_,_)", stringIndexOf2)
	vm.primitive(vm.stringClass, "iterate(_)", stringIterate)
	vm.primitive(vm.stringClass, "iterateByte_(_)", stringIterateByte)
	vm.primitive(vm.stringClass, "iteratorValue(_)", stringIteratorValue)
	vm.primitive(vm.stringClass, "startsWith(_)", stringStartsWith)
	vm.primitive(vm.stringClass, "toString", stringToString)
	vm.bindDollarOperator()

	vm.listClass = vm.findVariable(coreModule, "List").asClass()
	vm.primitive(vm.listClass.Obj.class, "filled(_,_)", listFilled)
	vm.primitive(vm.listClass.Obj.class, "new()", listNew)
	vm.primitive(vm.listClass, "[_]", listSubscript)
	vm.primitive(vm.listClass, "[_]=(_)", listSubscriptSetter)
	vm.primitive(vm.listClass, "add(_)", listAdd)
	vm.primitive(vm.listClass, "addCore_(_)", listAddCore)
	vm.primitive(vm.listClass, "clear()", listClear)
	vm.primitive(vm.listClass, "count", listCount)
	vm.primitive(vm.listClass, "insert(_,_)", listInsert)
	vm.primitive(vm.listClass, "iterate(_)", listIterate)
	vm.primitive(vm.listClass, "iteratorValue(_)", listIteratorValue)
	vm.primitive(vm.listClass, "removeAt(_)", listRemoveAt)
	vm.primitive(vm.listClass, "remove(_)", listRemoveValue)
	vm.primitive(vm.listClass, "indexOf(_)", listIndexOf)
	vm.primitive(vm.listClass, "swap(_,_)", listSwap)

	vm.mapClass = vm.findVariable(coreModule, "Map").asClass()
	vm.primitive(vm.mapClass.Obj.class, "new()", mapNew)
	vm.primitive(vm.mapClass, "[_]", mapSubscript)
	vm.primitive(vm.mapClass, "[_]=(_)", mapSubscriptSetter)
	vm.primitive(vm.mapClass, "addCore_(_,_)", mapAddCore)
	vm.primitive(vm.mapClass, "clear()", mapClearPrimitive)
	vm.primitive(vm.mapClass, "containsKey(_)", mapContainsKey)
	vm.primitive(vm.mapClass, "count", mapCount)
	vm.primitive(vm.mapClass, "remove(_)", mapRemovePrimitive)
	vm.primitive(vm.mapClass, "iterate(_)", mapIterate)
	vm.primitive(vm.mapClass, "keyIteratorValue_(_)", mapKeyIteratorValue)
	vm.primitive(vm.mapClass, "valueIteratorValue_(_)", mapValueIteratorValue)

	vm.rangeClass = vm.findVariable(coreModule, "Range").asClass()
	vm.primitive(vm.rangeClass, "from", rangeFrom)
	vm.primitive(vm.rangeClass, "to", rangeTo)
	vm.primitive(vm.rangeClass, "min", rangeMin)
	vm.primitive(vm.rangeClass, "max", rangeMax)
	vm.primitive(vm.rangeClass, "isInclusive", rangeIsInclusive)
	vm.primitive(vm.rangeClass, "iterate(_)", rangeIterate)
	vm.primitive(vm.rangeClass, "iteratorValue(_)", rangeIteratorValue)
	vm.primitive(vm.rangeClass, "toString", rangeToString)

	systemClass := vm.findVariable(coreModule, "System").asClass()
	vm.primitive(systemClass.Obj.class, "clock", systemClock)
	vm.primitive(systemClass.Obj.class, "gc()", systemGC)
	vm.primitive(systemClass.Obj.class, "isDebugBuild", systemIsDebugBuild)
	vm.primitive(systemClass.Obj.class, "writeString_(_)", systemWriteString)

	// Strings interned while the classes above were still being wired up
	// have no class pointer yet.
	for obj := vm.first; obj != nil; obj = obj.next {
		if obj.kind == KindString {
			obj.class = vm.stringClass
		}
	}
}

// bindDollarOperator installs the "$" method on String. It dispatches to
// the host hook when one is configured and returns null otherwise.
func (vm *VM) bindDollarOperator() {
	if vm.config.DollarOperatorFn != nil {
		symbol := vm.methodNames.Ensure("$")
		vm.bindMethod(vm.stringClass, symbol, Method{
			kind:    MethodForeign,
			foreign: vm.config.DollarOperatorFn,
		})
		return
	}
	vm.primitive(vm.stringClass, "$", func(vm *VM, args []Value) bool {
		args[0] = NullValue
		return true
	})
}
