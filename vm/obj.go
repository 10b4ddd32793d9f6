package vm

import (
	"hash/fnv"
	"math"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Object header
// ---------------------------------------------------------------------------

// ObjKind identifies the concrete type behind an object header.
type ObjKind uint8

const (
	KindClass ObjKind = iota
	KindClosure
	KindFiber
	KindFn
	KindForeign
	KindInstance
	KindList
	KindMap
	KindModule
	KindRange
	KindString
	KindUpvalue
)

// Obj is the header embedded as the first field of every heap object.
// The embedding lets a header pointer be cast back to its concrete type,
// and the next pointer threads every live object for the sweep phase.
type Obj struct {
	kind  ObjKind
	dark  bool
	class *ObjClass
	next  *Obj
}

// Kind returns the object's concrete kind.
func (o *Obj) Kind() ObjKind { return o.kind }

// ClassObj returns the object's class. May be nil only during core
// bootstrap, before the class graph is wired.
func (o *Obj) ClassObj() *ObjClass { return o.class }

func (o *Obj) val() Value { return ObjValue(o) }

// ---------------------------------------------------------------------------
// Concrete object kinds
// ---------------------------------------------------------------------------

// ObjString is an immutable UTF-8 byte string with a cached FNV-1a hash.
type ObjString struct {
	Obj
	hash  uint32
	value string
}

// String returns the raw bytes of the string.
func (s *ObjString) String() string { return s.value }

// ObjList is a growable sequence of values.
type ObjList struct {
	Obj
	elements []Value
}

// ObjRange is an immutable numeric range.
type ObjRange struct {
	Obj
	from        float64
	to          float64
	isInclusive bool
}

// ObjModule is a compiled module: a name table with a parallel slice of
// variable values.
type ObjModule struct {
	Obj
	variableNames SymbolTable
	variables     []Value
	name          *ObjString
}

// Name returns the module's name, or "" for the core module.
func (m *ObjModule) Name() string {
	if m.name == nil {
		return ""
	}
	return m.name.value
}

// FnDebug carries the debug metadata for a function: its name and one
// source line per bytecode byte.
type FnDebug struct {
	name        string
	sourceLines []int
}

// ObjFn is a compiled unit of code: raw bytecode plus a constant pool.
type ObjFn struct {
	Obj
	code        []byte
	constants   []Value
	module      *ObjModule
	maxSlots    int
	numUpvalues int
	arity       int
	debug       *FnDebug
}

// ObjClosure pairs a function with the upvalues it closed over.
type ObjClosure struct {
	Obj
	fn       *ObjFn
	upvalues []*ObjUpvalue
}

// ObjUpvalue is a cell shared by closures that close over the same local.
// While open it addresses a slot in the owner fiber's stack; closing moves
// the value inline and drops the stack reference.
type ObjUpvalue struct {
	Obj
	owner      *ObjFiber
	stackIndex int // -1 once closed
	closed     Value
	next       *ObjUpvalue
}

func (u *ObjUpvalue) get() Value {
	if u.stackIndex >= 0 {
		return u.owner.stack[u.stackIndex]
	}
	return u.closed
}

func (u *ObjUpvalue) set(v Value) {
	if u.stackIndex >= 0 {
		u.owner.stack[u.stackIndex] = v
		return
	}
	u.closed = v
}

func (u *ObjUpvalue) close() {
	if u.stackIndex >= 0 {
		u.closed = u.owner.stack[u.stackIndex]
		u.stackIndex = -1
		u.owner = nil
	}
}

// MethodKind discriminates the entries of a class method table.
type MethodKind uint8

const (
	// MethodNone marks an unbound symbol.
	MethodNone MethodKind = iota
	// MethodPrimitive is a built-in implemented as a Go function over the
	// argument window.
	MethodPrimitive
	// MethodFunctionCall is the special "call(...)" dispatch on Fn values.
	MethodFunctionCall
	// MethodForeign is a host function bound through the configuration.
	MethodForeign
	// MethodBlock is a method compiled from script source.
	MethodBlock
)

// primitiveFn implements a built-in method. args[0] is the receiver. A
// true return means args[0] holds the result; false means the fiber's
// error was set or control was transferred to another fiber.
type primitiveFn func(vm *VM, args []Value) bool

// Method is one entry in a class method table.
type Method struct {
	kind      MethodKind
	primitive primitiveFn
	foreign   ForeignMethodFn
	closure   *ObjClosure

	// finalize is set only on the hidden "<finalize>" entry of a foreign
	// class. It runs during sweep, so it is not a callable method.
	finalize FinalizerFn
}

// ObjClass is a class: a superclass link, field count, and a dense method
// table indexed by global method symbol.
type ObjClass struct {
	Obj
	superclass *ObjClass
	// numFields counts the fields of an instance including inherited
	// ones; -1 marks a foreign class.
	numFields  int
	methods    []Method
	name       *ObjString
	attributes Value
}

// Name returns the class name.
func (c *ObjClass) Name() string {
	if c.name == nil {
		return ""
	}
	return c.name.value
}

// ObjInstance is a script-defined object with inline fields.
type ObjInstance struct {
	Obj
	fields []Value
}

// ObjForeign wraps host-owned bytes whose layout the VM never inspects.
type ObjForeign struct {
	Obj
	data []byte
}

// data_ returns the instance's host-owned bytes.
func (f *ObjForeign) data_() []byte { return f.data }

// ---------------------------------------------------------------------------
// Header casts
// ---------------------------------------------------------------------------

// The concrete structs embed Obj as their first field, so a header
// pointer and the concrete pointer are the same address.

func (v Value) asString() *ObjString     { return (*ObjString)(unsafe.Pointer(v.Obj())) }
func (v Value) asList() *ObjList         { return (*ObjList)(unsafe.Pointer(v.Obj())) }
func (v Value) asMap() *ObjMap           { return (*ObjMap)(unsafe.Pointer(v.Obj())) }
func (v Value) asRange() *ObjRange       { return (*ObjRange)(unsafe.Pointer(v.Obj())) }
func (v Value) asModule() *ObjModule     { return (*ObjModule)(unsafe.Pointer(v.Obj())) }
func (v Value) asFn() *ObjFn             { return (*ObjFn)(unsafe.Pointer(v.Obj())) }
func (v Value) asClosure() *ObjClosure   { return (*ObjClosure)(unsafe.Pointer(v.Obj())) }
func (v Value) asFiber() *ObjFiber       { return (*ObjFiber)(unsafe.Pointer(v.Obj())) }
func (v Value) asClass() *ObjClass       { return (*ObjClass)(unsafe.Pointer(v.Obj())) }
func (v Value) asInstance() *ObjInstance { return (*ObjInstance)(unsafe.Pointer(v.Obj())) }
func (v Value) asForeign() *ObjForeign   { return (*ObjForeign)(unsafe.Pointer(v.Obj())) }

func (v Value) isKind(k ObjKind) bool { return v.IsObj() && v.Obj().kind == k }

// objAs casts a header pointer to the concrete type named by its kind.
// Used where only the header is in hand, as in the GC phases.
func objAsString(o *Obj) *ObjString     { return (*ObjString)(unsafe.Pointer(o)) }
func objAsList(o *Obj) *ObjList         { return (*ObjList)(unsafe.Pointer(o)) }
func objAsMap(o *Obj) *ObjMap           { return (*ObjMap)(unsafe.Pointer(o)) }
func objAsRange(o *Obj) *ObjRange       { return (*ObjRange)(unsafe.Pointer(o)) }
func objAsModule(o *Obj) *ObjModule     { return (*ObjModule)(unsafe.Pointer(o)) }
func objAsFn(o *Obj) *ObjFn             { return (*ObjFn)(unsafe.Pointer(o)) }
func objAsClosure(o *Obj) *ObjClosure   { return (*ObjClosure)(unsafe.Pointer(o)) }
func objAsFiber(o *Obj) *ObjFiber       { return (*ObjFiber)(unsafe.Pointer(o)) }
func objAsClass(o *Obj) *ObjClass       { return (*ObjClass)(unsafe.Pointer(o)) }
func objAsInstance(o *Obj) *ObjInstance { return (*ObjInstance)(unsafe.Pointer(o)) }
func objAsUpvalue(o *Obj) *ObjUpvalue   { return (*ObjUpvalue)(unsafe.Pointer(o)) }
func objAsForeign(o *Obj) *ObjForeign   { return (*ObjForeign)(unsafe.Pointer(o)) }

// IsString returns true if v is a string object.
func (v Value) IsString() bool { return v.isKind(KindString) }

// IsList returns true if v is a list object.
func (v Value) IsList() bool { return v.isKind(KindList) }

// IsMap returns true if v is a map object.
func (v Value) IsMap() bool { return v.isKind(KindMap) }

// IsRange returns true if v is a range object.
func (v Value) IsRange() bool { return v.isKind(KindRange) }

// IsClass returns true if v is a class object.
func (v Value) IsClass() bool { return v.isKind(KindClass) }

// IsClosure returns true if v is a closure object.
func (v Value) IsClosure() bool { return v.isKind(KindClosure) }

// IsFiber returns true if v is a fiber object.
func (v Value) IsFiber() bool { return v.isKind(KindFiber) }

// IsInstance returns true if v is a script-defined instance.
func (v Value) IsInstance() bool { return v.isKind(KindInstance) }

// IsForeign returns true if v is a foreign object.
func (v Value) IsForeign() bool { return v.isKind(KindForeign) }

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// initObj fills an object header and threads it onto the all-objects list.
// Callers must have already accounted the allocation via reallocate so a
// collection triggered by the accounting cannot observe the object.
func (vm *VM) initObj(obj *Obj, kind ObjKind, class *ObjClass) {
	obj.kind = kind
	obj.dark = false
	obj.class = class
	obj.next = vm.first
	vm.first = obj
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (vm *VM) newString(s string) *ObjString {
	vm.reallocate(0, sizeObjString+len(s))
	str := &ObjString{hash: hashString(s), value: s}
	vm.initObj(&str.Obj, KindString, vm.stringClass)
	return str
}

// stringValue is the common path for primitives that produce strings.
func (vm *VM) stringValue(s string) Value { return vm.newString(s).val() }

func (vm *VM) newList(numElements int) *ObjList {
	vm.reallocate(0, sizeObjList+numElements*sizeValue)
	list := &ObjList{}
	if numElements > 0 {
		list.elements = make([]Value, numElements)
		for i := range list.elements {
			list.elements[i] = NullValue
		}
	}
	vm.initObj(&list.Obj, KindList, vm.listClass)
	return list
}

func (vm *VM) newRange(from, to float64, isInclusive bool) *ObjRange {
	vm.reallocate(0, sizeObjRange)
	r := &ObjRange{from: from, to: to, isInclusive: isInclusive}
	vm.initObj(&r.Obj, KindRange, vm.rangeClass)
	return r
}

func (vm *VM) newModule(name *ObjString) *ObjModule {
	vm.reallocate(0, sizeObjModule)
	m := &ObjModule{name: name}
	// Modules are never passed to scripts, so they have no class.
	vm.initObj(&m.Obj, KindModule, nil)
	return m
}

func (vm *VM) newFunction(module *ObjModule, maxSlots int) *ObjFn {
	vm.reallocate(0, sizeObjFn)
	fn := &ObjFn{
		module:   module,
		maxSlots: maxSlots,
		debug:    &FnDebug{},
	}
	vm.initObj(&fn.Obj, KindFn, vm.fnClass)
	return fn
}

func (vm *VM) newClosure(fn *ObjFn) *ObjClosure {
	vm.reallocate(0, sizeObjClosure+fn.numUpvalues*sizePointer)
	c := &ObjClosure{fn: fn}
	if fn.numUpvalues > 0 {
		c.upvalues = make([]*ObjUpvalue, fn.numUpvalues)
	}
	vm.initObj(&c.Obj, KindClosure, vm.fnClass)
	return c
}

func (vm *VM) newUpvalue(owner *ObjFiber, stackIndex int) *ObjUpvalue {
	vm.reallocate(0, sizeObjUpvalue)
	u := &ObjUpvalue{owner: owner, stackIndex: stackIndex, closed: NullValue}
	// Upvalues are internal plumbing; scripts never see one.
	vm.initObj(&u.Obj, KindUpvalue, nil)
	return u
}

func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	vm.reallocate(0, sizeObjInstance+class.numFields*sizeValue)
	inst := &ObjInstance{}
	if class.numFields > 0 {
		inst.fields = make([]Value, class.numFields)
		for i := range inst.fields {
			inst.fields[i] = NullValue
		}
	}
	vm.initObj(&inst.Obj, KindInstance, class)
	return inst
}

func (vm *VM) newForeign(class *ObjClass, size int) *ObjForeign {
	vm.reallocate(0, sizeObjForeign+size)
	f := &ObjForeign{data: make([]byte, size)}
	vm.initObj(&f.Obj, KindForeign, class)
	return f
}

// newSingleClass creates a bare class without a metaclass relationship.
// Used during bootstrap and as the first half of full class creation.
func (vm *VM) newSingleClass(numFields int, name *ObjString) *ObjClass {
	vm.reallocate(0, sizeObjClass)
	c := &ObjClass{numFields: numFields, name: name, attributes: NullValue}
	vm.initObj(&c.Obj, KindClass, nil)
	return c
}

// bindSuperclass wires a class to its superclass: fields are inherited
// and the method table is copied down so dispatch needs no chain walk.
func (vm *VM) bindSuperclass(subclass, superclass *ObjClass) {
	subclass.superclass = superclass
	if subclass.numFields != -1 {
		subclass.numFields += superclass.numFields
	}
	for sym, m := range superclass.methods {
		if m.kind != MethodNone {
			vm.bindMethod(subclass, sym, m)
		}
	}
}

// newClass creates a full class with its metaclass.
func (vm *VM) newClass(superclass *ObjClass, numFields int, name *ObjString) *ObjClass {
	vm.pushRoot(&name.Obj)
	metaclassName := vm.newString(name.value + " metaclass")
	vm.pushRoot(&metaclassName.Obj)

	metaclass := vm.newSingleClass(0, metaclassName)
	metaclass.class = vm.classClass
	vm.popRoot()

	vm.pushRoot(&metaclass.Obj)
	vm.bindSuperclass(metaclass, vm.classClass)

	class := vm.newSingleClass(numFields, name)
	vm.pushRoot(&class.Obj)
	class.class = metaclass
	vm.bindSuperclass(class, superclass)

	vm.popRoot()
	vm.popRoot()
	vm.popRoot()
	return class
}

// bindMethod stores a method in a class's table, growing it so the
// symbol indexes directly.
func (vm *VM) bindMethod(class *ObjClass, symbol int, method Method) {
	if symbol >= len(class.methods) {
		old := len(class.methods)
		grown := make([]Method, symbol+1)
		copy(grown, class.methods)
		vm.reallocate(old*sizeMethod, (symbol+1)*sizeMethod)
		class.methods = grown
	}
	class.methods[symbol] = method
}

// ---------------------------------------------------------------------------
// Size accounting
// ---------------------------------------------------------------------------

// Approximate per-object sizes used for GC accounting. Payload sizes
// (string bytes, element slices) are added at the call sites.
var sizeValue = int(unsafe.Sizeof(NullValue))

const (
	sizePointer = 8

	sizeObjString   = 48
	sizeObjList     = 48
	sizeObjMap      = 56
	sizeObjRange    = 48
	sizeObjModule   = 88
	sizeObjFn       = 120
	sizeObjClosure  = 48
	sizeObjUpvalue  = 64
	sizeObjFiber    = 112
	sizeObjClass    = 96
	sizeObjInstance = 48
	sizeObjForeign  = 48
	sizeMethod      = 40
)

// classOf returns the class used for method dispatch on a value.
func (vm *VM) classOf(v Value) *ObjClass {
	if v.IsNum() {
		return vm.numClass
	}
	if v.IsObj() {
		return v.Obj().class
	}
	switch {
	case v.IsNull():
		return vm.nullClass
	case v.IsBool():
		return vm.boolClass
	}
	return vm.nullClass
}

// ---------------------------------------------------------------------------
// Value equality and hashing
// ---------------------------------------------------------------------------

// valuesEqual implements the built-in == operator: identity first, then
// structural equality for strings and ranges.
func valuesEqual(a, b Value) bool {
	if Same(a, b) {
		return true
	}
	if !a.IsObj() || !b.IsObj() {
		return false
	}
	ao, bo := a.Obj(), b.Obj()
	if ao.kind != bo.kind {
		return false
	}
	switch ao.kind {
	case KindString:
		as, bs := a.asString(), b.asString()
		return as.hash == bs.hash && as.value == bs.value
	case KindRange:
		ar, br := a.asRange(), b.asRange()
		return ar.from == br.from && ar.to == br.to && ar.isInclusive == br.isInclusive
	}
	return false
}

func hashNum(n float64) uint32 {
	bits := math.Float64bits(n)
	return uint32(bits ^ bits>>32)
}

// hashValue returns a hash code for a map-keyable value, or false if the
// value cannot be a key.
func hashValue(v Value) (uint32, bool) {
	if v.IsNum() {
		return hashNum(v.Num()), true
	}
	if !v.IsObj() {
		// Singletons hash by tag.
		switch {
		case v.IsNull():
			return 1, true
		case v.IsFalse():
			return 2, true
		case v.IsBool():
			return 3, true
		}
		return 0, false
	}
	switch v.Obj().kind {
	case KindString:
		return v.asString().hash, true
	case KindRange:
		r := v.asRange()
		return hashNum(r.from) ^ hashNum(r.to), true
	case KindClass:
		return v.asClass().name.hash, true
	}
	return 0, false
}
