package vm

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: configuration and top-level state
// ---------------------------------------------------------------------------

// InterpretResult is the outcome of running a chunk of source.
type InterpretResult int

const (
	ResultSuccess InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

// ErrorKind tells the error callback what sort of diagnostic it is given.
type ErrorKind int

const (
	// ErrorCompile reports a syntax or resolution error with its module
	// and line.
	ErrorCompile ErrorKind = iota

	// ErrorRuntime reports an uncaught runtime error message. Module and
	// line are unused.
	ErrorRuntime

	// ErrorStackTrace reports one stack frame of the trace that follows a
	// runtime error, outermost last.
	ErrorStackTrace
)

// ForeignMethodFn is a host function bound as a method. It communicates
// with the VM through the slot API; slot 0 holds the receiver on entry and
// the return value on exit.
type ForeignMethodFn func(vm *VM)

// FinalizerFn runs when a foreign object is about to be reclaimed. It
// receives the object's raw byte payload and must not call back into the
// VM.
type FinalizerFn func(data []byte)

// ForeignClassMethods supplies the lifecycle hooks for a foreign class.
type ForeignClassMethods struct {
	Allocate ForeignMethodFn
	Finalize FinalizerFn
}

// ResolveModuleFn maps an import string to a canonical module name, given
// the module doing the importing. Returning "" makes the import fail.
type ResolveModuleFn func(vm *VM, importer, name string) string

// LoadModuleFn returns the source for a module name. The second result is
// false when the module cannot be provided.
type LoadModuleFn func(vm *VM, name string) (string, bool)

// BindForeignMethodFn locates the host function for a foreign method
// declaration. Returning nil makes the declaration a runtime error.
type BindForeignMethodFn func(vm *VM, module, className string, isStatic bool, signature string) ForeignMethodFn

// BindForeignClassFn locates the lifecycle hooks for a foreign class
// declaration.
type BindForeignClassFn func(vm *VM, module, className string) ForeignClassMethods

// WriteFn receives the output of System.print and friends.
type WriteFn func(vm *VM, text string)

// ErrorFn receives compile errors, runtime errors, and stack trace frames.
type ErrorFn func(vm *VM, kind ErrorKind, module string, line int, message string)

// Config tunes a VM. The zero value is usable; nil callbacks fall back to
// defaults (writes and errors are dropped, imports fail).
type Config struct {
	ResolveModuleFn     ResolveModuleFn
	LoadModuleFn        LoadModuleFn
	BindForeignMethodFn BindForeignMethodFn
	BindForeignClassFn  BindForeignClassFn
	WriteFn             WriteFn
	ErrorFn             ErrorFn

	// DollarOperatorFn backs the "$" string method and the $"..."
	// literal form. The receiver string is in slot 0 on entry; the hook
	// leaves its result there. Nil makes "$" return null.
	DollarOperatorFn ForeignMethodFn

	// InitialHeapSize is the accounted-byte threshold of the first GC.
	// Zero means 10 MiB.
	InitialHeapSize int

	// MinHeapSize floors the threshold so small live sets do not thrash
	// the collector. Zero means 1 MiB.
	MinHeapSize int

	// HeapGrowthPercent scales the next threshold from the live size
	// after a collection. Zero means 50.
	HeapGrowthPercent int

	// TrailingSemicolons permits an optional ";" before a newline.
	TrailingSemicolons bool

	// GCStress collects before every allocation. For tests.
	GCStress bool

	// UserData rides along for host callbacks.
	UserData any
}

const tempRootsMax = 8

// VM is a single interpreter instance. A VM and everything reachable from
// it belong to one goroutine; instances are independent of each other.
type VM struct {
	config Config

	boolClass   *ObjClass
	classClass  *ObjClass
	fiberClass  *ObjClass
	fnClass     *ObjClass
	listClass   *ObjClass
	mapClass    *ObjClass
	nullClass   *ObjClass
	numClass    *ObjClass
	objectClass *ObjClass
	rangeClass  *ObjClass
	stringClass *ObjClass

	// Loaded modules by name value. The core module hides under null.
	modules    *ObjMap
	lastModule *ObjModule

	// GC bookkeeping.
	bytesAllocated int
	nextGC         int
	first          *Obj
	gray           []*Obj
	tempRoots      [tempRootsMax]*Obj
	numTempRoots   int

	// The running fiber.
	fiber *ObjFiber

	// Slot window for the embedding API: a view into the API fiber's
	// stack while a foreign call or host setup sequence is active.
	apiStack      []Value
	apiStackStart int

	handles *Handle

	// Innermost active compiler, so compile-time objects survive a GC
	// triggered mid-compile.
	compiler *compiler

	// Method signatures interned across all classes. Plain Go strings;
	// the table is never collected.
	methodNames SymbolTable

	id  uuid.UUID
	log commonlog.Logger
}

// NewVM creates a fresh VM with the core library loaded.
func NewVM(config Config) *VM {
	if config.InitialHeapSize == 0 {
		config.InitialHeapSize = 10 * 1024 * 1024
	}
	if config.MinHeapSize == 0 {
		config.MinHeapSize = 1024 * 1024
	}
	if config.HeapGrowthPercent == 0 {
		config.HeapGrowthPercent = 50
	}

	vm := &VM{
		config: config,
		nextGC: config.InitialHeapSize,
		gray:   make([]*Obj, 0, 16),
		id:     uuid.New(),
	}
	vm.log = commonlog.GetLogger("wren.vm." + vm.id.String()[:8])

	vm.modules = vm.newMap()
	vm.initializeCore()
	return vm
}

// Free releases every object the VM owns, running foreign finalizers.
// Handles must have been released first.
func (vm *VM) Free() {
	for obj := vm.first; obj != nil; obj = obj.next {
		if obj.kind == KindForeign {
			vm.finalizeForeign(objAsForeign(obj))
		}
	}
	vm.first = nil
	vm.fiber = nil
	vm.modules = nil
	vm.bytesAllocated = 0
	vm.log.Debug("freed")
}

// UserData returns the value stored in Config.UserData.
func (vm *VM) UserData() any { return vm.config.UserData }

// SetUserData replaces the host data value.
func (vm *VM) SetUserData(data any) { vm.config.UserData = data }

func (vm *VM) write(text string) {
	if vm.config.WriteFn != nil {
		vm.config.WriteFn(vm, text)
	}
}

func (vm *VM) reportError(kind ErrorKind, module string, line int, message string) {
	if vm.config.ErrorFn != nil {
		vm.config.ErrorFn(vm, kind, module, line, message)
	}
}
