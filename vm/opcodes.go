package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode set
// ---------------------------------------------------------------------------

// Opcode is one bytecode instruction. Operands follow inline; two-byte
// operands are big-endian.
type Opcode byte

const (
	// OpConstant pushes constants[u16].
	OpConstant Opcode = iota

	OpNull
	OpFalse
	OpTrue

	// OpLoadLocal0 through OpLoadLocal8 push a fixed stack slot; the slot
	// number is recovered from the opcode itself.
	OpLoadLocal0
	OpLoadLocal1
	OpLoadLocal2
	OpLoadLocal3
	OpLoadLocal4
	OpLoadLocal5
	OpLoadLocal6
	OpLoadLocal7
	OpLoadLocal8

	OpLoadLocal  // u8 slot
	OpStoreLocal // u8 slot; leaves value on the stack

	OpLoadUpvalue  // u8 upvalue index
	OpStoreUpvalue // u8 upvalue index

	OpLoadModuleVar  // u16 module variable index
	OpStoreModuleVar // u16 module variable index

	OpLoadFieldThis  // u8 field; receiver is the frame's slot 0
	OpStoreFieldThis // u8 field
	OpLoadField      // u8 field; pops the instance
	OpStoreField     // u8 field; pops the instance

	OpPop

	// OpCall0 through OpCall16 invoke the method with symbol u16 on the
	// receiver below the arguments. The argument count comes from the
	// opcode.
	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCall5
	OpCall6
	OpCall7
	OpCall8
	OpCall9
	OpCall10
	OpCall11
	OpCall12
	OpCall13
	OpCall14
	OpCall15
	OpCall16

	// OpSuper0 through OpSuper16 are calls dispatched in the superclass
	// held by constant u16 that follows the symbol operand.
	OpSuper0
	OpSuper1
	OpSuper2
	OpSuper3
	OpSuper4
	OpSuper5
	OpSuper6
	OpSuper7
	OpSuper8
	OpSuper9
	OpSuper10
	OpSuper11
	OpSuper12
	OpSuper13
	OpSuper14
	OpSuper15
	OpSuper16

	OpJump   // u16 forward offset
	OpLoop   // u16 backward offset
	OpJumpIf // u16 forward offset; pops condition, jumps when falsey
	OpAnd    // u16 forward offset; peeks, jumps when falsey, else pops
	OpOr     // u16 forward offset; peeks, jumps when truthy, else pops

	OpCloseUpvalue // close the top stack slot and pop it

	OpReturn

	// OpClosure wraps function constant u16 in a closure; a pair of
	// bytes (isLocal, index) per upvalue follows.
	OpClosure

	OpConstruct        // replace the class in slot 0 with a fresh instance
	OpForeignConstruct // same for a foreign class

	OpClass        // u8 field count; pops superclass and name, pushes class
	OpForeignClass // pops superclass and name, pushes foreign class
	OpEndClass     // pops attributes and class, attaching the former

	OpMethodInstance // u16 symbol; pops method and class
	OpMethodStatic   // u16 symbol; pops method and class

	OpEndModule // module body finished; pushes null

	OpImportModule   // u16 name constant; pushes the module's export value
	OpImportVariable // u16 name constant; pushes from the last imported module

	// OpEnd terminates the bytecode. Never executed.
	OpEnd
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int
	StackEffect  int
}

// opcodeTable maps opcodes to their metadata. OpClosure's trailing
// upvalue pairs are not counted in OperandBytes; the disassembler and the
// interpreter recover them from the function constant.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpConstant: {"CONSTANT", 2, 1},

	OpNull:  {"NULL", 0, 1},
	OpFalse: {"FALSE", 0, 1},
	OpTrue:  {"TRUE", 0, 1},

	OpLoadLocal0: {"LOAD_LOCAL_0", 0, 1},
	OpLoadLocal1: {"LOAD_LOCAL_1", 0, 1},
	OpLoadLocal2: {"LOAD_LOCAL_2", 0, 1},
	OpLoadLocal3: {"LOAD_LOCAL_3", 0, 1},
	OpLoadLocal4: {"LOAD_LOCAL_4", 0, 1},
	OpLoadLocal5: {"LOAD_LOCAL_5", 0, 1},
	OpLoadLocal6: {"LOAD_LOCAL_6", 0, 1},
	OpLoadLocal7: {"LOAD_LOCAL_7", 0, 1},
	OpLoadLocal8: {"LOAD_LOCAL_8", 0, 1},

	OpLoadLocal:  {"LOAD_LOCAL", 1, 1},
	OpStoreLocal: {"STORE_LOCAL", 1, 0},

	OpLoadUpvalue:  {"LOAD_UPVALUE", 1, 1},
	OpStoreUpvalue: {"STORE_UPVALUE", 1, 0},

	OpLoadModuleVar:  {"LOAD_MODULE_VAR", 2, 1},
	OpStoreModuleVar: {"STORE_MODULE_VAR", 2, 0},

	OpLoadFieldThis:  {"LOAD_FIELD_THIS", 1, 1},
	OpStoreFieldThis: {"STORE_FIELD_THIS", 1, 0},
	OpLoadField:      {"LOAD_FIELD", 1, 0},
	OpStoreField:     {"STORE_FIELD", 1, -1},

	OpPop: {"POP", 0, -1},

	OpCall0:  {"CALL_0", 2, 0},
	OpCall1:  {"CALL_1", 2, -1},
	OpCall2:  {"CALL_2", 2, -2},
	OpCall3:  {"CALL_3", 2, -3},
	OpCall4:  {"CALL_4", 2, -4},
	OpCall5:  {"CALL_5", 2, -5},
	OpCall6:  {"CALL_6", 2, -6},
	OpCall7:  {"CALL_7", 2, -7},
	OpCall8:  {"CALL_8", 2, -8},
	OpCall9:  {"CALL_9", 2, -9},
	OpCall10: {"CALL_10", 2, -10},
	OpCall11: {"CALL_11", 2, -11},
	OpCall12: {"CALL_12", 2, -12},
	OpCall13: {"CALL_13", 2, -13},
	OpCall14: {"CALL_14", 2, -14},
	OpCall15: {"CALL_15", 2, -15},
	OpCall16: {"CALL_16", 2, -16},

	OpSuper0:  {"SUPER_0", 4, 0},
	OpSuper1:  {"SUPER_1", 4, -1},
	OpSuper2:  {"SUPER_2", 4, -2},
	OpSuper3:  {"SUPER_3", 4, -3},
	OpSuper4:  {"SUPER_4", 4, -4},
	OpSuper5:  {"SUPER_5", 4, -5},
	OpSuper6:  {"SUPER_6", 4, -6},
	OpSuper7:  {"SUPER_7", 4, -7},
	OpSuper8:  {"SUPER_8", 4, -8},
	OpSuper9:  {"SUPER_9", 4, -9},
	OpSuper10: {"SUPER_10", 4, -10},
	OpSuper11: {"SUPER_11", 4, -11},
	OpSuper12: {"SUPER_12", 4, -12},
	OpSuper13: {"SUPER_13", 4, -13},
	OpSuper14: {"SUPER_14", 4, -14},
	OpSuper15: {"SUPER_15", 4, -15},
	OpSuper16: {"SUPER_16", 4, -16},

	OpJump:   {"JUMP", 2, 0},
	OpLoop:   {"LOOP", 2, 0},
	OpJumpIf: {"JUMP_IF", 2, -1},
	OpAnd:    {"AND", 2, -1},
	OpOr:     {"OR", 2, -1},

	OpCloseUpvalue: {"CLOSE_UPVALUE", 0, -1},

	OpReturn: {"RETURN", 0, 0},

	OpClosure: {"CLOSURE", 2, 1},

	OpConstruct:        {"CONSTRUCT", 0, 0},
	OpForeignConstruct: {"FOREIGN_CONSTRUCT", 0, 0},

	OpClass:        {"CLASS", 1, -1},
	OpForeignClass: {"FOREIGN_CLASS", 0, -1},
	OpEndClass:     {"END_CLASS", 0, -2},

	OpMethodInstance: {"METHOD_INSTANCE", 2, -2},
	OpMethodStatic:   {"METHOD_STATIC", 2, -2},

	OpEndModule: {"END_MODULE", 0, 1},

	OpImportModule:   {"IMPORT_MODULE", 2, 1},
	OpImportVariable: {"IMPORT_VARIABLE", 2, 1},

	OpEnd: {"END", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string { return op.Info().Name }

// StackEffect returns the net stack change, with call argument counts
// already folded in.
func (op Opcode) StackEffect() int { return op.Info().StackEffect }

func readShort(code []byte, i int) int {
	return int(code[i])<<8 | int(code[i+1])
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// dumpInstruction formats the instruction at offset i and returns its
// total length in bytes.
func dumpInstruction(fn *ObjFn, i int, b *strings.Builder) int {
	start := i
	op := Opcode(fn.code[i])
	i++
	info := op.Info()

	fmt.Fprintf(b, "%04d  %-18s", start, info.Name)

	switch op {
	case OpConstant, OpImportModule, OpImportVariable:
		c := readShort(fn.code, i)
		i += 2
		fmt.Fprintf(b, " %d (%s)", c, debugValue(fn.constants[c]))

	case OpClosure:
		c := readShort(fn.code, i)
		i += 2
		inner := fn.constants[c].asFn()
		fmt.Fprintf(b, " %d (%s)", c, inner.debug.name)
		for j := 0; j < inner.numUpvalues; j++ {
			kind := "upvalue"
			if fn.code[i] == 1 {
				kind = "local"
			}
			fmt.Fprintf(b, " %s %d", kind, fn.code[i+1])
			i += 2
		}

	case OpSuper0, OpSuper1, OpSuper2, OpSuper3, OpSuper4, OpSuper5,
		OpSuper6, OpSuper7, OpSuper8, OpSuper9, OpSuper10, OpSuper11,
		OpSuper12, OpSuper13, OpSuper14, OpSuper15, OpSuper16:
		sym := readShort(fn.code, i)
		super := readShort(fn.code, i+2)
		i += 4
		fmt.Fprintf(b, " sym %d super %d", sym, super)

	default:
		switch info.OperandBytes {
		case 1:
			fmt.Fprintf(b, " %d", fn.code[i])
			i++
		case 2:
			fmt.Fprintf(b, " %d", readShort(fn.code, i))
			i += 2
		}
	}

	b.WriteByte('\n')
	return i - start
}

// DumpFunction renders a function's bytecode one instruction per line.
func DumpFunction(fn *ObjFn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", fn.debug.name)
	for i := 0; i < len(fn.code); {
		i += dumpInstruction(fn, i, &b)
	}
	return b.String()
}

// DumpSource compiles source in the named module and renders the
// bytecode of its body and every nested function. The module state is
// left as compiled; nothing runs.
func (vm *VM) DumpSource(module, source string) (string, bool) {
	closure := vm.compileSourceInModule(module, source)
	if closure == nil {
		return "", false
	}

	var b strings.Builder
	dumpFunctionTree(closure.fn, &b)
	return b.String(), true
}

// dumpFunctionTree renders a function and, depth-first, the functions
// nested in its constant pool.
func dumpFunctionTree(fn *ObjFn, b *strings.Builder) {
	b.WriteString(DumpFunction(fn))
	for _, constant := range fn.constants {
		if !constant.IsObj() || constant.Obj().kind != KindFn {
			continue
		}
		b.WriteByte('\n')
		dumpFunctionTree(constant.asFn(), b)
	}
}

// debugValue renders a value for disassembly and log output.
func debugValue(v Value) string {
	switch {
	case v.IsNum():
		return fmt.Sprintf("%g", v.Num())
	case v.IsBool():
		return fmt.Sprintf("%t", v.Bool())
	case v.IsNull():
		return "null"
	case v.IsUndefined():
		return "undefined"
	case v.IsString():
		return fmt.Sprintf("%q", v.asString().value)
	case v.IsObj():
		switch v.Obj().kind {
		case KindFn:
			return "fn " + v.asFn().debug.name
		case KindClosure:
			return "closure " + v.asClosure().fn.debug.name
		case KindClass:
			return "class " + v.asClass().name.value
		case KindRange:
			r := v.asRange()
			op := "..."
			if r.isInclusive {
				op = ".."
			}
			return fmt.Sprintf("%g%s%g", r.from, op, r.to)
		}
		return fmt.Sprintf("obj kind %d", v.Obj().kind)
	}
	return "?"
}
