package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Compiler limits
// ---------------------------------------------------------------------------

const (
	maxLocals        = 256
	maxUpvalues      = 256
	maxModuleVars    = 65536
	maxConstants     = 65536
	maxFields        = 255
	maxParameters    = 16
	maxJump          = 65535
	maxVariableName  = 64
	maxMethodName    = 64
)

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// parser holds the token stream state shared by the chain of nested
// compilers for one compilation unit.
type parser struct {
	vm     *VM
	module *ObjModule
	source string
	lexer  *Lexer

	previous Token
	current  Token
	next     Token

	printErrors bool
	hasError    bool
}

func (p *parser) moduleName() string {
	if p.module.name == nil {
		return "<core>"
	}
	return p.module.name.value
}

func (p *parser) nextToken() {
	p.previous = p.current
	p.current = p.next
	if p.next.Type == TokenEOF || p.current.Type == TokenEOF {
		return
	}
	p.next = p.lexer.NextToken()
	if p.next.Type == TokenError {
		p.reportError(p.next.Line, p.next.Str)
	}
}

func (p *parser) reportError(line int, message string) {
	p.hasError = true
	if !p.printErrors {
		return
	}
	p.vm.reportError(ErrorCompile, p.moduleName(), line, message)
}

// ---------------------------------------------------------------------------
// Compiler state
// ---------------------------------------------------------------------------

type local struct {
	name  string
	depth int
	// isUpvalue is set once a nested function closes over this local, so
	// leaving its scope closes the upvalue instead of plainly popping.
	isUpvalue bool
}

type compilerUpvalue struct {
	isLocal bool
	index   int
}

type loopInfo struct {
	// Offset of the instruction the loop jumps back to.
	start int
	// Operand offset of the condition's exit jump.
	exitJump int
	// Offset of the first body instruction.
	body int
	// Scope depth of the body, for break/continue local discarding.
	scopeDepth int

	enclosing *loopInfo
}

// attrValue is a compile-time attribute value. Attributes never hold
// heap objects at compile time, so the GC is not involved.
type attrValue struct {
	kind attrValueKind
	str  string
	num  float64
	b    bool
}

type attrValueKind int

const (
	attrNull attrValueKind = iota
	attrBool
	attrNum
	attrString
)

// attributeSet maps a group name ("" for bare attributes) to keys, each
// with every value it was given.
type attributeSet map[string]map[string][]attrValue

func (a attributeSet) add(group, key string, value attrValue) {
	if a[group] == nil {
		a[group] = make(map[string][]attrValue)
	}
	a[group][key] = append(a[group][key], value)
}

type classInfo struct {
	name      string
	isForeign bool

	// Attributes marked for runtime access, for the class itself and per
	// method signature.
	classAttributes  attributeSet
	methodAttributes map[string]attributeSet

	fields SymbolTable

	// Bound symbols for duplicate detection.
	methods       []int
	staticMethods []int

	inStatic  bool
	signature *Signature
}

func (ci *classInfo) hasMethod(symbol int, isStatic bool) bool {
	list := ci.methods
	if isStatic {
		list = ci.staticMethods
	}
	for _, s := range list {
		if s == symbol {
			return true
		}
	}
	return false
}

type constantKey struct {
	isString bool
	str      string
	bits     uint64
}

// compiler compiles one function. Nested function literals and methods
// get their own compiler linked through parent.
type compiler struct {
	parser *parser
	parent *compiler

	locals   []local
	upvalues []compilerUpvalue

	// -1 at module level, 0 for a function's outermost body scope.
	scopeDepth int

	// Running stack height, tracked so the function knows its peak.
	numSlots int

	loop           *loopInfo
	enclosingClass *classInfo

	fn        *ObjFn
	constants map[constantKey]int

	isInitializer bool

	// Attributes seen since the last definition, waiting for a class or
	// method to attach to.
	pendingAttributes attributeSet
	hasRuntimeAttrs   bool
}

func newCompiler(p *parser, parent *compiler, isMethod bool) *compiler {
	c := &compiler{
		parser:    p,
		parent:    parent,
		constants: make(map[constantKey]int),
	}
	if parent == nil {
		c.scopeDepth = -1
	}

	name := ""
	if isMethod {
		name = "this"
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
	c.numSlots = 1

	// Register before allocating the function so a collection mid-compile
	// sees it.
	p.vm.compiler = c
	c.fn = p.vm.newFunction(p.module, 1)
	return c
}

// markCompilerRoots grays everything the active compiler chain holds.
func (vm *VM) markCompilerRoots() {
	for c := vm.compiler; c != nil; c = c.parent {
		if c.fn != nil {
			vm.grayObj(&c.fn.Obj)
		}
		if c.parser != nil {
			vm.grayObj(&c.parser.module.Obj)
		}
	}
}

// ---------------------------------------------------------------------------
// Errors and token plumbing
// ---------------------------------------------------------------------------

func (c *compiler) error(format string, args ...any) {
	tok := c.parser.previous
	c.errorAt(tok, format, args...)
}

func (c *compiler) errorAtCurrent(format string, args ...any) {
	c.errorAt(c.parser.current, format, args...)
}

func (c *compiler) errorAt(tok Token, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	var label string
	switch tok.Type {
	case TokenLine:
		label = "Error at newline: "
	case TokenEOF:
		label = "Error at end of file: "
	case TokenError:
		label = "Error: "
	default:
		label = fmt.Sprintf("Error at '%s': ", tok.Content)
	}
	c.parser.reportError(tok.Line, label+message)
}

func (c *compiler) peek() TokenType     { return c.parser.current.Type }
func (c *compiler) peekNext() TokenType { return c.parser.next.Type }

func (c *compiler) match(t TokenType) bool {
	if c.peek() != t {
		return false
	}
	c.parser.nextToken()
	return true
}

func (c *compiler) consume(t TokenType, errFormat string, args ...any) {
	c.parser.nextToken()
	if c.parser.previous.Type != t {
		c.errorAt(c.parser.previous, errFormat, args...)
		// If the next token is the one we want, assume this one was
		// spurious and slide past it.
		if c.peek() == t {
			c.parser.nextToken()
		}
	}
}

// matchLine consumes a run of newline tokens, or a trailing semicolon
// when the configuration allows one.
func (c *compiler) matchLine() bool {
	matched := false
	if c.parser.vm.config.TrailingSemicolons && c.match(TokenSemicolon) {
		matched = true
	}
	for c.match(TokenLine) {
		matched = true
	}
	return matched
}

func (c *compiler) consumeLine(errFormat string, args ...any) {
	if !c.matchLine() {
		c.errorAtCurrent(errFormat, args...)
		c.parser.nextToken()
	}
}

func (c *compiler) ignoreNewlines() {
	for c.match(TokenLine) {
	}
}

// allowLineBeforeDot lets a method-chain line break before the dot.
func (c *compiler) allowLineBeforeDot() {
	if c.peek() == TokenLine && c.peekNext() == TokenDot {
		c.parser.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Bytecode emission
// ---------------------------------------------------------------------------

func (c *compiler) emitByte(b byte) int {
	c.fn.code = append(c.fn.code, b)
	c.fn.debug.sourceLines = append(c.fn.debug.sourceLines, c.parser.previous.Line)
	return len(c.fn.code) - 1
}

func (c *compiler) emitOp(op Opcode) {
	c.emitByte(byte(op))
	c.numSlots += op.StackEffect()
	if c.numSlots > c.fn.maxSlots {
		c.fn.maxSlots = c.numSlots
	}
}

func (c *compiler) emitShort(arg int) {
	c.emitByte(byte(arg >> 8))
	c.emitByte(byte(arg))
}

func (c *compiler) emitByteArg(op Opcode, arg int) int {
	c.emitOp(op)
	return c.emitByte(byte(arg))
}

func (c *compiler) emitShortArg(op Opcode, arg int) {
	c.emitOp(op)
	c.emitShort(arg)
}

// emitJump emits op with a placeholder offset and returns the offset of
// the operand for patching.
func (c *compiler) emitJump(op Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	return c.emitByte(0xff) - 1
}

func (c *compiler) patchJump(offset int) {
	jump := len(c.fn.code) - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	c.fn.code[offset] = byte(jump >> 8)
	c.fn.code[offset+1] = byte(jump)
}

// emitLoop jumps backward to the start of the current loop.
func (c *compiler) emitLoop() {
	offset := len(c.fn.code) - c.loop.start + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitShortArg(OpLoop, offset)
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

func (c *compiler) addConstant(v Value) int {
	if c.parser.hasError {
		return -1
	}

	var key constantKey
	hasKey := false
	switch {
	case v.IsNum():
		key = constantKey{bits: math.Float64bits(v.Num())}
		hasKey = true
	case v.IsString():
		key = constantKey{isString: true, str: v.asString().value}
		hasKey = true
	}
	if hasKey {
		if index, ok := c.constants[key]; ok {
			return index
		}
	}

	if len(c.fn.constants) == maxConstants {
		c.error("A function may only contain %d unique constants.", maxConstants)
		return -1
	}
	c.fn.constants = append(c.fn.constants, v)
	index := len(c.fn.constants) - 1
	if hasKey {
		c.constants[key] = index
	}
	return index
}

func (c *compiler) emitConstant(v Value) {
	c.emitShortArg(OpConstant, c.addConstant(v))
}

func (c *compiler) stringConstant(s string) Value {
	return c.parser.vm.stringValue(s)
}

// ---------------------------------------------------------------------------
// Variables and scopes
// ---------------------------------------------------------------------------

type scopeKind int

const (
	scopeLocal scopeKind = iota
	scopeUpvalue
	scopeModule
)

type variable struct {
	index int
	scope scopeKind
}

func (c *compiler) pushScope() { c.scopeDepth++ }

// discardLocals emits the pops for locals at or deeper than depth without
// forgetting them, so break and continue can leave a scope the compiler
// is still inside.
func (c *compiler) discardLocals(depth int) int {
	discarded := 0
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].depth >= depth; i-- {
		if c.locals[i].isUpvalue {
			c.emitByte(byte(OpCloseUpvalue))
		} else {
			c.emitByte(byte(OpPop))
		}
		discarded++
	}
	return discarded
}

func (c *compiler) popScope() {
	popped := c.discardLocals(c.scopeDepth)
	c.locals = c.locals[:len(c.locals)-popped]
	c.numSlots -= popped
	c.scopeDepth--
}

func (c *compiler) addLocal(name string) int {
	c.locals = append(c.locals, local{name: name, depth: c.scopeDepth})
	return len(c.locals) - 1
}

// declareVariable introduces the named variable in the current scope and
// returns its symbol (module index or local slot).
func (c *compiler) declareVariable(tok Token) int {
	name := tok.Content
	if len(name) > maxVariableName {
		c.errorAt(tok, "Variable name cannot be longer than %d characters.", maxVariableName)
	}

	if c.scopeDepth == -1 {
		vm := c.parser.vm
		symbol, line := vm.defineModuleVariable(c.parser.module, name, NullValue)
		switch symbol {
		case -1:
			c.errorAt(tok, "Module variable is already defined.")
		case -2:
			c.errorAt(tok, "Too many module variables defined.")
		case -3:
			c.errorAt(tok,
				"Variable '%s' referenced before this definition (first use at line %d).",
				name, line)
		}
		return symbol
	}

	// Locals shadow outer scopes but not their own.
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAt(tok, "Variable is already declared in this scope.")
			return i
		}
	}

	if len(c.locals) == maxLocals {
		c.errorAt(tok, "Cannot declare more than %d variables in one scope.", maxLocals)
		return -1
	}
	return c.addLocal(name)
}

func (c *compiler) declareNamedVariable() int {
	c.consume(TokenName, "Expect variable name.")
	return c.declareVariable(c.parser.previous)
}

// defineVariable stores the value on top of the stack into the variable.
// Locals simply live in their slot; module variables are stored and the
// temporary popped.
func (c *compiler) defineVariable(symbol int) {
	if c.scopeDepth >= 0 {
		return
	}
	c.emitShortArg(OpStoreModuleVar, symbol)
	c.emitOp(OpPop)
}

func (c *compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

func (c *compiler) addUpvalue(isLocal bool, index int) int {
	for i, uv := range c.upvalues {
		if uv.isLocal == isLocal && uv.index == index {
			return i
		}
	}
	if len(c.upvalues) == maxUpvalues {
		c.error("A function may only close over %d variables.", maxUpvalues)
		return -1
	}
	c.upvalues = append(c.upvalues, compilerUpvalue{isLocal: isLocal, index: index})
	c.fn.numUpvalues = len(c.upvalues)
	return len(c.upvalues) - 1
}

// resolveUpvalue walks enclosing functions for a local to close over,
// chaining intermediate upvalues as needed.
func (c *compiler) resolveUpvalue(name string) int {
	if c.parent == nil {
		return -1
	}
	if localIndex := c.parent.resolveLocal(name); localIndex != -1 {
		c.parent.locals[localIndex].isUpvalue = true
		return c.addUpvalue(true, localIndex)
	}
	if upvalueIndex := c.parent.resolveUpvalue(name); upvalueIndex != -1 {
		return c.addUpvalue(false, upvalueIndex)
	}
	return -1
}

func (c *compiler) resolveNonmodule(name string) (variable, bool) {
	if index := c.resolveLocal(name); index != -1 {
		return variable{index: index, scope: scopeLocal}, true
	}
	if index := c.resolveUpvalue(name); index != -1 {
		return variable{index: index, scope: scopeUpvalue}, true
	}
	return variable{}, false
}

func (c *compiler) loadLocal(slot int) {
	if slot <= 8 {
		c.emitOp(Opcode(int(OpLoadLocal0) + slot))
		return
	}
	c.emitByteArg(OpLoadLocal, slot)
}

func (c *compiler) loadVariable(v variable) {
	switch v.scope {
	case scopeLocal:
		c.loadLocal(v.index)
	case scopeUpvalue:
		c.emitByteArg(OpLoadUpvalue, v.index)
	case scopeModule:
		c.emitShortArg(OpLoadModuleVar, v.index)
	}
}

func (c *compiler) loadThis() {
	v, ok := c.resolveNonmodule("this")
	if !ok {
		c.error("Cannot use 'this' outside of a method.")
		return
	}
	c.loadVariable(v)
}

// loadCoreVariable loads one of the core module names. Every module gets
// the core names copied in when it is created, so the lookup is local.
func (c *compiler) loadCoreVariable(name string) {
	symbol := c.parser.module.variableNames.Find(name)
	c.emitShortArg(OpLoadModuleVar, symbol)
}

// ---------------------------------------------------------------------------
// Module variables (shared with the runtime)
// ---------------------------------------------------------------------------

// defineModuleVariable sets a module-level variable, resolving an earlier
// implicit declaration. Returns the symbol, or -1 if already explicitly
// defined, -2 on overflow, -3 when a local-looking name was used before
// this definition (the second result then holds the first-use line).
func (vm *VM) defineModuleVariable(module *ObjModule, name string, value Value) (int, int) {
	if module.variableNames.Count() == maxModuleVars {
		return -2, 0
	}

	symbol := module.variableNames.Find(name)
	switch {
	case symbol == -1:
		symbol = module.variableNames.Add(name)
		vm.reallocate(0, sizeValue)
		module.variables = append(module.variables, value)
	case module.variables[symbol].IsNum():
		// Implicitly declared earlier; this is the real definition.
		line := int(module.variables[symbol].Num())
		module.variables[symbol] = value
		if isLocalName(name) {
			return -3, line
		}
	default:
		return -1, 0
	}
	return symbol, 0
}

// declareModuleVariable adds an implicit forward declaration whose value
// records the line of first use.
func (vm *VM) declareModuleVariable(module *ObjModule, name string, line int) int {
	if module.variableNames.Count() == maxModuleVars {
		return -2
	}
	symbol := module.variableNames.Add(name)
	vm.reallocate(0, sizeValue)
	module.variables = append(module.variables, NumValue(float64(line)))
	return symbol
}

func isLocalName(name string) bool {
	return len(name) > 0 && name[0] >= 'a' && name[0] <= 'z'
}

// ---------------------------------------------------------------------------
// Grammar rules
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone precedence = iota
	precLowest
	precAssignment  // =
	precConditional // ?:
	precLogicalOr   // ||
	precLogicalAnd  // &&
	precEquality    // == !=
	precIs          // is
	precComparison  // < > <= >=
	precBitwiseOr   // |
	precBitwiseXor  // ^
	precBitwiseAnd  // &
	precBitwiseShift
	precRange  // .. ...
	precTerm   // + -
	precFactor // * / %
	precUnary  // - ! ~
	precCall   // . () []
	precPrimary
)

type grammarFn func(c *compiler, canAssign bool)
type signatureFn func(c *compiler, sig *Signature)

type grammarRule struct {
	prefix     grammarFn
	infix      grammarFn
	method     signatureFn
	precedence precedence
	name       string
}

var rules map[TokenType]grammarRule

func infixOperator(prec precedence, name string) grammarRule {
	return grammarRule{infix: infixOp, method: infixSignature, precedence: prec, name: name}
}

func prefixOperator(name string) grammarRule {
	return grammarRule{prefix: unaryOp, method: unarySignature, name: name}
}

// The rule table is filled in an init function because the grammar is
// mutually recursive with the functions it references.
func init() {
	rules = map[TokenType]grammarRule{
		TokenLeftParen:    {prefix: grouping},
		TokenLeftBracket:  {prefix: listLiteral, infix: subscript, method: subscriptSignature, precedence: precCall},
		TokenLeftBrace:    {prefix: mapLiteral},
		TokenMinus:        {prefix: unaryOp, infix: infixOp, method: mixedSignature, precedence: precTerm, name: "-"},
		TokenPlus:         infixOperator(precTerm, "+"),
		TokenStar:         infixOperator(precFactor, "*"),
		TokenSlash:        infixOperator(precFactor, "/"),
		TokenPercent:      infixOperator(precFactor, "%"),
		TokenTilde:        prefixOperator("~"),
		TokenBang:         prefixOperator("!"),
		TokenPipe:         infixOperator(precBitwiseOr, "|"),
		TokenAmp:          infixOperator(precBitwiseAnd, "&"),
		TokenCaret:        infixOperator(precBitwiseXor, "^"),
		TokenLtLt:         infixOperator(precBitwiseShift, "<<"),
		TokenGtGt:         infixOperator(precBitwiseShift, ">>"),
		TokenDotDot:       infixOperator(precRange, ".."),
		TokenDotDotDot:    infixOperator(precRange, "..."),
		TokenLt:           infixOperator(precComparison, "<"),
		TokenGt:           infixOperator(precComparison, ">"),
		TokenLtEq:         infixOperator(precComparison, "<="),
		TokenGtEq:         infixOperator(precComparison, ">="),
		TokenEqEq:         infixOperator(precEquality, "=="),
		TokenBangEq:       infixOperator(precEquality, "!="),
		TokenIs:           infixOperator(precIs, "is"),
		TokenPipePipe:     {infix: orOp, precedence: precLogicalOr},
		TokenAmpAmp:       {infix: andOp, precedence: precLogicalAnd},
		TokenQuestion:     {infix: conditional, precedence: precAssignment},
		TokenDot:          {infix: call, precedence: precCall},
		TokenFalse:        {prefix: boolLiteral},
		TokenTrue:         {prefix: boolLiteral},
		TokenNull:         {prefix: nullLiteral},
		TokenNumber:       {prefix: literal},
		TokenString:       {prefix: literal},
		TokenDollarString: {prefix: dollarString},
		TokenInterpolation: {prefix: stringInterpolation},
		TokenName:         {prefix: name, method: namedSignature},
		TokenField:        {prefix: field},
		TokenStaticField:  {prefix: staticField},
		TokenThis:         {prefix: this_},
		TokenSuper:        {prefix: super_},
		TokenConstruct:    {method: constructorSignature},
	}
}

func getRule(t TokenType) grammarRule { return rules[t] }

// ---------------------------------------------------------------------------
// Expression parsing
// ---------------------------------------------------------------------------

func (c *compiler) parsePrecedence(prec precedence) {
	c.parser.nextToken()
	rule := getRule(c.parser.previous.Type)
	if rule.prefix == nil {
		c.error("Expected expression.")
		return
	}

	// Assignment is handled by the variable-ish prefix rules themselves,
	// but only when the surrounding precedence allows an infix "=".
	canAssign := prec <= precConditional
	rule.prefix(c, canAssign)

	c.allowLineBeforeDot()
	for prec <= getRule(c.peek()).precedence {
		c.parser.nextToken()
		infix := getRule(c.parser.previous.Type).infix
		infix(c, canAssign)
		c.allowLineBeforeDot()
	}
}

func (c *compiler) expression() {
	c.parsePrecedence(precLowest)
}

// ---------------------------------------------------------------------------
// Method calls
// ---------------------------------------------------------------------------

func (c *compiler) signatureSymbol(sig Signature) int {
	return c.parser.vm.methodNames.Ensure(sig.String())
}

// callMethod emits a call to a known method on whatever is on the stack.
func (c *compiler) callMethod(numArgs int, name string) {
	symbol := c.parser.vm.methodNames.Ensure(name)
	c.emitShortArg(Opcode(int(OpCall0)+numArgs), symbol)
}

// callSignature emits a call or super-call instruction for a signature.
func (c *compiler) callSignature(instruction Opcode, sig Signature) {
	symbol := c.signatureSymbol(sig)
	c.emitShortArg(Opcode(int(instruction)+sig.Arity), symbol)
	if instruction == OpSuper0 {
		// The superclass is not known until the method is bound to its
		// class; reserve a constant slot for it.
		c.emitShort(c.addConstant(NullValue))
	}
}

func (c *compiler) finishArgumentList(sig *Signature) {
	for {
		c.ignoreNewlines()
		sig.Arity++
		if sig.Arity > maxParameters {
			c.error("Methods cannot have more than %d parameters.", maxParameters)
		}
		c.expression()
		if !c.match(TokenComma) {
			break
		}
	}
	c.ignoreNewlines()
}

func (c *compiler) finishParameterList(sig *Signature) {
	for {
		c.ignoreNewlines()
		sig.Arity++
		if sig.Arity > maxParameters {
			c.error("Methods cannot have more than %d parameters.", maxParameters)
		}
		c.declareNamedVariable()
		if !c.match(TokenComma) {
			break
		}
	}
}

// methodCall compiles an argument list and optional block argument, then
// emits the call.
func (c *compiler) methodCall(instruction Opcode, sig Signature) {
	called := Signature{Name: sig.Name, Kind: SigGetter}

	if c.match(TokenLeftParen) {
		called.Kind = SigMethod
		c.ignoreNewlines()
		if c.peek() != TokenRightParen {
			c.finishArgumentList(&called)
		}
		c.consume(TokenRightParen, "Expect ')' after arguments.")
	}

	// A trailing block becomes an extra function argument.
	if c.match(TokenLeftBrace) {
		called.Kind = SigMethod
		called.Arity++

		fnCompiler := newCompiler(c.parser, c, false)
		fnSig := Signature{Kind: SigMethod}
		if c.match(TokenPipe) {
			fnCompiler.finishParameterList(&fnSig)
			c.consume(TokenPipe, "Expect '|' after function parameters.")
		}
		fnCompiler.fn.arity = fnSig.Arity
		fnCompiler.finishBody()
		fnCompiler.endCompiler(fmt.Sprintf("%s block argument", sig.Name))
	}

	if sig.Kind == SigInitializer {
		if called.Kind != SigMethod {
			c.error("A superclass constructor must have an argument list.")
		}
		called.Kind = SigInitializer
	}

	c.callSignature(instruction, called)
}

// namedCall compiles a method call after its name token was consumed.
func (c *compiler) namedCall(canAssign bool, instruction Opcode) {
	sig := c.signatureFromToken(SigGetter)

	if canAssign && c.match(TokenEq) {
		c.ignoreNewlines()
		sig.Kind = SigSetter
		sig.Arity = 1
		c.expression()
		c.callSignature(instruction, sig)
		return
	}
	c.methodCall(instruction, sig)
}

func (c *compiler) signatureFromToken(kind SignatureKind) Signature {
	name := c.parser.previous.Content
	if len(name) > maxMethodName {
		c.error("Method names cannot be longer than %d characters.", maxMethodName)
		name = name[:maxMethodName]
	}
	return Signature{Name: name, Kind: kind}
}

// ---------------------------------------------------------------------------
// Prefix and infix rules
// ---------------------------------------------------------------------------

func grouping(c *compiler, canAssign bool) {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

func listLiteral(c *compiler, canAssign bool) {
	c.loadCoreVariable("List")
	c.callMethod(0, "new()")

	for {
		c.ignoreNewlines()
		if c.peek() == TokenRightBracket {
			break
		}
		c.expression()
		c.callMethod(1, "addCore_(_)")
		if !c.match(TokenComma) {
			break
		}
	}
	c.ignoreNewlines()
	c.consume(TokenRightBracket, "Expect ']' after list elements.")
}

func mapLiteral(c *compiler, canAssign bool) {
	c.loadCoreVariable("Map")
	c.callMethod(0, "new()")

	for {
		c.ignoreNewlines()
		if c.peek() == TokenRightBrace {
			break
		}
		c.parsePrecedence(precUnary)
		c.consume(TokenColon, "Expect ':' after map key.")
		c.ignoreNewlines()
		c.expression()
		c.callMethod(2, "addCore_(_,_)")
		if !c.match(TokenComma) {
			break
		}
	}
	c.ignoreNewlines()
	c.consume(TokenRightBrace, "Expect '}' after map entries.")
}

func unaryOp(c *compiler, canAssign bool) {
	name := getRule(c.parser.previous.Type).name
	c.ignoreNewlines()
	c.parsePrecedence(precUnary + 1)
	c.callMethod(0, name)
}

func infixOp(c *compiler, canAssign bool) {
	rule := getRule(c.parser.previous.Type)
	c.ignoreNewlines()
	c.parsePrecedence(rule.precedence + 1)
	c.callSignature(OpCall0, Signature{Name: rule.name, Kind: SigMethod, Arity: 1})
}

func andOp(c *compiler, canAssign bool) {
	c.ignoreNewlines()
	jump := c.emitJump(OpAnd)
	c.parsePrecedence(precLogicalAnd)
	c.patchJump(jump)
}

func orOp(c *compiler, canAssign bool) {
	c.ignoreNewlines()
	jump := c.emitJump(OpOr)
	c.parsePrecedence(precLogicalOr)
	c.patchJump(jump)
}

func conditional(c *compiler, canAssign bool) {
	c.ignoreNewlines()
	ifJump := c.emitJump(OpJumpIf)

	c.parsePrecedence(precConditional)
	c.consume(TokenColon, "Expect ':' after then branch of conditional operator.")
	c.ignoreNewlines()

	elseJump := c.emitJump(OpJump)
	c.patchJump(ifJump)
	c.parsePrecedence(precAssignment)
	c.patchJump(elseJump)
}

func boolLiteral(c *compiler, canAssign bool) {
	if c.parser.previous.Type == TokenTrue {
		c.emitOp(OpTrue)
	} else {
		c.emitOp(OpFalse)
	}
}

func nullLiteral(c *compiler, canAssign bool) {
	c.emitOp(OpNull)
}

func literal(c *compiler, canAssign bool) {
	tok := c.parser.previous
	if tok.Type == TokenNumber {
		c.emitConstant(NumValue(tok.Num))
		return
	}
	c.emitConstant(c.stringConstant(tok.Str))
}

// dollarString compiles $"..." to the string's host hook getter.
func dollarString(c *compiler, canAssign bool) {
	c.emitConstant(c.stringConstant(c.parser.previous.Str))
	c.callMethod(0, "$")
}

// stringInterpolation lowers "a %(b) c" into a list of pieces joined at
// runtime.
func stringInterpolation(c *compiler, canAssign bool) {
	c.loadCoreVariable("List")
	c.callMethod(0, "new()")

	for {
		literal(c, false)
		c.callMethod(1, "addCore_(_)")

		c.ignoreNewlines()
		c.expression()
		c.callMethod(1, "addCore_(_)")
		c.ignoreNewlines()

		if !c.match(TokenInterpolation) {
			break
		}
	}

	c.consume(TokenString, "Expect end of string interpolation.")
	literal(c, false)
	c.callMethod(1, "addCore_(_)")
	c.callMethod(0, "join()")
}

func subscript(c *compiler, canAssign bool) {
	sig := Signature{Kind: SigSubscript}
	c.finishArgumentList(&sig)
	c.consume(TokenRightBracket, "Expect ']' after arguments.")
	c.allowLineBeforeDot()

	if canAssign && c.match(TokenEq) {
		sig.Kind = SigSubscriptSetter
		sig.Arity++
		c.expression()
	}
	c.callSignature(OpCall0, sig)
}

func call(c *compiler, canAssign bool) {
	c.ignoreNewlines()
	c.consume(TokenName, "Expect method name after '.'.")
	c.namedCall(canAssign, OpCall0)
}

// bareName compiles a load of or assignment to a resolved variable.
func (c *compiler) bareName(canAssign bool, v variable) {
	if canAssign && c.match(TokenEq) {
		c.expression()
		switch v.scope {
		case scopeLocal:
			c.emitByteArg(OpStoreLocal, v.index)
		case scopeUpvalue:
			c.emitByteArg(OpStoreUpvalue, v.index)
		case scopeModule:
			c.emitShortArg(OpStoreModuleVar, v.index)
		}
		return
	}
	c.loadVariable(v)
	c.allowLineBeforeDot()
}

func name(c *compiler, canAssign bool) {
	tok := c.parser.previous
	if v, ok := c.resolveNonmodule(tok.Content); ok {
		c.bareName(canAssign, v)
		return
	}

	// Inside a method, a lowercase bare name is a call on this.
	if isLocalName(tok.Content) && c.getEnclosingClass() != nil {
		c.loadThis()
		c.namedCall(canAssign, OpCall0)
		return
	}

	v := variable{scope: scopeModule, index: c.parser.module.variableNames.Find(tok.Content)}
	if v.index == -1 {
		if isLocalName(tok.Content) {
			c.errorAt(tok, "Undefined variable.")
			return
		}
		// A capitalized name may be defined later in the module; declare
		// it implicitly and verify at the end of compilation.
		v.index = c.parser.vm.declareModuleVariable(c.parser.module, tok.Content, tok.Line)
		if v.index == -2 {
			c.errorAt(tok, "Too many module variables defined.")
		}
	}
	c.bareName(canAssign, v)
}

func field(c *compiler, canAssign bool) {
	tok := c.parser.previous
	enclosing := c.getEnclosingClass()

	fieldIndex := maxFields
	switch {
	case enclosing == nil:
		c.error("Cannot reference a field outside of a class definition.")
	case enclosing.isForeign:
		c.error("Cannot define fields in a foreign class.")
	case enclosing.inStatic:
		c.error("Cannot use an instance field in a static method.")
	default:
		fieldIndex = enclosing.fields.Ensure(tok.Content)
		if fieldIndex >= maxFields {
			c.error("A class can only have %d fields.", maxFields)
		}
	}

	isLoad := true
	if canAssign && c.match(TokenEq) {
		c.expression()
		isLoad = false
	}

	// Inside the class's own methods the receiver is slot zero and the
	// shorter opcodes apply.
	if c.parent != nil && c.parent.enclosingClass == enclosing {
		if isLoad {
			c.emitByteArg(OpLoadFieldThis, fieldIndex)
		} else {
			c.emitByteArg(OpStoreFieldThis, fieldIndex)
		}
	} else {
		c.loadThis()
		if isLoad {
			c.emitByteArg(OpLoadField, fieldIndex)
		} else {
			c.emitByteArg(OpStoreField, fieldIndex)
		}
	}
	c.allowLineBeforeDot()
}

func staticField(c *compiler, canAssign bool) {
	classCompiler := c.getEnclosingClassCompiler()
	if classCompiler == nil {
		c.error("Cannot use a static field outside of a class definition.")
		return
	}

	tok := c.parser.previous
	// First use in this class creates the variable in the class
	// definition's scope, initialized to null when the body runs.
	if classCompiler.resolveLocal(tok.Content) == -1 {
		symbol := classCompiler.declareVariable(tok)
		classCompiler.emitOp(OpNull)
		classCompiler.defineVariable(symbol)
	}

	v, _ := c.resolveNonmodule(tok.Content)
	c.bareName(canAssign, v)
}

func this_(c *compiler, canAssign bool) {
	if c.getEnclosingClass() == nil {
		c.error("Cannot use 'this' outside of a method.")
		return
	}
	c.loadThis()
}

func super_(c *compiler, canAssign bool) {
	enclosing := c.getEnclosingClass()
	if enclosing == nil {
		c.error("Cannot use 'super' outside of a method.")
	}

	c.loadThis()

	if c.match(TokenDot) {
		c.consume(TokenName, "Expect method name after 'super.'.")
		c.namedCall(canAssign, OpSuper0)
		return
	}

	// Bare "super" calls the superclass version of the enclosing method.
	if enclosing != nil && enclosing.signature != nil {
		c.methodCall(OpSuper0, *enclosing.signature)
	} else {
		c.error("Cannot use 'super' outside of a method.")
	}
}

func (c *compiler) getEnclosingClassCompiler() *compiler {
	for cc := c; cc != nil; cc = cc.parent {
		if cc.enclosingClass != nil {
			return cc
		}
	}
	return nil
}

func (c *compiler) getEnclosingClass() *classInfo {
	if cc := c.getEnclosingClassCompiler(); cc != nil {
		return cc.enclosingClass
	}
	return nil
}

// ---------------------------------------------------------------------------
// Signature rules
// ---------------------------------------------------------------------------

func unarySignature(c *compiler, sig *Signature) {
	sig.Kind = SigGetter
}

func infixSignature(c *compiler, sig *Signature) {
	sig.Kind = SigMethod
	sig.Arity = 1
	c.consume(TokenLeftParen, "Expect '(' after operator name.")
	c.declareNamedVariable()
	c.consume(TokenRightParen, "Expect ')' after parameter name.")
}

func mixedSignature(c *compiler, sig *Signature) {
	sig.Kind = SigGetter
	if c.match(TokenLeftParen) {
		sig.Kind = SigMethod
		sig.Arity = 1
		c.declareNamedVariable()
		c.consume(TokenRightParen, "Expect ')' after parameter name.")
	}
}

func subscriptSignature(c *compiler, sig *Signature) {
	sig.Kind = SigSubscript
	sig.Name = ""
	c.finishParameterList(sig)
	c.consume(TokenRightBracket, "Expect ']' after parameters.")
	maybeSetter(c, sig)
}

// maybeSetter extends a signature with "=(value)" when present. Returns
// true when the setter form was parsed.
func maybeSetter(c *compiler, sig *Signature) bool {
	if !c.match(TokenEq) {
		return false
	}
	if sig.Kind == SigSubscript {
		sig.Kind = SigSubscriptSetter
	} else {
		sig.Kind = SigSetter
	}
	c.consume(TokenLeftParen, "Expect '(' after '='.")
	c.declareNamedVariable()
	c.consume(TokenRightParen, "Expect ')' after parameter name.")
	sig.Arity++
	return true
}

func namedSignature(c *compiler, sig *Signature) {
	sig.Kind = SigGetter
	if maybeSetter(c, sig) {
		return
	}
	if c.match(TokenLeftParen) {
		sig.Kind = SigMethod
		if c.match(TokenRightParen) {
			return
		}
		c.finishParameterList(sig)
		c.consume(TokenRightParen, "Expect ')' after parameters.")
	}
}

func constructorSignature(c *compiler, sig *Signature) {
	c.consume(TokenName, "Expect constructor name after 'construct'.")
	*sig = c.signatureFromToken(SigInitializer)

	if c.match(TokenEq) {
		c.error("A constructor cannot be a setter.")
	}
	if !c.match(TokenLeftParen) {
		c.error("A constructor cannot be a getter.")
		return
	}
	if c.match(TokenRightParen) {
		return
	}
	c.finishParameterList(sig)
	c.consume(TokenRightParen, "Expect ')' after parameters.")
}

// ---------------------------------------------------------------------------
// Blocks and function bodies
// ---------------------------------------------------------------------------

// finishBlock compiles the inside of a "{...}" and reports whether it was
// a single-expression body that left a value on the stack.
func (c *compiler) finishBlock() bool {
	if c.match(TokenRightBrace) {
		return false
	}

	// A block with no newline after "{" is a single expression body.
	if !c.matchLine() {
		c.expression()
		c.consume(TokenRightBrace, "Expect '}' at end of block.")
		return true
	}

	if c.match(TokenRightBrace) {
		return false
	}

	for c.peek() != TokenRightBrace && c.peek() != TokenEOF {
		c.definition()
		c.consumeLine("Expect newline after statement.")
	}
	c.consume(TokenRightBrace, "Expect '}' at end of block.")
	return false
}

// finishBody compiles a method or function body along with its implicit
// return.
func (c *compiler) finishBody() {
	isExpressionBody := c.finishBlock()

	if c.isInitializer {
		// A constructor returns "this", not the body's result.
		if isExpressionBody {
			c.emitOp(OpPop)
		}
		c.emitOp(Opcode(OpLoadLocal0))
	} else if !isExpressionBody {
		c.emitOp(OpNull)
	}
	c.emitOp(OpReturn)
}

// endCompiler finishes the function and, for nested functions, emits the
// closure wrapper into the parent.
func (c *compiler) endCompiler(debugName string) *ObjFn {
	vm := c.parser.vm

	if c.parser.hasError {
		vm.compiler = c.parent
		return nil
	}

	// Bytecode can hold early returns, so a trailing marker tells
	// consumers where it really ends.
	c.emitOp(OpEnd)
	c.fn.debug.name = debugName

	// Account the finished code and constant pool.
	vm.reallocate(0, len(c.fn.code)+len(c.fn.constants)*sizeValue+len(c.fn.debug.sourceLines)*8)

	if c.parent != nil {
		constant := c.parent.addConstant(ObjValue(&c.fn.Obj))
		c.parent.emitShortArg(OpClosure, constant)
		for _, uv := range c.upvalues {
			isLocal := byte(0)
			if uv.isLocal {
				isLocal = 1
			}
			c.parent.emitByte(isLocal)
			c.parent.emitByte(byte(uv.index))
		}
	}

	vm.compiler = c.parent
	return c.fn
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *compiler) startLoop(loop *loopInfo) {
	loop.enclosing = c.loop
	loop.start = len(c.fn.code) - 1
	loop.scopeDepth = c.scopeDepth
	c.loop = loop
}

func (c *compiler) testExitLoop() {
	c.loop.exitJump = c.emitJump(OpJumpIf)
}

func (c *compiler) loopBody() {
	c.loop.body = len(c.fn.code)
	c.statement()
}

func (c *compiler) endLoop() {
	c.emitLoop()
	c.patchJump(c.loop.exitJump)

	// Break statements left jumps encoded as OpEnd placeholders; patch
	// them to land here.
	i := c.loop.body
	for i < len(c.fn.code) {
		if Opcode(c.fn.code[i]) == OpEnd {
			c.fn.code[i] = byte(OpJump)
			c.patchJump(i + 1)
			i += 3
			continue
		}
		i += 1 + instructionArgBytes(c.fn, i)
	}

	c.loop = c.loop.enclosing
}

// instructionArgBytes returns the operand byte count of the instruction
// at offset i, including a closure's trailing upvalue pairs.
func instructionArgBytes(fn *ObjFn, i int) int {
	op := Opcode(fn.code[i])
	if op == OpClosure {
		constant := readShort(fn.code, i+1)
		inner := fn.constants[constant].asFn()
		return 2 + inner.numUpvalues*2
	}
	return op.Info().OperandBytes
}

func (c *compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	c.ignoreNewlines()
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after if condition.")

	ifJump := c.emitJump(OpJumpIf)
	c.statement()

	if c.match(TokenElse) {
		elseJump := c.emitJump(OpJump)
		c.patchJump(ifJump)
		c.statement()
		c.patchJump(elseJump)
	} else {
		c.patchJump(ifJump)
	}
}

func (c *compiler) whileStatement() {
	var loop loopInfo
	c.startLoop(&loop)

	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	c.ignoreNewlines()
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after while condition.")

	c.testExitLoop()
	c.loopBody()
	c.endLoop()
}

// forStatement desugars "for (i in seq) body" onto the iterator protocol
// using two hidden locals for the sequence and iterator.
func (c *compiler) forStatement() {
	c.pushScope()

	c.consume(TokenLeftParen, "Expect '(' after 'for'.")
	c.consume(TokenName, "Expect for loop variable name.")
	nameToken := c.parser.previous

	c.consume(TokenIn, "Expect 'in' after loop variable.")
	c.ignoreNewlines()

	c.expression()
	if len(c.locals)+2 > maxLocals {
		c.error("Cannot declare more than %d variables in one scope.", maxLocals)
	}
	seqSlot := c.addLocal("seq ")

	c.emitOp(OpNull)
	iterSlot := c.addLocal("iter ")

	c.consume(TokenRightParen, "Expect ')' after loop expression.")

	var loop loopInfo
	c.startLoop(&loop)

	// iter = seq.iterate(iter); exit when it reports done.
	c.loadLocal(seqSlot)
	c.loadLocal(iterSlot)
	c.callMethod(1, "iterate(_)")
	c.emitByteArg(OpStoreLocal, iterSlot)
	c.testExitLoop()

	// value = seq.iteratorValue(iter)
	c.loadLocal(seqSlot)
	c.loadLocal(iterSlot)
	c.callMethod(1, "iteratorValue(_)")

	c.pushScope()
	c.declareVariable(nameToken)
	c.loopBody()
	c.popScope()

	c.endLoop()
	c.popScope()
}

func (c *compiler) breakStatement() {
	if c.loop == nil {
		c.error("Cannot use 'break' outside of a loop.")
		return
	}
	c.discardLocals(c.loop.scopeDepth + 1)
	// Emitted as OpEnd so endLoop can find and patch it into a jump.
	c.emitJump(OpEnd)
}

func (c *compiler) continueStatement() {
	if c.loop == nil {
		c.error("Cannot use 'continue' outside of a loop.")
		return
	}
	c.discardLocals(c.loop.scopeDepth + 1)
	c.emitLoop()
}

func (c *compiler) returnStatement() {
	if c.peek() == TokenLine || c.peek() == TokenSemicolon {
		if c.isInitializer {
			c.emitOp(Opcode(OpLoadLocal0))
		} else {
			c.emitOp(OpNull)
		}
	} else {
		if c.isInitializer {
			c.error("A constructor cannot return a value.")
		}
		c.expression()
	}
	c.emitOp(OpReturn)
}

func (c *compiler) statement() {
	switch {
	case c.match(TokenBreak):
		c.breakStatement()
	case c.match(TokenContinue):
		c.continueStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenLeftBrace):
		c.pushScope()
		if c.finishBlock() {
			c.emitOp(OpPop)
		}
		c.popScope()
	default:
		c.expression()
		c.emitOp(OpPop)
	}
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// attributeDefinition parses one "#..." group onto the pending set.
func (c *compiler) attributeDefinition() {
	runtimeAccess := c.match(TokenBang)

	c.consume(TokenName, "Expect an attribute name after '#'.")
	nameTok := c.parser.previous

	if c.pendingAttributes == nil {
		c.pendingAttributes = make(attributeSet)
	}

	switch {
	case c.match(TokenEq):
		value := c.attributeValue()
		if runtimeAccess {
			c.pendingAttributes.add("", nameTok.Content, value)
			c.hasRuntimeAttrs = true
		}
	case c.match(TokenLeftParen):
		c.ignoreNewlines()
		if c.match(TokenRightParen) {
			c.error("Expected attributes in group, group cannot be empty.")
			break
		}
		for {
			c.consume(TokenName, "Expect name for attribute key.")
			key := c.parser.previous.Content
			value := attrValue{kind: attrNull}
			if c.match(TokenEq) {
				value = c.attributeValue()
			}
			if runtimeAccess {
				c.pendingAttributes.add(nameTok.Content, key, value)
				c.hasRuntimeAttrs = true
			}
			c.ignoreNewlines()
			if !c.match(TokenComma) {
				break
			}
			c.ignoreNewlines()
		}
		c.ignoreNewlines()
		c.consume(TokenRightParen, "Expected ')' after grouped attributes.")
	default:
		if runtimeAccess {
			c.pendingAttributes.add("", nameTok.Content, attrValue{kind: attrNull})
			c.hasRuntimeAttrs = true
		}
	}

	c.consumeLine("Expect newline after attribute.")
}

func (c *compiler) attributeValue() attrValue {
	switch {
	case c.match(TokenFalse):
		return attrValue{kind: attrBool, b: false}
	case c.match(TokenTrue):
		return attrValue{kind: attrBool, b: true}
	case c.match(TokenNull):
		return attrValue{kind: attrNull}
	case c.match(TokenNumber):
		return attrValue{kind: attrNum, num: c.parser.previous.Num}
	case c.match(TokenString):
		return attrValue{kind: attrString, str: c.parser.previous.Str}
	case c.match(TokenName):
		return attrValue{kind: attrString, str: c.parser.previous.Content}
	}
	c.errorAtCurrent("Expect an attribute value.")
	c.parser.nextToken()
	return attrValue{kind: attrNull}
}

// takePendingAttributes moves the attributes accumulated since the last
// definition to the caller.
func (c *compiler) takePendingAttributes() attributeSet {
	attrs := c.pendingAttributes
	c.pendingAttributes = nil
	c.hasRuntimeAttrs = false
	return attrs
}

func (c *compiler) emitAttrValue(v attrValue) {
	switch v.kind {
	case attrNull:
		c.emitOp(OpNull)
	case attrBool:
		if v.b {
			c.emitOp(OpTrue)
		} else {
			c.emitOp(OpFalse)
		}
	case attrNum:
		c.emitConstant(NumValue(v.num))
	case attrString:
		c.emitConstant(c.stringConstant(v.str))
	}
}

// emitAttributeSet emits code that builds the nested runtime map for one
// attribute set: group -> key -> list of values.
func (c *compiler) emitAttributeSet(attrs attributeSet) {
	c.loadCoreVariable("Map")
	c.callMethod(0, "new()")

	for group, keys := range attrs {
		if group == "" {
			c.emitOp(OpNull)
		} else {
			c.emitConstant(c.stringConstant(group))
		}

		c.loadCoreVariable("Map")
		c.callMethod(0, "new()")
		for key, values := range keys {
			c.emitConstant(c.stringConstant(key))
			c.loadCoreVariable("List")
			c.callMethod(0, "new()")
			for _, v := range values {
				c.emitAttrValue(v)
				c.callMethod(1, "addCore_(_)")
			}
			c.callMethod(2, "addCore_(_,_)")
		}
		c.callMethod(2, "addCore_(_,_)")
	}
}

// emitClassAttributes emits the combined attributes value consumed by
// OpEndClass: {"self": classAttrs, "methods": {signature: methodAttrs}}.
func (c *compiler) emitClassAttributes(info *classInfo) {
	c.loadCoreVariable("Map")
	c.callMethod(0, "new()")

	if len(info.classAttributes) > 0 {
		c.emitConstant(c.stringConstant("self"))
		c.emitAttributeSet(info.classAttributes)
		c.callMethod(2, "addCore_(_,_)")
	}
	if len(info.methodAttributes) > 0 {
		c.emitConstant(c.stringConstant("methods"))
		c.loadCoreVariable("Map")
		c.callMethod(0, "new()")
		for sig, attrs := range info.methodAttributes {
			c.emitConstant(c.stringConstant(sig))
			c.emitAttributeSet(attrs)
			c.callMethod(2, "addCore_(_,_)")
		}
		c.callMethod(2, "addCore_(_,_)")
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// declareMethod interns and duplicate-checks a method signature.
func (c *compiler) declareMethod(info *classInfo, sig Signature, isStatic bool) int {
	symbol := c.signatureSymbol(sig)
	if info.hasMethod(symbol, isStatic) {
		prefix := ""
		if isStatic {
			prefix = "static "
		}
		c.error("Class %s already defines a %smethod '%s'.", info.name, prefix, sig.String())
	}
	if isStatic {
		info.staticMethods = append(info.staticMethods, symbol)
	} else {
		info.methods = append(info.methods, symbol)
	}
	return symbol
}

func (c *compiler) defineMethod(classVariable variable, isStatic bool, methodSymbol int) {
	c.loadVariable(classVariable)
	instruction := OpMethodInstance
	if isStatic {
		instruction = OpMethodStatic
	}
	c.emitShortArg(instruction, methodSymbol)
}

// createConstructor compiles the static method that allocates an instance
// and chains to the initializer body.
func (c *compiler) createConstructor(sig Signature, initializerSymbol int, isForeign bool) {
	methodCompiler := newCompiler(c.parser, c, true)

	if isForeign {
		methodCompiler.emitOp(OpForeignConstruct)
	} else {
		methodCompiler.emitOp(OpConstruct)
	}
	methodCompiler.emitShortArg(Opcode(int(OpCall0)+sig.Arity), initializerSymbol)
	methodCompiler.emitOp(OpReturn)

	methodCompiler.endCompiler("new")
}

// method compiles one method in a class body. Returns false when the
// closing brace was reached instead.
func (c *compiler) method(info *classInfo, classVariable variable) bool {
	for c.match(TokenHash) {
		c.attributeDefinition()
	}
	if c.peek() == TokenRightBrace {
		if c.pendingAttributes != nil {
			c.error("Attributes must come before a method or class.")
			c.takePendingAttributes()
		}
		return false
	}

	isForeign := c.match(TokenForeign)
	isStatic := c.match(TokenStatic)
	info.inStatic = isStatic

	signatureRule := getRule(c.peek()).method
	c.parser.nextToken()
	if signatureRule == nil {
		c.error("Expect method definition.")
		return false
	}

	sig := c.signatureFromToken(SigGetter)
	info.signature = &sig

	methodCompiler := newCompiler(c.parser, c, true)
	signatureRule(methodCompiler, &sig)
	methodCompiler.isInitializer = sig.Kind == SigInitializer

	if isStatic && sig.Kind == SigInitializer {
		c.error("A constructor cannot be static.")
	}

	fullSignature := sig.String()

	if attrs := c.takePendingAttributes(); attrs != nil {
		if info.methodAttributes == nil {
			info.methodAttributes = make(map[string]attributeSet)
		}
		info.methodAttributes[fullSignature] = attrs
	}

	if isForeign {
		// The interpreter binds a foreign method from its signature
		// string when the class definition executes.
		c.emitConstant(c.stringConstant(fullSignature))
		c.parser.vm.compiler = methodCompiler.parent
	} else {
		c.consume(TokenLeftBrace, "Expect '{' to begin method body.")
		methodCompiler.finishBody()
		methodCompiler.endCompiler(fullSignature)
	}

	methodSymbol := c.declareMethod(info, sig, isStatic)
	c.defineMethod(classVariable, isStatic, methodSymbol)

	if sig.Kind == SigInitializer {
		// Also expose the allocating constructor as a static method with
		// the plain call signature.
		callSig := sig
		callSig.Kind = SigMethod
		constructorSymbol := c.signatureSymbol(callSig)
		c.createConstructor(sig, methodSymbol, info.isForeign)
		c.defineMethod(classVariable, true, constructorSymbol)
	}
	return true
}

func (c *compiler) classDefinition(isForeign bool) {
	classAttrs := c.takePendingAttributes()

	classVariable := variable{scope: scopeModule}
	if c.scopeDepth >= 0 {
		classVariable.scope = scopeLocal
	}
	c.consume(TokenName, "Expect class name.")
	nameToken := c.parser.previous
	classVariable.index = c.declareVariable(nameToken)

	c.emitConstant(c.stringConstant(nameToken.Content))

	if c.match(TokenIs) {
		c.parsePrecedence(precCall)
	} else {
		c.loadCoreVariable("Object")
	}

	// The field count is not known until the body has been parsed.
	numFieldsInstruction := -1
	if isForeign {
		c.emitOp(OpForeignClass)
	} else {
		numFieldsInstruction = c.emitByteArg(OpClass, 255)
	}

	c.defineVariable(classVariable.index)

	c.pushScope()

	info := classInfo{
		name:            nameToken.Content,
		isForeign:       isForeign,
		classAttributes: classAttrs,
	}
	c.enclosingClass = &info

	c.ignoreNewlines()
	c.consume(TokenLeftBrace, "Expect '{' after class declaration.")
	c.matchLine()

	for c.peek() != TokenRightBrace && c.peek() != TokenEOF {
		if !c.method(&info, classVariable) {
			break
		}
		if c.peek() == TokenRightBrace {
			break
		}
		c.consumeLine("Expect newline after definition in class.")
	}

	hasAttributes := len(info.classAttributes) > 0 || len(info.methodAttributes) > 0
	if hasAttributes {
		c.loadVariable(classVariable)
		c.emitClassAttributes(&info)
		c.emitOp(OpEndClass)
	}

	if !isForeign {
		c.fn.code[numFieldsInstruction] = byte(info.fields.Count())
	}

	c.enclosingClass = nil
	c.consume(TokenRightBrace, "Expect '}' after class body.")
	c.popScope()
}

// ---------------------------------------------------------------------------
// Imports and definitions
// ---------------------------------------------------------------------------

func (c *compiler) importStatement() {
	c.ignoreNewlines()
	c.consume(TokenString, "Expect a string after 'import'.")
	moduleConstant := c.addConstant(c.stringConstant(c.parser.previous.Str))

	// Load the module; the resulting value is only used when binding
	// imported variables below.
	c.emitShortArg(OpImportModule, moduleConstant)
	c.emitOp(OpPop)

	if !c.match(TokenFor) {
		return
	}

	for {
		c.ignoreNewlines()
		c.consume(TokenName, "Expect variable name.")
		sourceName := c.parser.previous

		// "import "m" for A as B" binds m.A to the local name B.
		slotName := sourceName
		if c.match(TokenAs) {
			c.consume(TokenName, "Expect variable name after 'as'.")
			slotName = c.parser.previous
		}

		slot := c.declareVariable(slotName)
		c.emitShortArg(OpImportVariable, c.addConstant(c.stringConstant(sourceName.Content)))
		c.defineVariable(slot)

		if !c.match(TokenComma) {
			break
		}
	}
}

func (c *compiler) variableDefinition() {
	// The initializer is compiled before the name is declared so the new
	// variable cannot appear in its own initializer.
	c.consume(TokenName, "Expect variable name.")
	nameToken := c.parser.previous

	if c.match(TokenEq) {
		c.ignoreNewlines()
		c.expression()
	} else {
		c.emitOp(OpNull)
	}

	symbol := c.declareVariable(nameToken)
	c.defineVariable(symbol)
}

// definition parses a top-of-statement construct: attribute, class,
// import, variable, or statement.
func (c *compiler) definition() {
	for c.match(TokenHash) {
		c.attributeDefinition()
	}

	switch {
	case c.match(TokenClass):
		c.classDefinition(false)
		return
	case c.match(TokenForeign):
		c.consume(TokenClass, "Expect 'class' after 'foreign'.")
		c.classDefinition(true)
		return
	}

	if c.pendingAttributes != nil {
		c.error("Attributes must come before a class or a method.")
		c.takePendingAttributes()
	}

	switch {
	case c.match(TokenImport):
		c.importStatement()
	case c.match(TokenVar):
		c.variableDefinition()
	default:
		c.statement()
	}
}

// ---------------------------------------------------------------------------
// Compilation entry point
// ---------------------------------------------------------------------------

// compileSource compiles source in the context of a module, returning
// the top-level function or nil on error. In expression mode the source
// must be a single expression whose value the function returns.
func compileSource(vm *VM, module *ObjModule, source string, isExpression, printErrors bool) *ObjFn {
	p := &parser{
		vm:          vm,
		module:      module,
		source:      source,
		lexer:       NewLexer(source),
		printErrors: printErrors,
	}

	// Prime the two-token lookahead.
	p.next = p.lexer.NextToken()
	if p.next.Type == TokenError {
		p.reportError(p.next.Line, p.next.Str)
	}
	p.nextToken()

	numExistingVariables := module.variableNames.Count()

	c := newCompiler(p, nil, false)
	c.ignoreNewlines()

	if isExpression {
		c.expression()
		c.consume(TokenEOF, "Expect end of expression.")
	} else {
		for !c.match(TokenEOF) {
			c.definition()
			if !c.matchLine() {
				c.consume(TokenEOF, "Expect end of file.")
				break
			}
		}
		c.emitOp(OpEndModule)
	}
	c.emitOp(OpReturn)

	// Any module variable still holding its first-use line was never
	// actually defined.
	for i := numExistingVariables; i < module.variableNames.Count(); i++ {
		if module.variables[i].IsNum() {
			c.parser.previous = Token{
				Type:    TokenName,
				Content: module.variableNames.Name(i),
				Line:    int(module.variables[i].Num()),
			}
			c.error("Variable '%s' is used but not defined.", module.variableNames.Name(i))
		}
	}

	return c.endCompiler("(script)")
}
