package vm

import (
	"strings"
	"testing"
)

// testVM creates a VM whose writes and errors are captured for
// assertions.
type testOutput struct {
	out    strings.Builder
	errors []string
}

func testVM(t *testing.T, config Config) (*VM, *testOutput) {
	t.Helper()
	capture := &testOutput{}
	config.WriteFn = func(_ *VM, text string) {
		capture.out.WriteString(text)
	}
	config.ErrorFn = func(_ *VM, kind ErrorKind, module string, line int, message string) {
		capture.errors = append(capture.errors, message)
	}
	return NewVM(config), capture
}

// run interprets source in a throwaway module and returns the captured
// output lines.
func run(t *testing.T, source string) []string {
	t.Helper()
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	if result := vm.Interpret("main", source); result != ResultSuccess {
		t.Fatalf("Interpret: result %d, errors: %v", result, capture.errors)
	}
	text := strings.TrimSuffix(capture.out.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func expectLines(t *testing.T, source string, want ...string) {
	t.Helper()
	got := run(t, source)
	if len(got) != len(want) {
		t.Fatalf("output: got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestArithmetic(t *testing.T) {
	expectLines(t, `
System.print(1 + 2 * 3)
System.print(10 / 4)
System.print(2.5 + 2.5)
System.print(7 % 3)
System.print(-(3))
System.print(2 * 2 + 1)
`,
		"7", "2.5", "5", "1", "-3", "5")
}

func TestNumberFormatting(t *testing.T) {
	expectLines(t, `
System.print(1.0)
System.print(0.1 + 0.2)
System.print(1/0)
System.print(-1/0)
System.print(0/0)
System.print(1e6)
System.print(123456789012345678)
`,
		"1", "0.3", "infinity", "-infinity", "nan", "1000000", "1.2345678901235e+17")
}

func TestNumBitwise(t *testing.T) {
	expectLines(t, `
System.print(6 & 3)
System.print(6 | 3)
System.print(6 ^ 3)
System.print(1 << 4)
System.print(256 >> 4)
System.print(~0)
`,
		"2", "7", "5", "16", "16", "4294967295")
}

func TestComparisonAndLogic(t *testing.T) {
	expectLines(t, `
System.print(1 < 2)
System.print(2 <= 2)
System.print("a" == "a")
System.print("a" != "b")
System.print(null == false)
System.print(true && false)
System.print(false || true)
System.print(!true)
System.print(null ? "yes" : "no")
`,
		"true", "true", "true", "true", "false", "false", "true", "false", "no")
}

func TestStrings(t *testing.T) {
	expectLines(t, `
System.print("hello" + " " + "world")
System.print("hello".count)
System.print("hello"[1])
System.print("hello"[1..3])
System.print("hello".contains("ell"))
System.print("hello".startsWith("he"))
System.print("hello".endsWith("lo"))
System.print("hello".indexOf("l"))
System.print("héllo".codePoints.count)
`,
		"hello world", "5", "e", "ell", "true", "true", "true", "2", "5")
}

func TestStringInterpolation(t *testing.T) {
	expectLines(t, `
var x = 3
System.print("x is %(x)")
System.print("sum: %(1 + 2), nested: %("a%(4 * 2)b")")
`,
		"x is 3", "sum: 3, nested: a8b")
}

func TestLists(t *testing.T) {
	expectLines(t, `
var list = [1, 2, 3]
System.print(list)
list.add(4)
System.print(list.count)
list.insert(0, 0)
System.print(list[0])
System.print(list[1..2])
System.print(list.removeAt(0))
System.print(list.indexOf(3))
list.swap(0, 1)
System.print(list)
System.print([0, 1] * 2)
`,
		"[1, 2, 3]", "4", "0", "[1, 2]", "0", "2", "[2, 1, 3, 4]", "[0, 1, 0, 1]")
}

func TestListSort(t *testing.T) {
	expectLines(t, `
System.print([3, 1, 2].sort())
System.print([3, 1, 2].sort {|a, b| a > b })
`,
		"[1, 2, 3]", "[3, 2, 1]")
}

func TestMaps(t *testing.T) {
	expectLines(t, `
var map = {"one": 1, "two": 2}
System.print(map.count)
System.print(map["one"])
System.print(map["missing"])
map["three"] = 3
System.print(map.containsKey("three"))
System.print(map.remove("one"))
System.print(map.count)
map.clear()
System.print(map.count)
`,
		"2", "1", "null", "true", "1", "2", "0")
}

func TestMapIteration(t *testing.T) {
	expectLines(t, `
var map = {"a": 1}
for (entry in map) {
  System.print(entry.key)
  System.print(entry.value)
}
System.print(map.keys.toList)
System.print(map.values.toList)
`,
		"a", "1", "[a]", "[1]")
}

func TestRanges(t *testing.T) {
	expectLines(t, `
var sum = 0
for (i in 1..4) sum = sum + i
System.print(sum)
System.print((1...4).toList)
System.print((4..1).toList)
System.print((1..4).min)
System.print((1..4).max)
System.print((1..3).isInclusive)
System.print(1..3)
`,
		"10", "[1, 2, 3]", "[4, 3, 2, 1]", "1", "4", "true", "1..3")
}

func TestSequenceMethods(t *testing.T) {
	expectLines(t, `
System.print((1..5).map {|x| x * x }.toList)
System.print((1..5).where {|x| x % 2 == 0 }.toList)
System.print((1..4).reduce {|acc, x| acc + x })
System.print([1, 2, 3].join("-"))
System.print((1..3).contains(2))
System.print([1, 2, 3].all {|x| x > 0 })
System.print([1, 2, 3].any {|x| x > 2 })
System.print((1..5).skip(2).take(2).toList)
`,
		"[1, 4, 9, 16, 25]", "[2, 4]", "10", "1-2-3", "true", "true", "true", "[3, 4]")
}

func TestVariablesAndScope(t *testing.T) {
	expectLines(t, `
var a = 1
{
  var a = 2
  System.print(a)
}
System.print(a)
`,
		"2", "1")
}

func TestControlFlow(t *testing.T) {
	expectLines(t, `
var i = 0
while (i < 3) i = i + 1
System.print(i)
if (i == 3) System.print("three") else System.print("not three")
for (x in [1, 2, 3, 4]) {
  if (x == 2) continue
  if (x == 4) break
  System.print(x)
}
`,
		"3", "three", "1", "3")
}

func TestClosures(t *testing.T) {
	expectLines(t, `
var makeCounter = Fn.new {
  var count = 0
  return Fn.new {
    count = count + 1
    return count
  }
}
var counter = makeCounter.call()
System.print(counter.call())
System.print(counter.call())
var other = makeCounter.call()
System.print(other.call())
System.print(Fn.new {|a, b| a }.arity)
`,
		"1", "2", "1", "2")
}

func TestClasses(t *testing.T) {
	expectLines(t, `
class Point {
  construct new(x, y) {
    _x = x
    _y = y
  }
  x { _x }
  y { _y }
  x=(value) { _x = value }
  +(other) { Point.new(_x + other.x, _y + other.y) }
  toString { "(%(_x), %(_y))" }
  static origin { Point.new(0, 0) }
}
var p = Point.new(1, 2)
System.print(p.x)
p.x = 10
System.print(p)
System.print(Point.origin)
System.print((p + Point.new(1, 1)).toString)
System.print(p is Point)
System.print(p.type.name)
`,
		"1", "(10, 2)", "(0, 0)", "(11, 3)", "true", "Point")
}

func TestInheritance(t *testing.T) {
	expectLines(t, `
class Animal {
  construct new(name) { _name = name }
  name { _name }
  speak { "..." }
  describe { "%(_name) says %(speak)" }
}
class Dog is Animal {
  construct new(name) { super(name) }
  speak { "woof" }
}
var d = Dog.new("Rex")
System.print(d.describe)
System.print(d is Animal)
System.print(Dog.supertype.name)
`,
		"Rex says woof", "true", "Animal")
}

func TestOperatorSubscript(t *testing.T) {
	expectLines(t, `
class Grid {
  construct new() { _cells = {} }
  [x, y] { _cells["%(x),%(y)"] }
  [x, y]=(value) { _cells["%(x),%(y)"] = value }
}
var g = Grid.new()
g[1, 2] = "hit"
System.print(g[1, 2])
System.print(g[0, 0])
`,
		"hit", "null")
}

func TestFiberYield(t *testing.T) {
	expectLines(t, `
var fiber = Fiber.new {
  System.print("one")
  Fiber.yield()
  System.print("two")
  Fiber.yield(3)
  "done"
}
fiber.call()
System.print("between")
System.print(fiber.call())
System.print(fiber.call())
System.print(fiber.isDone)
`,
		"one", "between", "two", "3", "null", "true")
}

func TestFiberPassValues(t *testing.T) {
	expectLines(t, `
var fiber = Fiber.new {|first|
  System.print(first)
  var second = Fiber.yield()
  System.print(second)
}
fiber.call("a")
fiber.call("b")
`,
		"a", "b")
}

func TestFiberTry(t *testing.T) {
	expectLines(t, `
var fiber = Fiber.new {
  Fiber.abort("boom")
}
var error = fiber.try()
System.print(error)
System.print(fiber.error)
System.print(fiber.isDone)
System.print(Fiber.new { 1 }.try())
`,
		"boom", "boom", "true", "1")
}

func TestFiberTransfer(t *testing.T) {
	expectLines(t, `
var main = Fiber.current
var worker = Fiber.new {
  System.print("worker")
  main.transfer()
}
worker.transfer()
System.print("back")
`,
		"worker", "back")
}

func TestRuntimeError(t *testing.T) {
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	result := vm.Interpret("main", `
var f = Fn.new { "str" + 3 }
f.call()
`)
	if result != ResultRuntimeError {
		t.Fatalf("result: got %d, want ResultRuntimeError", result)
	}
	if len(capture.errors) == 0 {
		t.Fatal("no error reported")
	}
	if capture.errors[0] != "Right operand must be a string." {
		t.Errorf("error: got %q", capture.errors[0])
	}
}

func TestMethodNotFound(t *testing.T) {
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	if result := vm.Interpret("main", "true.missing"); result != ResultRuntimeError {
		t.Fatalf("result: got %d, want ResultRuntimeError", result)
	}
	if len(capture.errors) == 0 || capture.errors[0] != "Bool does not implement 'missing'." {
		t.Errorf("errors: %v", capture.errors)
	}
}

func TestCompileError(t *testing.T) {
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	if result := vm.Interpret("main", "var = 3"); result != ResultCompileError {
		t.Fatalf("result: got %d, want ResultCompileError", result)
	}
	if len(capture.errors) == 0 {
		t.Error("no compile error reported")
	}
}

func TestImports(t *testing.T) {
	modules := map[string]string{
		"math": `
var Pi = 3.14159
class Circle {
  static area(r) { Pi * r * r }
}
`,
	}
	vm, capture := testVM(t, Config{
		LoadModuleFn: func(_ *VM, name string) (string, bool) {
			source, ok := modules[name]
			return source, ok
		},
	})
	defer vm.Free()

	result := vm.Interpret("main", `
import "math" for Pi, Circle
System.print(Pi)
System.print(Circle.area(1))
`)
	if result != ResultSuccess {
		t.Fatalf("Interpret: result %d, errors: %v", result, capture.errors)
	}
	want := "3.14159\n3.14159\n"
	if capture.out.String() != want {
		t.Errorf("output: got %q, want %q", capture.out.String(), want)
	}

	// A module runs once; a second import reuses it.
	if !vm.HasModule("math") {
		t.Error("HasModule: math not recorded as loaded")
	}
}

func TestImportMissing(t *testing.T) {
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	if result := vm.Interpret("main", `import "nowhere"`); result != ResultRuntimeError {
		t.Fatalf("result: got %d, want ResultRuntimeError", result)
	}
	if len(capture.errors) == 0 || !strings.Contains(capture.errors[0], "nowhere") {
		t.Errorf("errors: %v", capture.errors)
	}
}

func TestObjectIdentity(t *testing.T) {
	expectLines(t, `
System.print(Object.same("a" + "b", "ab"))
System.print("ab" == "ab")
System.print(1..2 == 1..2)
System.print(null.toString)
System.print(true.toString)
`,
		"false", "true", "true", "null", "true")
}

func TestClassAttributes(t *testing.T) {
	expectLines(t, `
class Plain {}
System.print(Plain.attributes)

#!key = "value"
class Tagged {}
System.print(Tagged.attributes == null)
`,
		"null", "false")
}

func TestTrailingSemicolons(t *testing.T) {
	vm, capture := testVM(t, Config{TrailingSemicolons: true})
	defer vm.Free()

	result := vm.Interpret("main", "var x = 1;\nSystem.print(x);\n")
	if result != ResultSuccess {
		t.Fatalf("Interpret: result %d, errors: %v", result, capture.errors)
	}
	if capture.out.String() != "1\n" {
		t.Errorf("output: got %q", capture.out.String())
	}
}

func TestInterpretExpressionProbe(t *testing.T) {
	vm, _ := testVM(t, Config{})
	defer vm.Free()

	if !vm.CompilesAsExpression("repl", "1 + 2") {
		t.Error("1 + 2 should compile as an expression")
	}
	if vm.CompilesAsExpression("repl", "var x = 1") {
		t.Error("a statement should not compile as an expression")
	}
}

func TestDumpSource(t *testing.T) {
	vm, _ := testVM(t, Config{})
	defer vm.Free()

	text, ok := vm.DumpSource("main", "System.print(1 + 2)")
	if !ok {
		t.Fatal("DumpSource failed on valid source")
	}
	if !strings.Contains(text, "CONSTANT") {
		t.Errorf("dump lacks a constant load:\n%s", text)
	}

	if _, ok := vm.DumpSource("main", "var = oops"); ok {
		t.Error("DumpSource succeeded on invalid source")
	}
}

func TestSystemStatics(t *testing.T) {
	expectLines(t, `
System.print(System.isDebugBuild)
System.print(System.clock is Num)
`,
		"false", "true")
}

func TestDollarString(t *testing.T) {
	// Without a host hook, $"..." evaluates to null.
	expectLines(t, `System.print($"select 1")`, "null")

	var seen string
	vm, capture := testVM(t, Config{
		DollarOperatorFn: func(vm *VM) {
			seen = vm.GetSlotString(0)
			vm.SetSlotString(0, "handled")
		},
	})
	defer vm.Free()

	if vm.Interpret("main", `System.print($"select 1")`) != ResultSuccess {
		t.Fatalf("errors: %v", capture.errors)
	}
	if seen != "select 1" {
		t.Errorf("hook receiver: got %q", seen)
	}
	if capture.out.String() != "handled\n" {
		t.Errorf("output: got %q", capture.out.String())
	}
}

func TestNumberTypeMarkers(t *testing.T) {
	expectLines(t, `
System.print(10L)
System.print(2.5f)
System.print(0x10L)
`,
		"10", "2.5", "16")
}

func TestFiberSuspend(t *testing.T) {
	vm, capture := testVM(t, Config{})
	defer vm.Free()

	result := vm.Interpret("main", `
		System.print("before")
		Fiber.suspend()
		System.print("after")
	`)
	if result != ResultSuccess {
		t.Fatalf("Interpret: result %d, errors: %v", result, capture.errors)
	}
	if capture.out.String() != "before\n" {
		t.Errorf("suspend did not stop execution: %q", capture.out.String())
	}
}
