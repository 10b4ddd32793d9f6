package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Num primitives
// ---------------------------------------------------------------------------

// numToDisplay renders a number the way the language prints it: integers
// without a fraction, everything else with up to 14 significant digits.
func numToDisplay(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "infinity"
	}
	if math.IsInf(n, -1) {
		return "-infinity"
	}
	s := strconv.FormatFloat(n, 'g', 14, 64)
	// Normalize the exponent to a sign and at least two digits
	// ("1e+16", "1e-05"), the form printf's %g uses.
	if i := strings.IndexAny(s, "eE"); i != -1 {
		mantissa, exponent := s[:i], s[i+1:]
		sign := ""
		if exponent[0] == '+' || exponent[0] == '-' {
			sign = string(exponent[0])
			exponent = exponent[1:]
		}
		exponent = strings.TrimLeft(exponent, "0")
		if exponent == "" {
			exponent = "0"
		}
		if len(exponent) == 1 {
			exponent = "0" + exponent
		}
		s = mantissa + "e" + sign + exponent
	}
	return s
}

func numFromString(vm *VM, args []Value) bool {
	if !validateString(vm, args[1], "Argument") {
		return false
	}

	text := strings.TrimSpace(args[1].asString().value)
	if text == "" {
		args[0] = NullValue
		return true
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Try hex, which ParseFloat only accepts with a "p" exponent.
		if u, hexErr := strconv.ParseUint(strings.TrimPrefix(text, "0x"), 16, 64); hexErr == nil && strings.HasPrefix(text, "0x") {
			args[0] = NumValue(float64(u))
			return true
		}
		args[0] = NullValue
		return true
	}
	if math.IsInf(n, 0) {
		vm.abortFiberf("Number literal is too large.")
		return false
	}
	args[0] = NumValue(n)
	return true
}

func numInfinity(vm *VM, args []Value) bool {
	args[0] = NumValue(math.Inf(1))
	return true
}

func numNan(vm *VM, args []Value) bool {
	args[0] = NumValue(math.NaN())
	return true
}

func numPi(vm *VM, args []Value) bool {
	args[0] = NumValue(math.Pi)
	return true
}

func numTau(vm *VM, args []Value) bool {
	args[0] = NumValue(2 * math.Pi)
	return true
}

func numLargest(vm *VM, args []Value) bool {
	args[0] = NumValue(math.MaxFloat64)
	return true
}

func numSmallest(vm *VM, args []Value) bool {
	args[0] = NumValue(math.SmallestNonzeroFloat64)
	return true
}

func numMaxSafeInteger(vm *VM, args []Value) bool {
	args[0] = NumValue(9007199254740991)
	return true
}

func numMinSafeInteger(vm *VM, args []Value) bool {
	args[0] = NumValue(-9007199254740991)
	return true
}

// numInfix implements an arithmetic operator over two numbers.
func numInfix(vm *VM, args []Value, op func(a, b float64) float64) bool {
	if !validateNum(vm, args[1], "Right operand") {
		return false
	}
	args[0] = NumValue(op(args[0].Num(), args[1].Num()))
	return true
}

func numCompare(vm *VM, args []Value, op func(a, b float64) bool) bool {
	if !validateNum(vm, args[1], "Right operand") {
		return false
	}
	args[0] = BoolValue(op(args[0].Num(), args[1].Num()))
	return true
}

func numMinus(vm *VM, args []Value) bool {
	return numInfix(vm, args, func(a, b float64) float64 { return a - b })
}

func numPlus(vm *VM, args []Value) bool {
	return numInfix(vm, args, func(a, b float64) float64 { return a + b })
}

func numMultiply(vm *VM, args []Value) bool {
	return numInfix(vm, args, func(a, b float64) float64 { return a * b })
}

func numDivide(vm *VM, args []Value) bool {
	return numInfix(vm, args, func(a, b float64) float64 { return a / b })
}

func numLt(vm *VM, args []Value) bool {
	return numCompare(vm, args, func(a, b float64) bool { return a < b })
}

func numGt(vm *VM, args []Value) bool {
	return numCompare(vm, args, func(a, b float64) bool { return a > b })
}

func numLtEq(vm *VM, args []Value) bool {
	return numCompare(vm, args, func(a, b float64) bool { return a <= b })
}

func numGtEq(vm *VM, args []Value) bool {
	return numCompare(vm, args, func(a, b float64) bool { return a >= b })
}

// The bitwise operators truncate their operands to 32-bit unsigned
// integers.
func numBitwise(vm *VM, args []Value, op func(a, b uint32) uint32) bool {
	if !validateNum(vm, args[1], "Right operand") {
		return false
	}
	left := uint32(int64(args[0].Num()))
	right := uint32(int64(args[1].Num()))
	args[0] = NumValue(float64(op(left, right)))
	return true
}

func numBitwiseAnd(vm *VM, args []Value) bool {
	return numBitwise(vm, args, func(a, b uint32) uint32 { return a & b })
}

func numBitwiseOr(vm *VM, args []Value) bool {
	return numBitwise(vm, args, func(a, b uint32) uint32 { return a | b })
}

func numBitwiseXor(vm *VM, args []Value) bool {
	return numBitwise(vm, args, func(a, b uint32) uint32 { return a ^ b })
}

func numBitwiseLeftShift(vm *VM, args []Value) bool {
	return numBitwise(vm, args, func(a, b uint32) uint32 { return a << (b & 31) })
}

func numBitwiseRightShift(vm *VM, args []Value) bool {
	return numBitwise(vm, args, func(a, b uint32) uint32 { return a >> (b & 31) })
}

func numBitwiseNot(vm *VM, args []Value) bool {
	args[0] = NumValue(float64(^uint32(int64(args[0].Num()))))
	return true
}

// numFn implements a getter that maps the receiver through a math
// function.
func numFn(args []Value, fn func(float64) float64) bool {
	args[0] = NumValue(fn(args[0].Num()))
	return true
}

func numAbs(vm *VM, args []Value) bool  { return numFn(args, math.Abs) }
func numAcos(vm *VM, args []Value) bool { return numFn(args, math.Acos) }
func numAsin(vm *VM, args []Value) bool { return numFn(args, math.Asin) }
func numAtan(vm *VM, args []Value) bool { return numFn(args, math.Atan) }
func numCbrt(vm *VM, args []Value) bool { return numFn(args, math.Cbrt) }
func numCeil(vm *VM, args []Value) bool { return numFn(args, math.Ceil) }
func numCos(vm *VM, args []Value) bool  { return numFn(args, math.Cos) }
func numFloor(vm *VM, args []Value) bool {
	return numFn(args, math.Floor)
}
func numSin(vm *VM, args []Value) bool  { return numFn(args, math.Sin) }
func numSqrt(vm *VM, args []Value) bool { return numFn(args, math.Sqrt) }
func numTan(vm *VM, args []Value) bool  { return numFn(args, math.Tan) }
func numLog(vm *VM, args []Value) bool  { return numFn(args, math.Log) }
func numLog2(vm *VM, args []Value) bool { return numFn(args, math.Log2) }
func numExp(vm *VM, args []Value) bool  { return numFn(args, math.Exp) }

func numNegate(vm *VM, args []Value) bool {
	args[0] = NumValue(-args[0].Num())
	return true
}

func numRound(vm *VM, args []Value) bool {
	// Round half away from zero, like C's round().
	return numFn(args, math.Round)
}

func numMin(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Other value") {
		return false
	}
	value, other := args[0].Num(), args[1].Num()
	if other < value {
		value = other
	}
	args[0] = NumValue(value)
	return true
}

func numMax(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Other value") {
		return false
	}
	value, other := args[0].Num(), args[1].Num()
	if other > value {
		value = other
	}
	args[0] = NumValue(value)
	return true
}

func numClamp(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Min value") {
		return false
	}
	if !validateNum(vm, args[2], "Max value") {
		return false
	}
	value := args[0].Num()
	lower, upper := args[1].Num(), args[2].Num()
	args[0] = NumValue(math.Min(math.Max(value, lower), upper))
	return true
}

func numAtan2(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "x value") {
		return false
	}
	args[0] = NumValue(math.Atan2(args[0].Num(), args[1].Num()))
	return true
}

func numPow(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Power value") {
		return false
	}
	args[0] = NumValue(math.Pow(args[0].Num(), args[1].Num()))
	return true
}

func numMod(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Right operand") {
		return false
	}
	args[0] = NumValue(math.Mod(args[0].Num(), args[1].Num()))
	return true
}

func numDotDot(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Right hand side of range") {
		return false
	}
	args[0] = vm.newRange(args[0].Num(), args[1].Num(), true).val()
	return true
}

func numDotDotDot(vm *VM, args []Value) bool {
	if !validateNum(vm, args[1], "Right hand side of range") {
		return false
	}
	args[0] = vm.newRange(args[0].Num(), args[1].Num(), false).val()
	return true
}

func numFraction(vm *VM, args []Value) bool {
	frac := math.Mod(args[0].Num(), 1)
	args[0] = NumValue(frac)
	return true
}

func numIsInfinity(vm *VM, args []Value) bool {
	args[0] = BoolValue(math.IsInf(args[0].Num(), 0))
	return true
}

func numIsInteger(vm *VM, args []Value) bool {
	n := args[0].Num()
	args[0] = BoolValue(!math.IsNaN(n) && !math.IsInf(n, 0) && math.Trunc(n) == n)
	return true
}

func numIsNan(vm *VM, args []Value) bool {
	args[0] = BoolValue(math.IsNaN(args[0].Num()))
	return true
}

func numSign(vm *VM, args []Value) bool {
	n := args[0].Num()
	switch {
	case n > 0:
		args[0] = NumValue(1)
	case n < 0:
		args[0] = NumValue(-1)
	default:
		args[0] = NumValue(0)
	}
	return true
}

func numToString(vm *VM, args []Value) bool {
	args[0] = vm.stringValue(numToDisplay(args[0].Num()))
	return true
}

func numTruncate(vm *VM, args []Value) bool {
	return numFn(args, math.Trunc)
}

func numEqEq(vm *VM, args []Value) bool {
	if !args[1].IsNum() {
		args[0] = FalseValue
		return true
	}
	args[0] = BoolValue(args[0].Num() == args[1].Num())
	return true
}

func numBangEq(vm *VM, args []Value) bool {
	if !args[1].IsNum() {
		args[0] = TrueValue
		return true
	}
	args[0] = BoolValue(args[0].Num() != args[1].Num())
	return true
}
