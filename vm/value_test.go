package vm

import (
	"math"
	"testing"
)

func TestValueNumRoundTrip(t *testing.T) {
	cases := []float64{
		0, -0.0, 1, -1, 0.5, 3.141592653589793,
		math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1),
	}
	for _, n := range cases {
		v := NumValue(n)
		if !v.IsNum() {
			t.Errorf("%g: not a number", n)
			continue
		}
		if got := v.Num(); got != n {
			t.Errorf("%g: round-tripped to %g", n, got)
		}
		if v.IsObj() || v.IsNull() || v.IsBool() || v.IsUndefined() {
			t.Errorf("%g: claims a non-number kind", n)
		}
	}
}

func TestValueNaN(t *testing.T) {
	v := NumValue(math.NaN())
	if !v.IsNum() {
		t.Fatal("NaN is not a number value")
	}
	if !math.IsNaN(v.Num()) {
		t.Errorf("NaN round-tripped to %g", v.Num())
	}
	if v.IsNull() || v.IsBool() || v.IsObj() {
		t.Error("NaN collides with a singleton or object")
	}
}

func TestValueSingletons(t *testing.T) {
	if !TrueValue.IsBool() || !TrueValue.Bool() {
		t.Error("true singleton")
	}
	if !FalseValue.IsBool() || FalseValue.Bool() {
		t.Error("false singleton")
	}
	if !NullValue.IsNull() {
		t.Error("null singleton")
	}
	if !UndefinedValue.IsUndefined() {
		t.Error("undefined singleton")
	}

	singles := []Value{TrueValue, FalseValue, NullValue, UndefinedValue}
	for i, a := range singles {
		for j, b := range singles {
			if (a == b) != (i == j) {
				t.Errorf("singletons %d and %d conflate", i, j)
			}
		}
		if a.IsNum() || a.IsObj() {
			t.Errorf("singleton %d claims num or obj", i)
		}
	}
}

func TestValueObjRoundTrip(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	s := vm.newString("payload")
	v := ObjValue(&s.Obj)
	if !v.IsObj() {
		t.Fatal("object value not recognized")
	}
	if v.IsNum() || v.IsNull() || v.IsBool() {
		t.Error("object value claims another kind")
	}
	if v.Obj() != &s.Obj {
		t.Error("object pointer did not round-trip")
	}
	if v.asString().value != "payload" {
		t.Errorf("recovered string: %q", v.asString().value)
	}
}

func TestSame(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	if !Same(NumValue(3), NumValue(3)) {
		t.Error("equal numbers not same")
	}
	if Same(NumValue(3), NumValue(4)) {
		t.Error("distinct numbers same")
	}
	if !Same(TrueValue, TrueValue) || Same(TrueValue, FalseValue) {
		t.Error("bool identity")
	}

	a := vm.newString("abc")
	b := vm.newString("abc")
	if !Same(a.val(), a.val()) {
		t.Error("object not same as itself")
	}
	if Same(a.val(), b.val()) {
		t.Error("distinct objects with equal content reported same")
	}
}

func TestValuesEqualStructural(t *testing.T) {
	vm := NewVM(Config{})
	defer vm.Free()

	a := vm.newString("abc")
	b := vm.newString("abc")
	if !valuesEqual(a.val(), b.val()) {
		t.Error("equal strings not valuesEqual")
	}

	r1 := vm.newRange(1, 5, true)
	r2 := vm.newRange(1, 5, true)
	r3 := vm.newRange(1, 5, false)
	if !valuesEqual(r1.val(), r2.val()) {
		t.Error("equal ranges not valuesEqual")
	}
	if valuesEqual(r1.val(), r3.val()) {
		t.Error("inclusive and exclusive ranges conflated")
	}
}

func TestNumToDisplay(t *testing.T) {
	cases := []struct {
		n    float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-1, "-1"},
		{0.5, "0.5"},
		{3.14159, "3.14159"},
		{100, "100"},
		{math.Copysign(0, -1), "-0"},
		{1e16, "1e+16"},
		{1e-5, "1e-05"},
		{123456789012345678, "1.2345678901235e+17"},
		{math.Inf(1), "infinity"},
		{math.Inf(-1), "-infinity"},
		{math.NaN(), "nan"},
	}
	for _, tc := range cases {
		if got := numToDisplay(tc.n); got != tc.want {
			t.Errorf("%v: got %q, want %q", tc.n, got, tc.want)
		}
	}
}
