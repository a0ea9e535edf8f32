package invariant

import (
	"strings"
	"testing"
)

func TestAssert(t *testing.T) {
	if v := Catch(func() { Assert(true, "never") }); v != nil {
		t.Fatalf("Assert(true) raised %v", v)
	}

	v := Catch(func() { Assert(false, "handle %d already taken", 7) })
	if v == nil {
		t.Fatal("Assert(false) did not raise")
	}
	if !strings.Contains(v.Detail, "handle 7 already taken") {
		t.Errorf("Detail = %q", v.Detail)
	}
}

func TestUnreachable(t *testing.T) {
	if v := Catch(func() { Unreachable("cancel of append task") }); v == nil {
		t.Fatal("Unreachable did not raise")
	}
}

func TestCatch_RepanicsForeignValues(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("recover() = %v, want boom", r)
		}
	}()
	Catch(func() { panic("boom") })
	t.Fatal("Catch swallowed a foreign panic")
}
