package kernel_test

import (
	"testing"

	"github.com/brickingsoft/sheep/pkg/kernel"
)

func TestGet(t *testing.T) {
	v, err := kernel.Get()
	if err != nil {
		t.Skipf("kernel version unavailable: %v", err)
	}
	t.Log(v)
}

func TestCompareOrdersByMajorMinorPatch(t *testing.T) {
	a := kernel.Version{Major: 5, Minor: 10, Patch: 0}
	b := kernel.Version{Major: 6, Minor: 0, Patch: 0}
	if kernel.Compare(a, b) >= 0 {
		t.Fatalf("expected %v < %v", a, b)
	}
	if kernel.Compare(b, a) <= 0 {
		t.Fatalf("expected %v > %v", b, a)
	}
	if kernel.Compare(a, a) != 0 {
		t.Fatalf("expected %v == %v", a, a)
	}
}
