package buffer_test

import (
	"testing"

	"github.com/brickingsoft/sheep/buffer"
)

func TestSetSizeClampsToCapacity(t *testing.T) {
	b := buffer.New(4)
	b.SetSize(10)
	if b.Size() != 4 {
		t.Fatalf("expected size clamped to capacity 4, got %d", b.Size())
	}
}

func TestSwapExchangesContents(t *testing.T) {
	a := buffer.New(4)
	b := buffer.New(4)
	copy(a.Bytes(), []byte("abcd"))
	a.SetSize(4)
	b.SetSize(0)

	a.Swap(b)
	if b.Size() != 4 || string(b.Filled()) != "abcd" {
		t.Fatalf("expected b to hold swapped contents, got %q size %d", b.Filled(), b.Size())
	}
	if a.Size() != 0 {
		t.Fatalf("expected a to be empty after swap, got size %d", a.Size())
	}
}

func TestResetClearsSizeNotStorage(t *testing.T) {
	b := buffer.New(4)
	copy(b.Bytes(), []byte("abcd"))
	b.SetSize(4)
	b.Reset()
	if b.Size() != 0 {
		t.Fatalf("expected size 0 after reset, got %d", b.Size())
	}
	if string(b.Bytes()) != "abcd" {
		t.Fatal("expected reset to preserve backing storage")
	}
}
