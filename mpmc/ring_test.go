package mpmc_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/brickingsoft/sheep/mpmc"
)

func TestRoundsCapacityToPowerOfTwo(t *testing.T) {
	r := mpmc.New[int](5)
	if r.Cap() != 8 {
		t.Fatalf("expected capacity 8, got %d", r.Cap())
	}
}

func TestPushPopFIFOSingleProducerConsumer(t *testing.T) {
	r := mpmc.New[int](4)
	for i := 0; i < 100; i++ {
		r.Push(i)
		if v := r.Pop(); v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
}

func TestTryPushFullRing(t *testing.T) {
	r := mpmc.New[int](4)
	for i := 0; i < 4; i++ {
		if !r.TryPush(i) {
			t.Fatalf("expected push %d to succeed", i)
		}
	}
	if r.TryPush(99) {
		t.Fatal("expected push to a full ring to fail")
	}
	if v, ok := r.TryPop(); !ok || v != 0 {
		t.Fatalf("expected to pop 0, got %d, ok=%v", v, ok)
	}
	if !r.TryPush(99) {
		t.Fatal("expected push to succeed after a pop freed a slot")
	}
}

func TestMultisetPreservedUnderConcurrency(t *testing.T) {
	const (
		producers  = 8
		perProduce = 500
	)
	r := mpmc.New[int](64)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProduce; i++ {
				r.Push(base*perProduce + i)
			}
		}(p)
	}

	total := producers * perProduce
	got := make([]int, 0, total)
	var mu sync.Mutex
	var consumeWG sync.WaitGroup
	consumeWG.Add(4)
	for c := 0; c < 4; c++ {
		go func() {
			defer consumeWG.Done()
			// Pop blocks until its ticket is filled, so each consumer pops
			// exactly its share: an extra Pop would wait forever.
			for i := 0; i < total/4; i++ {
				v := r.Pop()
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	consumeWG.Wait()

	want := make([]int, 0, total)
	for p := 0; p < producers; p++ {
		for i := 0; i < perProduce; i++ {
			want = append(want, p*perProduce+i)
		}
	}
	sort.Ints(got)
	sort.Ints(want)
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("multiset mismatch at %d: want %d got %d", i, want[i], got[i])
		}
	}
}

func TestConsumeDrainsAvailableItems(t *testing.T) {
	r := mpmc.New[int](8)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	var seen []int
	r.Consume(func(v int) { seen = append(seen, v) })
	if len(seen) != 5 {
		t.Fatalf("expected 5 items consumed, got %d", len(seen))
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("expected FIFO order, at %d want %d got %d", i, i, v)
		}
	}
}

func TestBulkPushBulkPop(t *testing.T) {
	r := mpmc.New[int](8)
	items := []int{1, 2, 3, 4}
	r.BulkPush(items)
	out := make([]int, 4)
	n := r.BulkPop(out)
	if n != 4 {
		t.Fatalf("expected 4 popped, got %d", n)
	}
	for i, v := range out {
		if v != items[i] {
			t.Fatalf("at %d want %d got %d", i, items[i], v)
		}
	}
}
