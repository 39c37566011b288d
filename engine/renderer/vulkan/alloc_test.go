package vulkan

import "testing"

func TestSubAllocatorFirstFit(t *testing.T) {
	a := newSubAllocator(1024, 16)

	off1, ok := a.Alloc(100)
	if !ok {
		t.Fatalf("expected alloc to succeed")
	}
	if off1 != 0 {
		t.Errorf("expected first alloc at offset 0, got %d", off1)
	}

	off2, ok := a.Alloc(200)
	if !ok {
		t.Fatalf("expected second alloc to succeed")
	}
	if off2 <= off1 {
		t.Errorf("expected second region to start after the first, got %d <= %d", off2, off1)
	}
}

func TestSubAllocatorFreeAndMerge(t *testing.T) {
	a := newSubAllocator(1024, 1)

	off1, _ := a.Alloc(100)
	off2, _ := a.Alloc(100)
	off3, _ := a.Alloc(100)

	a.Free(off2, 100)
	a.Free(off1, 100)
	a.Free(off3, 100)

	// Every region freed: the allocator should coalesce back into one
	// contiguous free span covering the whole capacity.
	if got := a.largestFree(); got != 1024 {
		t.Errorf("expected fully merged free space of 1024, got %d", got)
	}
}

func TestSubAllocatorExhaustionSignalsGrowth(t *testing.T) {
	a := newSubAllocator(100, 1)
	if _, ok := a.Alloc(50); !ok {
		t.Fatalf("expected first alloc to succeed")
	}
	if _, ok := a.Alloc(100); ok {
		t.Fatalf("expected oversized alloc to fail so the caller knows to grow")
	}

	a.Grow(300)
	if off, ok := a.Alloc(100); !ok || off+100 > 300 {
		t.Fatalf("expected alloc after growth to succeed within the grown capacity, got off=%d ok=%v", off, ok)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, align, want uint64 }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{5, 1, 5},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.align); got != c.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.v, c.align, got, c.want)
		}
	}
}
