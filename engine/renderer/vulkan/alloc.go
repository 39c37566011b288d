package vulkan

import "sort"

// allocSlot is a free region inside a buffer's backing allocation.
type allocSlot struct {
	offset uint64
	length uint64
}

// subAllocator is a first-fit allocator over a single growable buffer. Free
// slots are kept sorted by offset in a slice rather than a tree: allocation
// counts in this domain (descriptor bindings, vertex/index regions) stay in
// the tens to low hundreds, where a binary-searched slice beats the
// pointer-chasing and allocation overhead of a balanced tree.
type subAllocator struct {
	capacity  uint64
	alignment uint64
	free      []allocSlot // sorted by offset, never adjacent-merged out of order
}

func newSubAllocator(capacity, alignment uint64) *subAllocator {
	if alignment == 0 {
		alignment = 1
	}
	return &subAllocator{
		capacity:  capacity,
		alignment: alignment,
		free:      []allocSlot{{offset: 0, length: capacity}},
	}
}

func alignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	rem := v % alignment
	if rem == 0 {
		return v
	}
	return v + (alignment - rem)
}

// Alloc finds the first free slot that fits size (aligned), splitting the
// remainder back into the free list. Returns ok=false when no slot fits;
// the caller is expected to grow the allocator and retry.
func (a *subAllocator) Alloc(size uint64) (offset uint64, ok bool) {
	size = alignUp(size, a.alignment)
	for i, slot := range a.free {
		alignedOffset := alignUp(slot.offset, a.alignment)
		pad := alignedOffset - slot.offset
		if slot.length < pad+size {
			continue
		}
		remaining := slot.length - pad - size
		if remaining == 0 && pad == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else if pad == 0 {
			a.free[i] = allocSlot{offset: slot.offset + size, length: remaining}
		} else {
			// Keep the leading pad as its own slot, shrink the tail.
			a.free[i] = allocSlot{offset: slot.offset, length: pad}
			if remaining > 0 {
				tail := allocSlot{offset: alignedOffset + size, length: remaining}
				a.free = append(a.free[:i+1], append([]allocSlot{tail}, a.free[i+1:]...)...)
			}
		}
		return alignedOffset, true
	}
	return 0, false
}

// Free returns a previously allocated region to the free list, merging with
// adjacent free slots on either side.
func (a *subAllocator) Free(offset, size uint64) {
	size = alignUp(size, a.alignment)
	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= offset })

	slot := allocSlot{offset: offset, length: size}
	// Merge with the previous slot if contiguous.
	if idx > 0 {
		prev := a.free[idx-1]
		if prev.offset+prev.length == slot.offset {
			slot.offset = prev.offset
			slot.length += prev.length
			idx--
			a.free = append(a.free[:idx], a.free[idx+1:]...)
		}
	}
	// Merge with the next slot if contiguous.
	if idx < len(a.free) {
		next := a.free[idx]
		if slot.offset+slot.length == next.offset {
			slot.length += next.length
			a.free = append(a.free[:idx], a.free[idx+1:]...)
		}
	}

	a.free = append(a.free, allocSlot{})
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = slot
}

// Grow extends the allocator's addressable capacity to newCapacity,
// appending a new free slot covering the added space (or extending the
// trailing free slot); a newCapacity not above the current one is ignored. Callers resize the backing Vulkan buffer
// to match before calling Grow.
func (a *subAllocator) Grow(newCapacity uint64) {
	if newCapacity <= a.capacity {
		return
	}
	added := allocSlot{offset: a.capacity, length: newCapacity - a.capacity}
	if n := len(a.free); n > 0 && a.free[n-1].offset+a.free[n-1].length == a.capacity {
		a.free[n-1].length += added.length
	} else {
		a.free = append(a.free, added)
	}
	a.capacity = newCapacity
}

// largestFree reports the size of the largest contiguous free slot, used to
// decide whether Grow is needed before an Alloc would succeed.
func (a *subAllocator) largestFree() uint64 {
	var max uint64
	for _, s := range a.free {
		if s.length > max {
			max = s.length
		}
	}
	return max
}
