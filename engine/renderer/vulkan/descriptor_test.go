package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

// TestDescriptorsAtClipping exercises the per-frame clipping property
// directly on Descriptors.At: a single-set Descriptors always reports set 0
// regardless of the requested frame, and an N-deep Descriptors reports set
// i for frame i.
func TestDescriptorsAtClipping(t *testing.T) {
	single := &Descriptors{Sets: []vk.DescriptorSet{1}}
	for frame := uint32(0); frame < 5; frame++ {
		if got := single.At(frame); got != 1 {
			t.Errorf("single-set Descriptors.At(%d) = %v, want 1", frame, got)
		}
	}

	fanned := &Descriptors{Sets: []vk.DescriptorSet{10, 20, 30}}
	for frame := uint32(0); frame < 3; frame++ {
		want := fanned.Sets[frame]
		if got := fanned.At(frame); got != want {
			t.Errorf("fanned Descriptors.At(%d) = %v, want %v", frame, got, want)
		}
	}
}

// TestDescriptorsSetBufferSkipsWriteWhenNotStale confirms the dirty-tracking
// short circuit: SetBuffer on a binding whose recorded (generation,
// resourceID) pair already matches the request skips the write.
func TestDescriptorsSetBufferSkipsWriteWhenNotStale(t *testing.T) {
	d := &Descriptors{
		state: [][]bindingState{{{generation: 5, resourceID: 7}}},
		Sets:  []vk.DescriptorSet{0},
	}
	if wrote := d.SetBuffer(0, 0, vk.NullBuffer, 0, 0, 5, 7); wrote {
		t.Errorf("expected SetBuffer to skip the write when generation/resourceID already match")
	}
}
