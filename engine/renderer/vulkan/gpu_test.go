package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func family(flags vk.QueueFlagBits) vk.QueueFamilyProperties {
	return familyN(flags, 1)
}

func familyN(flags vk.QueueFlagBits, queueCount uint32) vk.QueueFamilyProperties {
	return vk.QueueFamilyProperties{QueueFlags: vk.QueueFlags(flags), QueueCount: queueCount}
}

// TestScoreQueueFamiliesPrefersDedicatedTransfer exercises the tie-break
// rule directly: among families advertising VK_QUEUE_TRANSFER_BIT, the one
// with the fewest other capabilities (lowest transfer score) wins transfer,
// even when a combined graphics+compute+transfer family also qualifies.
func TestScoreQueueFamiliesPrefersDedicatedTransfer(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		family(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit), // index 0: score 3
		family(vk.QueueTransferBit),                                           // index 1: score 1, dedicated
	}
	info, err := scoreQueueFamiliesFromProps(families, nil, false, GPURequirements{Graphics: true, Compute: true, Transfer: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.graphics != 0 {
		t.Errorf("expected graphics family 0, got %d", info.graphics)
	}
	if info.compute != 0 {
		t.Errorf("expected compute family 0, got %d", info.compute)
	}
	if info.transfer != 1 {
		t.Errorf("expected dedicated transfer family 1, got %d", info.transfer)
	}
}

func TestScoreQueueFamiliesAssignsPresent(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		family(vk.QueueGraphicsBit | vk.QueueTransferBit),
	}
	presentSupport := func(i uint32) bool { return i == 0 }
	info, err := scoreQueueFamiliesFromProps(families, presentSupport, true, GPURequirements{Graphics: true, Present: true, Transfer: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.present != 0 {
		t.Errorf("expected present family 0, got %d", info.present)
	}
}

func TestScoreQueueFamiliesErrorsWhenRequirementUnmet(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		family(vk.QueueTransferBit),
	}
	_, err := scoreQueueFamiliesFromProps(families, nil, false, GPURequirements{Graphics: true, Transfer: true})
	if err == nil {
		t.Fatalf("expected error when no family supports graphics")
	}
}

func TestScoreQueueFamiliesNeverExceedsFamilyCount(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		family(vk.QueueGraphicsBit),
		family(vk.QueueComputeBit),
		family(vk.QueueTransferBit),
	}
	info, err := scoreQueueFamiliesFromProps(families, nil, false, GPURequirements{Graphics: true, Compute: true, Transfer: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, idx := range []uint32{info.graphics, info.compute, info.transfer} {
		if idx >= uint32(len(families)) {
			t.Errorf("assigned family index %d exceeds family count %d", idx, len(families))
		}
	}
}

// TestAssignQueuesRespectsPerFamilyCapacity exercises the capacity-aware
// part of the property directly: a family with QueueCount 2 hands out two
// distinct queue indices to two slots that both fit it, rather than
// collapsing them onto the same queue.
func TestAssignQueuesRespectsPerFamilyCapacity(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		familyN(vk.QueueGraphicsBit|vk.QueueComputeBit, 2),
	}
	requests := []QueueRequest{
		{Slot: QueueSlotGraphics, Mask: vk.QueueGraphicsBit},
		{Slot: QueueSlotCompute, Mask: vk.QueueComputeBit},
	}
	assignments, err := assignQueues(families, nil, requests)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	graphics, compute := assignments[QueueSlotGraphics], assignments[QueueSlotCompute]
	if graphics.family != 0 || compute.family != 0 {
		t.Fatalf("expected both slots on family 0, got graphics=%d compute=%d", graphics.family, compute.family)
	}
	if graphics.index == compute.index {
		t.Errorf("expected distinct queue indices when the family has capacity for both, got %d for both", graphics.index)
	}
	if graphics.reused || compute.reused {
		t.Errorf("neither slot should report reuse when capacity was available")
	}
}

// TestAssignQueuesReusesQueueWhenFamilyAtCapacity covers the fallback half
// of the property: once a family's QueueCount is exhausted, a further slot
// that can only be satisfied by that family reuses an already-assigned
// queue instead of failing.
func TestAssignQueuesReusesQueueWhenFamilyAtCapacity(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		familyN(vk.QueueGraphicsBit|vk.QueueComputeBit, 1),
	}
	requests := []QueueRequest{
		{Slot: QueueSlotGraphics, Mask: vk.QueueGraphicsBit},
		{Slot: QueueSlotCompute, Mask: vk.QueueComputeBit},
	}
	assignments, err := assignQueues(families, nil, requests)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	graphics, compute := assignments[QueueSlotGraphics], assignments[QueueSlotCompute]
	if graphics.reused {
		t.Errorf("first slot to claim the only queue should not itself report reuse")
	}
	if !compute.reused {
		t.Errorf("expected compute to report reuse once the family's single queue was already claimed")
	}
	if compute.family != graphics.family || compute.index != graphics.index {
		t.Errorf("expected compute to reuse graphics's exact (family, index), got (%d,%d) vs (%d,%d)",
			compute.family, compute.index, graphics.family, graphics.index)
	}
}

// TestAssignQueuesErrorsWhenNoFamilyEverEligible confirms the reuse
// fallback doesn't mask a genuinely unsatisfiable request: if no family
// advertises the mask at all, reuse has nothing to fall back to either.
func TestAssignQueuesErrorsWhenNoFamilyEverEligible(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		familyN(vk.QueueTransferBit, 4),
	}
	requests := []QueueRequest{{Slot: QueueSlotGraphics, Mask: vk.QueueGraphicsBit}}
	if _, err := assignQueues(families, nil, requests); err == nil {
		t.Fatalf("expected error when no family advertises the requested mask")
	}
}
