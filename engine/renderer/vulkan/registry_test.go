package vulkan

import (
	"bytes"
	"sync"
	"testing"

	"github.com/spaghettifunk/vizcore/engine/containers"
)

// TestDatUploadReplicatesAcrossDupSlices exercises the dup-coherence
// property end to end through Dat.Upload rather than driving Transfer's
// sync.Cond plumbing directly: after Upload returns, every one of the
// DupCount per-frame slices must have a pending write of the same bytes at
// its own offset within the region.
func TestDatUploadReplicatesAcrossDupSlices(t *testing.T) {
	const dupCount = 3
	const sliceSize = 16

	tr := &Transfer{framesInFlight: 2, observedCount: make([]uint32, dupCount)}
	for i := range tr.observedCount {
		tr.observedCount[i] = tr.framesInFlight
	}
	tr.cond = sync.NewCond(&tr.mu)
	tr.pending = containers.NewRingQueue[transferItem](8)

	buf := &Buffer{}
	dat := &Dat{
		buffer:   buf,
		Region:   Region{Offset: 1000, Length: dupCount * sliceSize},
		Dup:      true,
		DupCount: dupCount,
	}

	payload := []byte("0123456789abcdef")
	if len(payload) != sliceSize {
		t.Fatalf("test payload must be %d bytes, got %d", sliceSize, len(payload))
	}
	if err := dat.Upload(tr, payload); err != nil {
		t.Fatalf("Dat.Upload: %s", err)
	}

	if got := dat.Generation(); got != 1 {
		t.Errorf("generation = %d, want 1", got)
	}

	for i := 0; i < dupCount; i++ {
		item, err := tr.pending.Dequeue()
		if err != nil {
			t.Fatalf("expected %d queued uploads, dequeue %d failed: %s", dupCount, i, err)
		}
		wantOffset := dat.Region.Offset + uint64(i)*sliceSize
		if item.dstOffset != wantOffset {
			t.Errorf("slice %d offset = %d, want %d", i, item.dstOffset, wantOffset)
		}
		if !bytes.Equal(item.data, payload) {
			t.Errorf("slice %d data = %q, want %q", i, item.data, payload)
		}
	}
	if !tr.pending.IsEmpty() {
		t.Error("expected exactly DupCount queued uploads, found more")
	}
}

// TestDatUploadWaitsForObservationBeforeOverwritingSlice verifies that a
// second Upload on a dup'd Dat blocks on WaitAllFramesObserved for a slot
// that has not yet been marked observed by every in-flight frame.
func TestDatUploadWaitsForObservationBeforeOverwritingSlice(t *testing.T) {
	const dupCount = 1

	tr := &Transfer{framesInFlight: 1, observedCount: make([]uint32, dupCount)}
	tr.observedCount[0] = tr.framesInFlight
	tr.cond = sync.NewCond(&tr.mu)
	tr.pending = containers.NewRingQueue[transferItem](8)

	dat := &Dat{buffer: &Buffer{}, Region: Region{Offset: 0, Length: 8}, Dup: true, DupCount: dupCount}

	if err := dat.Upload(tr, []byte("aaaaaaaa")); err != nil {
		t.Fatalf("first Dat.Upload: %s", err)
	}
	// First write consumed the initial "fully observed" credit; the slot's
	// counter is now 0 again, so a second write must wait for a fresh
	// MarkFrameObserved before it can proceed.
	done := make(chan struct{})
	go func() {
		if err := dat.Upload(tr, []byte("bbbbbbbb")); err != nil {
			t.Errorf("second Dat.Upload: %s", err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Upload returned before the slot was marked observed")
	default:
	}

	tr.MarkFrameObserved(0)
	<-done
}
