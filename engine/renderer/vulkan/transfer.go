package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vizcore/engine/containers"
	"github.com/spaghettifunk/vizcore/engine/core"
)

// transferKind distinguishes the three transfer operations the engine
// batches: host-to-device upload, device-to-host download, and
// device-to-device copy.
type transferKind int

const (
	transferUpload transferKind = iota
	transferDownload
	transferCopy
)

type transferItem struct {
	kind       transferKind
	srcBuffer  vk.Buffer
	dstBuffer  vk.Buffer
	srcOffset  uint64
	dstOffset  uint64
	size       uint64
	data       []byte
	onDownload func([]byte)
}

// Transfer queues buffer uploads/downloads/copies and carries them out
// through a staging buffer on the dedicated transfer queue; PumpPending
// issues one synchronous copy per queued item.
type Transfer struct {
	gpu     *GPU
	staging *Buffer
	pending *containers.RingQueue[transferItem]

	// dup-ring coherence: a dup'd resource is written while up to
	// framesInFlight prior copies may still be in flight on the GPU. A
	// write to dup copy i must wait until every frame has observed the
	// copy it's about to overwrite.
	mu             sync.Mutex
	cond           *sync.Cond
	framesInFlight uint32
	observedCount  []uint32 // per dup index, how many frames have observed the current contents
}

func NewTransfer(g *GPU, framesInFlight uint32) (*Transfer, error) {
	staging, err := NewBuffer(g, BufferRoleStaging, 1<<20, 1)
	if err != nil {
		return nil, err
	}
	t := &Transfer{
		gpu:            g,
		staging:        staging,
		pending:        containers.NewRingQueue[transferItem](64),
		framesInFlight: framesInFlight,
		// Every dup slot starts "fully observed": nothing has been written
		// to it yet, so a first write has nothing to wait on. Zero-valued
		// counters would instead make WaitAllFramesObserved block forever
		// on a slot no frame has ever touched.
		observedCount: make([]uint32, framesInFlight),
	}
	for i := range t.observedCount {
		t.observedCount[i] = framesInFlight
	}
	t.cond = sync.NewCond(&t.mu)
	return t, nil
}

func nextPow2(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

func (t *Transfer) ensureStagingCapacity(size uint64) error {
	if size <= t.staging.Size {
		return nil
	}
	return t.staging.grow(nextPow2(size))
}

// Upload queues a host-to-device copy of data into dst at dstOffset.
func (t *Transfer) Upload(dst vk.Buffer, dstOffset uint64, data []byte) error {
	return t.pending.Enqueue(transferItem{
		kind:      transferUpload,
		dstBuffer: dst,
		dstOffset: dstOffset,
		size:      uint64(len(data)),
		data:      data,
	})
}

// Download queues a device-to-host copy; onDownload is invoked with the
// resulting bytes once PumpPending processes this item.
func (t *Transfer) Download(src vk.Buffer, srcOffset, size uint64, onDownload func([]byte)) error {
	return t.pending.Enqueue(transferItem{
		kind:       transferDownload,
		srcBuffer:  src,
		srcOffset:  srcOffset,
		size:       size,
		onDownload: onDownload,
	})
}

// Copy queues a device-to-device buffer copy.
func (t *Transfer) Copy(src, dst vk.Buffer, srcOffset, dstOffset, size uint64) error {
	return t.pending.Enqueue(transferItem{
		kind:      transferCopy,
		srcBuffer: src,
		dstBuffer: dst,
		srcOffset: srcOffset,
		dstOffset: dstOffset,
		size:      size,
	})
}

// PumpPending drains every queued transfer item, issuing one synchronous
// staging round-trip per item on the transfer queue. Coarse but simple:
// correctness over throughput, per the cooperative queue-wait-idle
// handshake with the render queue.
func (t *Transfer) PumpPending() error {
	for !t.pending.IsEmpty() {
		item, err := t.pending.Dequeue()
		if err != nil {
			return err
		}
		if err := t.process(item); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transfer) process(item transferItem) error {
	g := t.gpu
	switch item.kind {
	case transferUpload:
		if err := t.ensureStagingCapacity(item.size); err != nil {
			return err
		}
		if err := t.staging.LoadData(0, item.data); err != nil {
			return err
		}
		return copyBufferRange(g, t.staging.Handle, item.dstBuffer, 0, item.dstOffset, item.size)
	case transferDownload:
		if err := t.ensureStagingCapacity(item.size); err != nil {
			return err
		}
		if err := copyBufferRange(g, item.srcBuffer, t.staging.Handle, item.srcOffset, 0, item.size); err != nil {
			return err
		}
		data, err := t.staging.ReadData(0, item.size)
		if err != nil {
			return err
		}
		if item.onDownload != nil {
			item.onDownload(data)
		}
		return nil
	case transferCopy:
		return copyBufferRange(g, item.srcBuffer, item.dstBuffer, item.srcOffset, item.dstOffset, item.size)
	default:
		return errUnknownf("unknown transfer item kind")
	}
}

// MarkFrameObserved records that the frame with the given index has
// observed the current contents of dup copy dupIndex, waking any writer
// blocked in WaitAllFramesObserved for that copy.
func (t *Transfer) MarkFrameObserved(dupIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dupIndex < 0 || dupIndex >= len(t.observedCount) {
		return
	}
	t.observedCount[dupIndex]++
	if t.observedCount[dupIndex] >= t.framesInFlight {
		t.cond.Broadcast()
	}
}

// WaitAllFramesObserved blocks until every frame in flight has observed
// the dup copy at dupIndex, then resets its counter for the next write.
// This is the mechanism that keeps a dup'd uniform buffer from being
// overwritten while a previous frame's command buffer still references it.
func (t *Transfer) WaitAllFramesObserved(dupIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for dupIndex >= 0 && dupIndex < len(t.observedCount) && t.observedCount[dupIndex] < t.framesInFlight {
		t.cond.Wait()
	}
	if dupIndex >= 0 && dupIndex < len(t.observedCount) {
		t.observedCount[dupIndex] = 0
	}
}

func (t *Transfer) Destroy() {
	if t.staging != nil {
		t.staging.Destroy()
	}
	core.LogDebug("transfer engine destroyed")
}
