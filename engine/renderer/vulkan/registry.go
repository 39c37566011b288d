package vulkan

import "github.com/spaghettifunk/vizcore/engine/core"

// Dat is a handle to a sub-allocated region of a shared Buffer, the unit
// callers actually allocate/upload/free rather than touching a Buffer
// directly.
type Dat struct {
	ID         uint32
	buffer     *Buffer
	Region     Region
	Standalone bool
	Mappable   bool
	Dup        bool
	DupCount   uint32
	generation uint32
}

// Upload stages data into this Dat's region through the shared Transfer
// engine. For a non-dup'd Dat that's a single write. For a dup'd Dat,
// every one of the DupCount per-frame slices must end up holding the same
// bytes: this replicates the write across all of them, waiting before each
// slice is overwritten until every frame in flight has observed that
// slice's previous contents (WaitAllFramesObserved), so a slow consumer
// never reads a write that raced ahead of it.
func (d *Dat) Upload(t *Transfer, data []byte) error {
	d.generation++
	if !d.Dup {
		return t.Upload(d.buffer.Handle, d.Region.Offset, data)
	}
	dupCount := d.DupCount
	if dupCount == 0 {
		dupCount = 1
	}
	sliceSize := d.Region.Length / uint64(dupCount)
	for i := uint32(0); i < dupCount; i++ {
		t.WaitAllFramesObserved(int(i))
		offset := d.Region.Offset + uint64(i)*sliceSize
		if err := t.Upload(d.buffer.Handle, offset, data); err != nil {
			return err
		}
	}
	return nil
}

// Download reads this Dat's region back via the shared Transfer engine.
func (d *Dat) Download(t *Transfer, onDownload func([]byte)) error {
	return t.Download(d.buffer.Handle, d.Region.Offset, d.Region.Length, onDownload)
}

func (d *Dat) Generation() uint32 { return d.generation }

// Tex is a handle to an image set plus an optional sampler, the unit
// callers allocate/upload/resize/free.
type Tex struct {
	ID         uint32
	Images     *ImageSet
	Sampler    *Sampler
	generation uint32
}

func (t *Tex) Generation() uint32 { return t.generation }
func (t *Tex) bumpGeneration()    { t.generation++ }

// bufferPool groups every Dat sub-allocated from buffers of one role,
// sharing a small set of underlying Buffer objects per role rather than
// creating one Vulkan buffer per allocation.
type bufferPool struct {
	role    BufferRole
	buffers []*Buffer
}

// Resources is the named registry of every buffer-backed and image-backed
// resource the renderer creates: one bufferPool per BufferRole, plus a
// flat pool of Tex, all addressed by an
// IdentifierAquireNewID-allocated handle so callers hold small integers
// rather than raw Vulkan types.
type Resources struct {
	gpu *GPU

	pools map[BufferRole]*bufferPool
	dats  map[uint32]*Dat
	texs  map[uint32]*Tex
}

func NewResources(g *GPU) *Resources {
	return &Resources{
		gpu:   g,
		pools: make(map[BufferRole]*bufferPool),
		dats:  make(map[uint32]*Dat),
		texs:  make(map[uint32]*Tex),
	}
}

const defaultBufferSize = 1 << 20 // 1 MiB starting allocation per role, doubled on growth

func (r *Resources) poolFor(role BufferRole) (*bufferPool, error) {
	p, ok := r.pools[role]
	if ok {
		return p, nil
	}
	buf, err := NewBuffer(r.gpu, role, defaultBufferSize, 1)
	if err != nil {
		return nil, err
	}
	p = &bufferPool{role: role, buffers: []*Buffer{buf}}
	r.pools[role] = p
	return p, nil
}

// AllocDat sub-allocates a region of the given size from the pool for role,
// registering a new Dat handle for it.
func (r *Resources) AllocDat(role BufferRole, size uint64, standalone, mappable, dup bool, dupCount uint32) (*Dat, error) {
	pool, err := r.poolFor(role)
	if err != nil {
		return nil, err
	}
	buf := pool.buffers[len(pool.buffers)-1]

	total := size
	if dup && dupCount > 1 {
		total = size * uint64(dupCount)
	}
	regions, err := buf.RegionSet(1, total)
	if err != nil {
		return nil, err
	}

	id := core.IdentifierAquireNewID(buf)
	dat := &Dat{
		ID:         id,
		buffer:     buf,
		Region:     regions[0],
		Standalone: standalone,
		Mappable:   mappable,
		Dup:        dup,
		DupCount:   dupCount,
	}
	r.dats[id] = dat
	return dat, nil
}

// FreeDat returns a Dat's region to its buffer's sub-allocator and
// releases its handle.
func (r *Resources) FreeDat(d *Dat) {
	d.buffer.FreeRegion(d.Region)
	delete(r.dats, d.ID)
	core.IdentifierReleaseID(d.ID)
}

// AllocTex registers a new Tex handle wrapping an already-created
// ImageSet/Sampler pair.
func (r *Resources) AllocTex(images *ImageSet, sampler *Sampler) *Tex {
	id := core.IdentifierAquireNewID(images)
	tex := &Tex{ID: id, Images: images, Sampler: sampler}
	r.texs[id] = tex
	return tex
}

// FreeTex destroys a Tex's images/sampler and releases its handle.
func (r *Resources) FreeTex(t *Tex) {
	if t.Images != nil {
		t.Images.Destroy()
	}
	if t.Sampler != nil {
		t.Sampler.Destroy()
	}
	delete(r.texs, t.ID)
	core.IdentifierReleaseID(t.ID)
}

// Destroy releases every pooled buffer. Individual Dat/Tex handles are not
// separately freed since their backing buffers/images go with the pool.
func (r *Resources) Destroy() {
	for _, pool := range r.pools {
		for _, buf := range pool.buffers {
			buf.Destroy()
		}
	}
	for _, tex := range r.texs {
		if tex.Images != nil {
			tex.Images.Destroy()
		}
		if tex.Sampler != nil {
			tex.Sampler.Destroy()
		}
	}
}
