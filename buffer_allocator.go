package kiln

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// Slab buffer allocator. Small transient allocations (per-draw constants,
// dynamic uploads) are carved out of shared backing buffers ("slabs")
// subdivided into fixed-size slices. Requests above the largest tier get a
// dedicated buffer of their own.
const (
	slicedBufferSize    = 16384
	bigBufferSlabSize   = 4096
	bufferSlabSize      = 1024
	smallBufferSlabSize = 512
	tinyBufferSlabSize  = 256
)

type bufferKey struct {
	memory MemoryUsage
	usage  wgpu.BufferUsage
}

// slab is one backing buffer plus the free list of its slices. The free
// list is LIFO so recently released slices are handed out first.
type slab struct {
	backing   GpuBuffer
	memory    MemoryUsage
	usage     wgpu.BufferUsage
	sliceSize int

	mu   sync.Mutex
	free []*BufferSlice
}

func newSlab(device Device, sliceSize int, slices int, memory MemoryUsage, usage wgpu.BufferUsage) *slab {
	s := &slab{
		backing:   device.CreateBuffer("slab", sliceSize*slices, memory, usage),
		memory:    memory,
		usage:     usage,
		sliceSize: sliceSize,
		free:      make([]*BufferSlice, 0, slices),
	}
	for i := 0; i < slices; i++ {
		s.free = append(s.free, &BufferSlice{
			slab:   s,
			offset: i * sliceSize,
			length: sliceSize,
		})
	}
	return s
}

func (s *slab) takeSlice() *BufferSlice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.free) == 0 {
		return nil
	}
	slice := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	slice.refs.Store(1)
	return slice
}

func (s *slab) returnSlice(slice *BufferSlice) {
	s.mu.Lock()
	s.free = append(s.free, slice)
	s.mu.Unlock()
}

// BufferSlice is an owning reference into a slab. It is reference counted;
// when the last reference is released the slice goes back onto its own
// slab's free list, never another's.
type BufferSlice struct {
	slab   *slab
	offset int
	length int
	refs   atomic.Int32
}

func (b *BufferSlice) Buffer() GpuBuffer { return b.slab.backing }
func (b *BufferSlice) Offset() int       { return b.offset }
func (b *BufferSlice) Length() int       { return b.length }

func (b *BufferSlice) String() string {
	return fmt.Sprintf("(buffer slice: %d-%d (length: %d))", b.offset, b.offset+b.length, b.length)
}

func (b *BufferSlice) Write(data []byte) {
	if len(data) > b.length {
		panic(fmt.Sprintf("write of %d bytes exceeds slice length %d", len(data), b.length))
	}
	b.slab.backing.Write(b.offset, data)
}

func (b *BufferSlice) Retain() {
	b.refs.Add(1)
}

func (b *BufferSlice) Release() {
	left := b.refs.Add(-1)
	if left < 0 {
		panic("buffer slice released more often than retained")
	}
	if left == 0 {
		b.slab.returnSlice(b)
	}
}

type bufferBucket struct {
	mu    sync.Mutex
	slabs []*slab
}

// BufferAllocator hands out pooled buffer slices keyed by memory class and
// usage flags. The bucket directory and every slab free list carry their
// own locks so independent producers do not serialize on one global lock.
type BufferAllocator struct {
	device Device
	limits DeviceLimits

	mu      sync.Mutex
	buckets map[bufferKey]*bufferBucket

	slabCount atomic.Int64
}

func NewBufferAllocator(device Device) *BufferAllocator {
	return &BufferAllocator{
		device:  device,
		limits:  device.Limits(),
		buckets: make(map[bufferKey]*bufferBucket),
	}
}

// SlabCount reports how many backing buffers exist. Reuse keeps this flat.
func (a *BufferAllocator) SlabCount() int64 {
	return a.slabCount.Load()
}

func (a *BufferAllocator) GetSlice(memory MemoryUsage, usage wgpu.BufferUsage, length int) *BufferSlice {
	if length > bigBufferSlabSize {
		dedicated := newSlab(a.device, length, 1, memory, usage)
		a.slabCount.Add(1)
		return dedicated.takeSlice()
	}

	alignment := 4
	if usage&wgpu.BufferUsageUniform != 0 {
		alignment = max(alignment, a.limits.MinUniformBufferOffsetAlignment)
	}
	if usage&wgpu.BufferUsageStorage != 0 {
		alignment = max(alignment, a.limits.MinStorageBufferOffsetAlignment)
	}

	bucket := a.bucket(bufferKey{memory: memory, usage: usage})

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	for _, s := range bucket.slabs {
		if s.sliceSize%alignment == 0 && s.sliceSize >= length {
			if slice := s.takeSlice(); slice != nil {
				return slice
			}
		}
	}

	sliceSize := sliceTier(max(length, alignment))
	s := newSlab(a.device, sliceSize, slicedBufferSize/sliceSize, memory, usage)
	a.slabCount.Add(1)
	bucket.slabs = append(bucket.slabs, s)
	return s.takeSlice()
}

func (a *BufferAllocator) bucket(key bufferKey) *bufferBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buckets[key]
	if !ok {
		b = &bufferBucket{}
		a.buckets[key] = b
	}
	return b
}

func sliceTier(length int) int {
	switch {
	case length <= tinyBufferSlabSize:
		return tinyBufferSlabSize
	case length <= smallBufferSlabSize:
		return smallBufferSlabSize
	case length <= bufferSlabSize:
		return bufferSlabSize
	default:
		return bigBufferSlabSize
	}
}
