package kiln

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerHoldsBuffersUntilReset(t *testing.T) {
	a := NewBufferAllocator(NewHeadlessDevice())
	tr := NewLifetimeTrackers()

	s := a.GetSlice(MemoryUsageCpuToGpu, wgpu.BufferUsageUniform, 64)
	tr.TrackOwnedBuffer(s)

	// The slice is still referenced; the allocator must not hand out the
	// same region again.
	other := a.GetSlice(MemoryUsageCpuToGpu, wgpu.BufferUsageUniform, 64)
	assert.False(t, other.Buffer() == s.Buffer() && other.Offset() == s.Offset())

	tr.Reset()

	// Released now: the LIFO free list hands the region straight back.
	reused := a.GetSlice(MemoryUsageCpuToGpu, wgpu.BufferUsageUniform, 64)
	assert.Equal(t, s.Offset(), reused.Offset())
	assert.Equal(t, s.Buffer(), reused.Buffer())
}

func TestTrackBufferRetains(t *testing.T) {
	a := NewBufferAllocator(NewHeadlessDevice())
	tr := NewLifetimeTrackers()

	s := a.GetSlice(MemoryUsageCpuToGpu, wgpu.BufferUsageUniform, 64)
	tr.TrackBuffer(s)
	tr.Reset()

	// The caller's own reference survives the tracker reset.
	assert.Equal(t, int32(1), s.refs.Load())
	s.Release()
}

func TestTrackerResetKeepsCapacity(t *testing.T) {
	device := NewHeadlessDevice()
	tr := NewLifetimeTrackers()

	for i := 0; i < 10; i++ {
		tr.TrackSemaphore(device.CreateSemaphore())
		tr.TrackFence(device.CreateFence(true))
	}
	require.False(t, tr.IsEmpty())

	tr.Reset()
	assert.True(t, tr.IsEmpty())
	assert.GreaterOrEqual(t, cap(tr.semaphores), 10)
}

func TestRecordingResetBeforeFencePanics(t *testing.T) {
	device := NewHeadlessDevice()
	device.SetManualFences(true)
	a := NewBufferAllocator(device)

	rec := newCommandBufferRecording(device, a)
	require.True(t, rec.fence.IsSignaled())

	// Simulate a submitted frame whose fence has not come back.
	rec.fence.(*HeadlessFence).signaled.Store(false)
	assert.Panics(t, func() { rec.resetForReuse() })

	rec.fence.(*HeadlessFence).Signal()
	assert.NotPanics(t, func() { rec.resetForReuse() })
}

func TestRecordingUploadDynamicDataIsTracked(t *testing.T) {
	device := NewHeadlessDevice()
	a := NewBufferAllocator(device)
	rec := newCommandBufferRecording(device, a)

	rec.begin()
	payload := []byte{1, 2, 3, 4}
	slice := rec.UploadDynamicData(payload, wgpu.BufferUsageUniform)

	backing := slice.Buffer().(*HeadlessBuffer)
	assert.Equal(t, payload, backing.Bytes()[slice.Offset():slice.Offset()+4])
	assert.Equal(t, int32(1), slice.refs.Load())

	rec.end()
	rec.resetForReuse()
	assert.Equal(t, int32(0), slice.refs.Load())
}
