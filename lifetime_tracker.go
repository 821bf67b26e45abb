package kiln

// LifetimeTrackers accumulates a strong reference to every GPU object a
// command buffer recording touches. References are only dropped by Reset,
// which callers must not invoke before the recording's fence has signaled;
// that is the whole mechanism keeping objects alive while the GPU reads
// them.
type LifetimeTrackers struct {
	semaphores   []Semaphore
	fences       []Fence
	buffers      []*BufferSlice
	textures     []Texture
	textureViews []TextureView
	renderPasses []RenderPass
	framebuffers []Framebuffer
	samplers     []Sampler
	pipelines    []Pipeline
}

func NewLifetimeTrackers() *LifetimeTrackers {
	return &LifetimeTrackers{}
}

// Reset releases every held reference. Buffer slices go back to their
// slabs; everything else is simply let go of. Capacity is retained so a
// tracker can be reused without reallocation.
func (t *LifetimeTrackers) Reset() {
	for _, b := range t.buffers {
		b.Release()
	}
	t.semaphores = t.semaphores[:0]
	t.fences = t.fences[:0]
	t.buffers = t.buffers[:0]
	t.textures = t.textures[:0]
	t.textureViews = t.textureViews[:0]
	t.renderPasses = t.renderPasses[:0]
	t.framebuffers = t.framebuffers[:0]
	t.samplers = t.samplers[:0]
	t.pipelines = t.pipelines[:0]
}

func (t *LifetimeTrackers) TrackSemaphore(s Semaphore) {
	t.semaphores = append(t.semaphores, s)
}

func (t *LifetimeTrackers) TrackFence(f Fence) {
	t.fences = append(t.fences, f)
}

// TrackBuffer takes its own reference on the slice.
func (t *LifetimeTrackers) TrackBuffer(b *BufferSlice) {
	b.Retain()
	t.buffers = append(t.buffers, b)
}

// TrackOwnedBuffer adopts an already-held reference without retaining.
func (t *LifetimeTrackers) TrackOwnedBuffer(b *BufferSlice) {
	t.buffers = append(t.buffers, b)
}

func (t *LifetimeTrackers) TrackTexture(tex Texture) {
	t.textures = append(t.textures, tex)
}

func (t *LifetimeTrackers) TrackTextureView(v TextureView) {
	t.textureViews = append(t.textureViews, v)
}

func (t *LifetimeTrackers) TrackRenderPass(rp RenderPass) {
	t.renderPasses = append(t.renderPasses, rp)
}

func (t *LifetimeTrackers) TrackFramebuffer(fb Framebuffer) {
	t.framebuffers = append(t.framebuffers, fb)
}

func (t *LifetimeTrackers) TrackSampler(s Sampler) {
	t.samplers = append(t.samplers, s)
}

func (t *LifetimeTrackers) TrackPipeline(p Pipeline) {
	t.pipelines = append(t.pipelines, p)
}

func (t *LifetimeTrackers) IsEmpty() bool {
	return len(t.semaphores) == 0 &&
		len(t.fences) == 0 &&
		len(t.buffers) == 0 &&
		len(t.textures) == 0 &&
		len(t.textureViews) == 0 &&
		len(t.renderPasses) == 0 &&
		len(t.framebuffers) == 0 &&
		len(t.samplers) == 0 &&
		len(t.pipelines) == 0
}
