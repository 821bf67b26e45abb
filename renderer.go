package kiln

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// WindowStateKind mirrors what the windowing layer reports about the
// native window. The render thread reacts to it once per frame.
type WindowStateKind uint8

const (
	WindowVisible WindowStateKind = iota
	WindowMinimized
	WindowFullScreen
	WindowExited
)

type WindowState struct {
	Kind   WindowStateKind
	Width  uint32
	Height uint32

	// Non-nil when the native surface itself changed, e.g. on a
	// fullscreen toggle; the swapchain is then recreated on it.
	Surface Surface
}

// RendererOptions configures a renderer at startup. Zero values fall
// back to defaults.
type RendererOptions struct {
	// Simulation tick rate in Hz; interpolation fractions are derived
	// from it. Defaults to 20.
	TickRate uint32

	// Frames the simulation may run ahead before IsSaturated reports
	// true. Defaults to 2.
	SaturationThreshold int32

	Logger Logger
}

// Renderer is the simulation-facing frontend. All methods except Stop
// are safe to call from any simulation thread; they enqueue commands
// consumed by the render goroutine in FIFO order.
type Renderer struct {
	queue        *commandQueue
	queuedFrames atomic.Int32
	saturation   int32
	running      atomic.Bool
	logger       Logger

	windowMu    sync.Mutex
	windowState WindowState

	internal *rendererInternal
	done     chan struct{}
}

// StartRenderer spawns the render goroutine and returns the frontend.
// The swapchain's initial extent doubles as the initial window state.
func StartRenderer(device Device, swapchain Swapchain, assets *RendererAssets, opts RendererOptions) *Renderer {
	if opts.TickRate == 0 {
		opts.TickRate = 20
	}
	if opts.SaturationThreshold == 0 {
		opts.SaturationThreshold = 2
	}
	if opts.Logger == nil {
		opts.Logger = NewDefaultLogger("kiln", false)
	}

	r := &Renderer{
		queue:      newCommandQueue(),
		saturation: opts.SaturationThreshold,
		logger:     opts.Logger,
		windowState: WindowState{
			Kind:   WindowVisible,
			Width:  swapchain.Width(),
			Height: swapchain.Height(),
		},
		done: make(chan struct{}),
	}
	r.running.Store(true)
	r.internal = newRendererInternal(r, device, swapchain, assets, opts)

	go func() {
		defer close(r.done)
		for r.running.Load() {
			r.internal.render()
		}
		r.queue.close()
		r.internal.shutdown()
	}()
	return r
}

func (r *Renderer) RegisterStatic(entity EntityId, modelPath string, transform mgl32.Mat4, receiveShadows, castShadows, canMove bool) {
	r.queue.send(rendererCommand{
		kind:           cmdRegisterStatic,
		entity:         entity,
		modelPath:      modelPath,
		transform:      transform,
		receiveShadows: receiveShadows,
		castShadows:    castShadows,
		canMove:        canMove,
	})
}

func (r *Renderer) UnregisterStatic(entity EntityId) {
	r.queue.send(rendererCommand{kind: cmdUnregisterStatic, entity: entity})
}

func (r *Renderer) RegisterPointLight(entity EntityId, transform mgl32.Mat4, intensity float32) {
	r.queue.send(rendererCommand{
		kind:      cmdRegisterPointLight,
		entity:    entity,
		transform: transform,
		intensity: intensity,
	})
}

func (r *Renderer) UnregisterPointLight(entity EntityId) {
	r.queue.send(rendererCommand{kind: cmdUnregisterPointLight, entity: entity})
}

func (r *Renderer) UpdateCameraTransform(transform mgl32.Mat4, fov float32) {
	r.queue.send(rendererCommand{kind: cmdUpdateCameraTransform, transform: transform, fov: fov})
}

func (r *Renderer) UpdateTransform(entity EntityId, transform mgl32.Mat4) {
	r.queue.send(rendererCommand{kind: cmdUpdateTransform, entity: entity, transform: transform})
}

// EndFrame marks a simulation tick boundary. The queued-frame counter
// goes up before the command is visible, so IsSaturated can never
// under-report pending ticks.
func (r *Renderer) EndFrame() {
	r.queuedFrames.Add(1)
	r.queue.send(rendererCommand{kind: cmdEndFrame})
}

// IsSaturated reports whether the simulation has run further ahead of
// presentation than the configured threshold allows.
func (r *Renderer) IsSaturated() bool {
	return r.queuedFrames.Load() > r.saturation
}

// WaitUntilNotSaturated spins the calling simulation thread until the
// render thread catches up, yielding first and backing off to short
// sleeps so a stalled renderer does not burn a core.
func (r *Renderer) WaitUntilNotSaturated() {
	spins := 0
	for r.IsSaturated() && r.running.Load() {
		spins++
		if spins > 1024 {
			time.Sleep(time.Millisecond)
		} else if spins > 128 {
			runtime.Gosched()
		}
	}
}

func (r *Renderer) IsRunning() bool {
	return r.running.Load()
}

// Stop shuts the render goroutine down and blocks until it exits.
// Commands sent after Stop panic.
func (r *Renderer) Stop() {
	r.running.Store(false)
	<-r.done
}

// SetWindowState hands the latest window geometry to the render thread.
// It is picked up at the start of the next frame.
func (r *Renderer) SetWindowState(state WindowState) {
	r.windowMu.Lock()
	r.windowState = state
	r.windowMu.Unlock()
}

// clearPendingSurface marks a handed-over surface as consumed so the
// next frame does not recreate the swapchain again.
func (r *Renderer) clearPendingSurface() {
	r.windowMu.Lock()
	r.windowState.Surface = nil
	r.windowMu.Unlock()
}

func (r *Renderer) currentWindowState() WindowState {
	r.windowMu.Lock()
	defer r.windowMu.Unlock()
	return r.windowState
}
