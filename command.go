package kiln

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Renderer commands are the only traffic between the simulation thread
// and the render thread. They are consumed exactly once, in FIFO order.

type commandKind uint8

const (
	cmdRegisterStatic commandKind = iota
	cmdUnregisterStatic
	cmdRegisterPointLight
	cmdUnregisterPointLight
	cmdUpdateCameraTransform
	cmdUpdateTransform
	cmdEndFrame
)

type rendererCommand struct {
	kind      commandKind
	entity    EntityId
	transform mgl32.Mat4
	fov       float32
	intensity float32
	modelPath string

	receiveShadows bool
	castShadows    bool
	canMove        bool
}

// commandQueue is an unbounded multi-producer single-consumer queue.
// Producers never block; the consumer polls with tryRecv. Sending after
// close means the render thread is gone, which is not a recoverable
// condition for a producer.
type commandQueue struct {
	mu     sync.Mutex
	items  []rendererCommand
	head   int
	closed bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{}
}

func (q *commandQueue) send(cmd rendererCommand) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("sending message to render thread failed: channel closed")
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

func (q *commandQueue) tryRecv() (rendererCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		// Drained; rewind so the backing array gets reused.
		q.items = q.items[:0]
		q.head = 0
		return rendererCommand{}, false
	}
	cmd := q.items[q.head]
	q.head++
	return cmd, true
}

func (q *commandQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *commandQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
