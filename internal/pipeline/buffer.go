package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/pranav24547/Ai-Surveillance-System/internal/video"
)

const DefaultBufferSize = 10

var ErrBufferClosed = errors.New("pipeline: frame buffer closed")

// FrameBuffer is a bounded queue between the producer and the consumer. Push never blocks: when
// the buffer is full the oldest frame is dropped to admit the new one.
type FrameBuffer struct {
	mu       sync.Mutex
	frames   []video.Frame
	capacity int
	dropped  int64
	closed   bool

	notify chan struct{}
	done   chan struct{}
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &FrameBuffer{
		frames:   make([]video.Frame, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push adds a frame, evicting the oldest one if the buffer is full. It returns false once the
// buffer is closed.
func (b *FrameBuffer) Push(f video.Frame) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	if len(b.frames) == b.capacity {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.dropped++
	}
	b.frames = append(b.frames, f)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// PopLatest waits for a frame and returns the newest one. Older buffered frames are discarded.
func (b *FrameBuffer) PopLatest(ctx context.Context) (video.Frame, error) {
	return b.pop(ctx, func() video.Frame {
		f := b.frames[len(b.frames)-1]
		b.dropped += int64(len(b.frames) - 1)
		b.frames = b.frames[:0]
		return f
	})
}

// Pop waits for a frame and returns the oldest one.
func (b *FrameBuffer) Pop(ctx context.Context) (video.Frame, error) {
	return b.pop(ctx, func() video.Frame {
		f := b.frames[0]
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		return f
	})
}

func (b *FrameBuffer) pop(ctx context.Context, take func() video.Frame) (video.Frame, error) {
	for {
		b.mu.Lock()
		if len(b.frames) > 0 {
			f := take()
			b.mu.Unlock()
			return f, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return video.Frame{}, ErrBufferClosed
		}

		select {
		case <-ctx.Done():
			return video.Frame{}, ctx.Err()
		case <-b.done:
		case <-b.notify:
		}
	}
}

// Close wakes every waiter. Frames still buffered can be drained; afterwards Pop returns
// ErrBufferClosed.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped is the number of frames discarded without being consumed.
func (b *FrameBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *FrameBuffer) Cap() int {
	return b.capacity
}
