// Package live fans encoded frames and detection events out to connected viewers.
package live

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
)

const DefaultQueueSize = 16

// ActionStop asks the server to end the viewer's stream.
const ActionStop = "stop"

type ControlMessage struct {
	Action string `json:"action"`
}

// Conn is a duplex viewer connection. WriteFrame and WriteEvent are only called from one
// goroutine; ReadControl only from another.
type Conn interface {
	WriteFrame(jpeg []byte) error
	WriteEvent(event any) error
	ReadControl() (ControlMessage, error)
	Close() error
}

// Hub maintains the set of active viewers and broadcasts to them.
type Hub struct {
	mu        sync.RWMutex
	viewers   map[string]*Viewer
	queueSize int
	onChange  func(viewers int)
	log       zerolog.Logger
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		viewers:   make(map[string]*Viewer),
		queueSize: queueSize,
		log:       logger.Component("live"),
	}
}

// OnChange registers a callback invoked with the viewer count after every connect and disconnect.
func (h *Hub) OnChange(fn func(viewers int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Connect registers conn and starts its send and control loops.
func (h *Hub) Connect(conn Conn) *Viewer {
	v := &Viewer{
		ID:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan message, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.viewers[v.ID] = v
	count := len(h.viewers)
	onChange := h.onChange
	h.mu.Unlock()

	go v.writeLoop()
	go v.readLoop()

	h.log.Info().Str("viewer", v.ID).Int("viewers", count).Msg("viewer connected")
	if onChange != nil {
		onChange(count)
	}
	return v
}

// Disconnect removes v and closes its connection. Calling it more than once is harmless.
func (h *Hub) Disconnect(v *Viewer) {
	removed := false
	v.once.Do(func() {
		h.mu.Lock()
		delete(h.viewers, v.ID)
		close(v.done)
		removed = true
		h.mu.Unlock()

		if err := v.conn.Close(); err != nil {
			h.log.Debug().Err(err).Str("viewer", v.ID).Msg("close viewer connection")
		}
	})
	if !removed {
		return
	}

	h.mu.RLock()
	count := len(h.viewers)
	onChange := h.onChange
	h.mu.RUnlock()

	h.log.Info().Str("viewer", v.ID).Int("viewers", count).Bool("stop_requested", v.Stopped()).Msg("viewer disconnected")
	if onChange != nil {
		onChange(count)
	}
}

// BroadcastFrame queues an encoded frame for every viewer. A viewer that is not keeping up misses
// the frame.
func (h *Hub) BroadcastFrame(jpeg []byte) {
	for _, v := range h.snapshot() {
		select {
		case v.send <- message{frame: jpeg}:
		case <-v.done:
		default:
			v.dropped.Add(1)
		}
	}
}

// BroadcastEvent queues a structured event for every viewer. Events are not dropped: a viewer
// whose queue is full is disconnected.
func (h *Hub) BroadcastEvent(event any) {
	for _, v := range h.snapshot() {
		select {
		case v.send <- message{event: event}:
		case <-v.done:
		default:
			h.log.Warn().Str("viewer", v.ID).Msg("viewer queue full, disconnecting")
			h.Disconnect(v)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	for _, v := range h.snapshot() {
		h.Disconnect(v)
	}
}

func (h *Hub) snapshot() []*Viewer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}
