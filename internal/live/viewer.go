package live

import (
	"sync"
	"sync/atomic"
)

type message struct {
	frame []byte
	event any
}

// Viewer is one connected client. It is served by two goroutines: one drains the send queue, the
// other reads control messages. They share the stop flag and the done channel.
type Viewer struct {
	ID string

	conn    Conn
	hub     *Hub
	send    chan message
	done    chan struct{}
	once    sync.Once
	stop    atomic.Bool
	dropped atomic.Int64
}

// Done is closed once the viewer is disconnected.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// Stopped reports whether the viewer asked to stop streaming.
func (v *Viewer) Stopped() bool {
	return v.stop.Load()
}

// Dropped is the number of frames skipped because the viewer was too slow.
func (v *Viewer) Dropped() int64 {
	return v.dropped.Load()
}

func (v *Viewer) writeLoop() {
	for {
		select {
		case <-v.done:
			return
		case msg := <-v.send:
			if v.stop.Load() {
				continue
			}

			var err error
			if msg.frame != nil {
				err = v.conn.WriteFrame(msg.frame)
			} else {
				err = v.conn.WriteEvent(msg.event)
			}
			if err != nil {
				v.hub.log.Debug().Err(err).Str("viewer", v.ID).Msg("write to viewer failed")
				v.hub.Disconnect(v)
				return
			}
		}
	}
}

func (v *Viewer) readLoop() {
	for {
		msg, err := v.conn.ReadControl()
		if err != nil {
			v.hub.Disconnect(v)
			return
		}
		if msg.Action == ActionStop {
			v.stop.Store(true)
			v.hub.Disconnect(v)
			return
		}
	}
}
