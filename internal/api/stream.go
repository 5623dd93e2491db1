package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pranav24547/Ai-Surveillance-System/internal/live"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// wsConn carries JPEG frames as binary messages and events as JSON text messages.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) WriteFrame(jpeg []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, jpeg)
}

func (c *wsConn) WriteEvent(event any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(event)
}

func (c *wsConn) ReadControl() (live.ControlMessage, error) {
	var msg live.ControlMessage
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// StreamHandler upgrades the request and keeps it registered as a viewer until it disconnects
// or sends {"action":"stop"}.
func (h *Handlers) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	// The greeting goes out before the viewer is registered so it is never interleaved with frames.
	ws := &wsConn{conn: conn, writeTimeout: h.WriteTimeout}
	if err := ws.WriteEvent(models.StreamEvent{Type: "connected", Message: "Stream starting"}); err != nil {
		h.log.Debug().Err(err).Msg("greet viewer")
		_ = conn.Close()
		return
	}

	viewer := h.hub.Connect(ws)
	h.log.Info().Str("viewer", viewer.ID).Str("remote", conn.RemoteAddr().String()).Msg("viewer connected")

	select {
	case <-viewer.Done():
	case <-r.Context().Done():
		h.hub.Disconnect(viewer)
	}
}
