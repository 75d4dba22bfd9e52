package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/starfederation/datastar-go/datastar"
)

// ServeSSE holds the request open as a text/event-stream and forwards every
// published frame until the client goes away.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request) {
	// The stream is long-lived; lift any server write deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("X-Accel-Buffering", "no")

	sse := datastar.NewSSE(w, r)

	q := NewQueueChannel(b.buffer)
	id, err := b.Subscribe(q)
	if err != nil {
		b.log.Warn("sse subscribe failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer b.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-q.Done():
			return
		case f := <-q.Frames():
			if err := sse.Send(datastar.EventType(f.Event), []string{string(f.Data)}); err != nil {
				b.log.Debug("sse write failed", "subscriberID", id, "error", err)
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

// ServeWS is the WebSocket flavour of ServeSSE. Each text message carries
// one frame in the same "event:/data:" layout.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	q := NewQueueChannel(b.buffer)
	id, err := b.Subscribe(q)
	if err != nil {
		return
	}
	defer b.Unsubscribe(id)

	// Clients never send anything meaningful; reading only detects close.
	go func() {
		defer q.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-q.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case f := <-q.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, f.Bytes()); err != nil {
				b.log.Debug("ws write failed", "subscriberID", id, "error", err)
				return
			}
		}
	}
}
