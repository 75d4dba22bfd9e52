package realtime

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestServeSSEStreamsFrames(t *testing.T) {
	b := NewBroadcaster(discardLogger(), WithHeartbeat(0))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" && sb.Len() == 0 {
				continue // blank separator lines between events
			}
			sb.WriteString(line)
			if line == "\n" {
				return sb.String()
			}
		}
	}

	assert.Equal(t, "event: connected\ndata: {}\n\n", readFrame())
	waitFor(t, func() bool { return b.Count() == 1 })

	b.Publish(EventOrderAssigned, OrderAssignedPayload{OrderID: "o1", MotoboyID: "m1", Status: "dispatched"})
	assert.Equal(t,
		"event: order_assigned\ndata: {\"orderId\":\"o1\",\"motoboyId\":\"m1\",\"status\":\"dispatched\"}\n\n",
		readFrame())

	resp.Body.Close()
	waitFor(t, func() bool { return b.Count() == 0 })
}

func TestServeWSStreamsFrames(t *testing.T) {
	b := NewBroadcaster(discardLogger(), WithHeartbeat(0))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "event: connected\ndata: {}\n\n", string(msg))
	waitFor(t, func() bool { return b.Count() == 1 })

	b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o9", Status: "pending"})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "event: order_created\ndata: {\"orderId\":\"o9\",\"status\":\"pending\"}\n\n", string(msg))

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return b.Count() == 0 })
}
