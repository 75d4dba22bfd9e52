package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Channel that keeps what it was sent.
type recorder struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	fail   error
}

func (r *recorder) Send(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrChannelClosed
	}
	if r.fail != nil {
		return r.fail
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, f := range r.frames {
		names = append(names, f.Event)
	}
	return names
}

func TestFrameBytes(t *testing.T) {
	f, err := NewFrame(EventOrderStatusChanged, OrderStatusChangedPayload{
		OrderID: "o1", Status: "accepted", PreviousStatus: "pending",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"event: order_status_changed\ndata: {\"orderId\":\"o1\",\"status\":\"accepted\",\"previousStatus\":\"pending\"}\n\n",
		string(f.Bytes()))

	ack, err := NewFrame(EventConnected, nil)
	require.NoError(t, err)
	assert.Equal(t, "event: connected\ndata: {}\n\n", string(ack.Bytes()))
}

func TestSubscribeSendsConnectedAck(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	r := &recorder{}

	_, err := b.Subscribe(r)
	require.NoError(t, err)
	assert.Equal(t, []string{EventConnected}, r.events())
	assert.Equal(t, 1, b.Count())
}

func TestSubscribeRejectsClosedChannel(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	r := &recorder{closed: true}

	_, err := b.Subscribe(r)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, 0, b.Count())
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	assert.NotPanics(t, func() {
		b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o1", Status: "pending"})
	})
	assert.Equal(t, 0, b.Count())
}

func TestPublishRemovesDeadSubscriber(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	live := []*recorder{{}, {}, {}}
	dead := &recorder{}
	for _, r := range live[:2] {
		_, err := b.Subscribe(r)
		require.NoError(t, err)
	}
	_, err := b.Subscribe(dead)
	require.NoError(t, err)
	_, err = b.Subscribe(live[2])
	require.NoError(t, err)
	dead.Close()

	b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o1", Status: "pending"})

	assert.Equal(t, 3, b.Count())
	for _, r := range live {
		assert.Equal(t, []string{EventConnected, EventOrderCreated}, r.events())
	}
	assert.Equal(t, []string{EventConnected}, dead.events())

	b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o2", Status: "pending"})
	for _, r := range live {
		assert.Len(t, r.events(), 3)
	}
}

func TestPublishKeepsFullSubscriber(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	slow := &recorder{}
	_, err := b.Subscribe(slow)
	require.NoError(t, err)

	slow.fail = ErrChannelFull
	b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o1"})
	assert.Equal(t, 1, b.Count())

	slow.fail = nil
	b.Publish(EventOrderCreated, OrderCreatedPayload{OrderID: "o2"})
	assert.Equal(t, []string{EventConnected, EventOrderCreated}, slow.events())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	r := &recorder{}
	id, err := b.Subscribe(r)
	require.NoError(t, err)

	b.Unsubscribe(id)
	b.Unsubscribe(id)
	assert.Equal(t, 0, b.Count())
	assert.True(t, r.closed)
}

func TestRunEmitsHeartbeatAndClosesOnShutdown(t *testing.T) {
	b := NewBroadcaster(discardLogger(), WithHeartbeat(10*time.Millisecond))
	fixed := time.UnixMilli(1_700_000_000_000)
	b.now = func() time.Time { return fixed }

	q := NewQueueChannel(8)
	_, err := b.Subscribe(q)
	require.NoError(t, err)
	<-q.Frames() // connected

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	select {
	case f := <-q.Frames():
		assert.Equal(t, EventHeartbeat, f.Event)
		var hb HeartbeatPayload
		require.NoError(t, f.Decode(&hb))
		assert.Equal(t, fixed.UnixMilli(), hb.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}

	cancel()
	<-done
	assert.Equal(t, 0, b.Count())
	select {
	case <-q.Done():
	default:
		t.Fatal("channel not closed on shutdown")
	}
}

func TestQueueChannel(t *testing.T) {
	q := NewQueueChannel(1)
	f := Frame{Event: "x", Data: []byte("{}")}

	require.NoError(t, q.Send(f))
	assert.ErrorIs(t, q.Send(f), ErrChannelFull)

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Send(f), ErrChannelClosed)
}
