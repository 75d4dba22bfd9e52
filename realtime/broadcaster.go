package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel buffer full")
)

// Channel is one connected subscriber. Send must not block: it either
// accepts the frame, reports ErrChannelFull, or reports ErrChannelClosed.
type Channel interface {
	Send(f Frame) error
	Close()
}

type SubscriberID uint64

// Broadcaster fans lifecycle events out to every registered channel. There
// is no persistence or replay; a subscriber only sees frames published while
// it is registered.
type Broadcaster struct {
	log       *slog.Logger
	heartbeat time.Duration
	buffer    int
	now       func() time.Time

	mu   sync.Mutex
	subs map[SubscriberID]Channel
	next SubscriberID
}

type Option func(*Broadcaster)

// WithHeartbeat sets the interval of the heartbeat event; zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broadcaster) { b.heartbeat = d }
}

// WithBuffer sets the per-subscriber queue size used by the transports.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func NewBroadcaster(log *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		log:       log,
		heartbeat: 30 * time.Second,
		buffer:    16,
		now:       time.Now,
		subs:      make(map[SubscriberID]Channel),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe sends the connected acknowledgment on ch and registers it. A
// channel that cannot take the acknowledgment is closed and not registered.
func (b *Broadcaster) Subscribe(ch Channel) (SubscriberID, error) {
	ack, _ := NewFrame(EventConnected, nil)
	if err := ch.Send(ack); err != nil {
		ch.Close()
		return 0, err
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()

	b.log.Debug("subscriber added", "subscriberID", id, "subscribers", n)
	return id, nil
}

// Unsubscribe removes and closes the channel. Unknown ids are ignored, so
// it is safe to call from both the transport and the publisher.
func (b *Broadcaster) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	ch.Close()
	b.log.Debug("subscriber removed", "subscriberID", id, "subscribers", n)
}

// Publish writes one frame to every registered channel. Closed channels are
// dropped from the registry; a full channel loses only this frame.
func (b *Broadcaster) Publish(event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		b.log.Error("failed to encode event", "event", event, "error", err)
		return
	}
	b.publishFrame(frame)
}

func (b *Broadcaster) publishFrame(frame Frame) {
	type target struct {
		id SubscriberID
		ch Channel
	}

	b.mu.Lock()
	targets := make([]target, 0, len(b.subs))
	for id, ch := range b.subs {
		targets = append(targets, target{id: id, ch: ch})
	}
	b.mu.Unlock()

	for _, t := range targets {
		err := t.ch.Send(frame)
		switch {
		case err == nil:
		case errors.Is(err, ErrChannelFull):
			b.log.Warn("dropped event for slow subscriber", "event", frame.Event, "subscriberID", t.id)
		default:
			b.Unsubscribe(t.id)
		}
	}
}

// Count returns the number of registered channels.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Run emits heartbeats until ctx is done, then closes every channel.
func (b *Broadcaster) Run(ctx context.Context) {
	defer b.closeAll()
	if b.heartbeat <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(EventHeartbeat, HeartbeatPayload{Timestamp: b.now().UnixMilli()})
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[SubscriberID]Channel)
	b.mu.Unlock()

	for _, ch := range subs {
		ch.Close()
	}
}

// QueueChannel buffers frames for a transport goroutine to write out.
type QueueChannel struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

func NewQueueChannel(buffer int) *QueueChannel {
	return &QueueChannel{
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
	}
}

func (q *QueueChannel) Send(f Frame) error {
	select {
	case <-q.done:
		return ErrChannelClosed
	default:
	}
	select {
	case q.frames <- f:
		return nil
	default:
		return ErrChannelFull
	}
}

func (q *QueueChannel) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *QueueChannel) Frames() <-chan Frame {
	return q.frames
}

func (q *QueueChannel) Done() <-chan struct{} {
	return q.done
}
