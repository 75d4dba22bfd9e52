package realtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	DefaultMaxReconnects = 10
	backoffBase          = time.Second
	backoffCap           = 30 * time.Second
	DefaultIdleTimeout   = 60 * time.Second
)

// Backoff returns min(1s * 2^attempt, 30s).
func Backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

type ClientOptions struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnEvent receives every frame, connected and heartbeat included.
	OnEvent func(Frame)
	// OnState is told about every state change.
	OnState func(State)

	MaxReconnects int
	// IdleTimeout drops a stream that delivered nothing, heartbeats
	// included, for this long. Defaults to twice the server heartbeat.
	IdleTimeout time.Duration

	PollIntervalConnected    time.Duration
	PollIntervalDisconnected time.Duration
}

type timer interface {
	Stop() bool
}

// Client keeps one subscription to the event stream alive, reconnecting with
// exponential backoff until MaxReconnects consecutive failures.
type Client struct {
	opts      ClientOptions
	afterFunc func(time.Duration, func()) timer

	mu        sync.Mutex
	state     State
	attempts  int
	exhausted bool
	closed    bool
	pending   timer
	cancel    context.CancelFunc
}

func NewClient(opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.PollIntervalConnected <= 0 {
		opts.PollIntervalConnected = 30 * time.Second
	}
	if opts.PollIntervalDisconnected <= 0 {
		opts.PollIntervalDisconnected = 5 * time.Second
	}
	return &Client{
		opts:  opts,
		state: StateDisconnected,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Start opens the first connection. It returns immediately.
func (c *Client) Start() {
	c.connect()
}

// Close tears the subscription down. Pending reconnects are cancelled and
// nothing fires afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exhausted reports that the reconnect ceiling was hit and the client gave up.
func (c *Client) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// PollInterval is how often a caller should refetch as a safety net: rarely
// while the stream is healthy, often while it is down.
func (c *Client) PollInterval() time.Duration {
	if c.State() == StateConnected {
		return c.opts.PollIntervalConnected
	}
	return c.opts.PollIntervalDisconnected
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	err := c.stream(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.opts.Logger.Warn("event stream dropped", "url", c.opts.URL, "error", err)
	}
	c.disconnected()
}

func (c *Client) stream(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A half-open connection never errors; the missing heartbeats give it away.
	var idle atomic.Bool
	watchdog := time.AfterFunc(c.opts.IdleTimeout, func() {
		idle.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return c.idleErr(&idle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	err = ReadFrames(resp.Body, func(f Frame) {
		watchdog.Reset(c.opts.IdleTimeout)
		if f.Event == EventConnected {
			c.connected()
		}
		if c.opts.OnEvent != nil && !c.isClosed() {
			c.opts.OnEvent(f)
		}
	})
	return c.idleErr(&idle, err)
}

func (c *Client) idleErr(idle *atomic.Bool, err error) error {
	if idle.Load() {
		return fmt.Errorf("no events for %s", c.opts.IdleTimeout)
	}
	return err
}

func (c *Client) connected() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.exhausted = false
	c.state = StateConnected
	c.mu.Unlock()

	c.notify(StateConnected)
}

func (c *Client) disconnected() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateDisconnected
	if c.attempts < c.opts.MaxReconnects {
		delay := Backoff(c.attempts)
		c.attempts++
		c.pending = c.afterFunc(delay, c.connect)
		c.opts.Logger.Info("reconnect scheduled", "delay", delay, "attempt", c.attempts)
	} else {
		c.exhausted = true
		c.opts.Logger.Warn("giving up on event stream", "attempts", c.attempts)
	}
	c.mu.Unlock()

	c.notify(StateDisconnected)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) notify(s State) {
	if c.opts.OnState != nil && !c.isClosed() {
		c.opts.OnState(s)
	}
}

// ReadFrames parses an event stream, calling fn for every complete frame.
// It returns nil on a clean EOF.
func ReadFrames(r io.Reader, fn func(Frame)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		event string
		data  []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				if event == "" {
					event = "message"
				}
				fn(Frame{Event: event, Data: []byte(strings.Join(data, "\n"))})
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
