package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
)

// State is the lifecycle position of a Channel.
type State int32

// Channel states.
const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	// DefaultCompleteDelay keeps a finished bar on screen before closing.
	DefaultCompleteDelay = time.Second
	// DefaultErrorDelay keeps a failed bar on screen a little longer.
	DefaultErrorDelay = 2 * time.Second
)

var (
	// ErrAlreadyOpened is returned when Open is called twice or after Close.
	ErrAlreadyOpened = errors.New("progress channel already opened")
	// ErrClosed is returned when the channel was closed while dialing.
	ErrClosed = errors.New("progress channel closed")
)

var (
	pingPayload = []byte("ping")
	pongPayload = []byte("pong")
)

// Config controls dialing and timing. Zero values fall back to defaults.
type Config struct {
	// URL is the ws:// or wss:// endpoint for this session.
	URL           string
	CompleteDelay time.Duration
	ErrorDelay    time.Duration
	// PingInterval sends a "ping" text frame periodically; zero disables it.
	PingInterval time.Duration
	Dialer       Dialer
	// After schedules terminal delays; defaults to time.After.
	After   func(time.Duration) <-chan time.Time
	Logger  *zap.Logger
	Emitter activity.Emitter
}

// Callbacks are invoked from the channel's goroutines. Any may be nil.
type Callbacks struct {
	OnEvent       func(Event)
	OnComplete    func()
	OnError       func(message string)
	OnStateChange func(State)
}

// Channel is one push session. It is safe for concurrent use.
type Channel struct {
	token  string
	cfg    Config
	cb     Callbacks
	logger *zap.Logger

	state     atomic.Int32
	finishing atomic.Bool

	mu   sync.Mutex
	conn Conn
	last Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// New prepares a Channel for token. Nothing is dialed until Open.
func New(token string, cfg Config, cb Callbacks) (*Channel, error) {
	if token == "" {
		return nil, errors.New("session token is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("channel url is required")
	}
	if cfg.CompleteDelay <= 0 {
		cfg.CompleteDelay = DefaultCompleteDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Channel{
		token:  token,
		cfg:    cfg,
		cb:     cb,
		logger: cfg.Logger.Named("progress").With(zap.String("session", token)),
		done:   make(chan struct{}),
	}, nil
}

// Token returns the session token.
func (c *Channel) Token() string { return c.token }

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Visible reports whether progress should be shown.
func (c *Channel) Visible() bool { return c.State() == StateActive }

// Last returns the most recent accepted event.
func (c *Channel) Last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Done is closed once the channel reaches StateClosed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Open dials the channel and starts reading. Cancelling ctx later closes the
// channel immediately and drops any pending terminal callback.
func (c *Channel) Open(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyOpened
	}
	c.stateChanged(StateConnecting)

	conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		c.logger.Warn("progress channel dial failed", zap.Error(err))
		c.shutdown()
		return fmt.Errorf("open progress channel: %w", err)
	}

	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state.Store(int32(StateActive))
	c.mu.Unlock()

	c.stateChanged(StateActive)
	activity.Emit(c.cfg.Emitter, activity.Event{Kind: activity.KindChannelOpened, Session: c.token, URL: c.cfg.URL})

	go c.readLoop(conn)
	go c.watch(ctx)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn)
	}
	return nil
}

// Close releases the connection. It is idempotent and never fails.
func (c *Channel) Close() error {
	c.shutdown()
	return nil
}

func (c *Channel) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		c.shutdown()
	case <-c.done:
	}
}

func (c *Channel) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// During a terminal delay the pending callback still owns the close.
			if !c.finishing.Load() && c.shutdown() {
				c.logger.Debug("progress channel lost", zap.Error(err))
			}
			return
		}
		if bytes.Equal(bytes.TrimSpace(data), pongPayload) {
			continue
		}
		evt, err := ParseEvent(data)
		if err != nil {
			c.logger.Warn("dropping malformed progress payload", zap.Error(err), zap.ByteString("payload", data))
			continue
		}
		if c.finishing.Load() {
			continue
		}
		c.mu.Lock()
		if c.State() == StateClosed {
			c.mu.Unlock()
			return
		}
		c.last = evt
		c.mu.Unlock()

		activity.Emit(c.cfg.Emitter, activity.Event{
			Kind:     activity.KindProgressStage,
			Session:  c.token,
			Stage:    string(evt.Stage),
			Progress: evt.Progress,
			Note:     evt.Message,
		})
		if c.cb.OnEvent != nil {
			c.cb.OnEvent(evt)
		}
		if evt.Stage.Terminal() && c.finishing.CompareAndSwap(false, true) {
			go c.finish(evt)
		}
	}
}

func (c *Channel) finish(evt Event) {
	delay := c.cfg.CompleteDelay
	if evt.Stage == StageError {
		delay = c.cfg.ErrorDelay
	}
	select {
	case <-c.cfg.After(delay):
	case <-c.done:
		return
	}
	if !c.shutdown() {
		return
	}
	switch evt.Stage {
	case StageComplete:
		if c.cb.OnComplete != nil {
			c.cb.OnComplete()
		}
	case StageError:
		if c.cb.OnError != nil {
			c.cb.OnError(evt.Message)
		}
	}
}

func (c *Channel) pingLoop(conn Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, pingPayload)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("progress ping failed", zap.Error(err))
				return
			}
		}
	}
}

// shutdown moves to StateClosed exactly once and reports whether this call
// did it.
func (c *Channel) shutdown() bool {
	closed := false
	c.closeOnce.Do(func() {
		closed = true
		c.mu.Lock()
		c.state.Store(int32(StateClosed))
		conn := c.conn
		last := c.last
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			if err := conn.Close(); err != nil {
				c.logger.Debug("progress channel close", zap.Error(err))
			}
		}
		c.stateChanged(StateClosed)
		activity.Emit(c.cfg.Emitter, activity.Event{
			Kind:     activity.KindChannelClosed,
			Session:  c.token,
			Stage:    string(last.Stage),
			Progress: last.Progress,
		})
	})
	return closed
}

func (c *Channel) stateChanged(s State) {
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(s)
	}
}
