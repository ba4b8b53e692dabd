package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "client_1700000000000_abcdef012345"

// TestChannelCompleteFiresOnceAfterDelay covers the complete stage and a duplicate message.
func TestChannelCompleteFiresOnceAfterDelay(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	after := &manualAfter{}
	var completes atomic.Int32
	ch := newTestChannel(t, conn, after, Callbacks{
		OnComplete: func() { completes.Add(1) },
		OnError:    func(string) { t.Error("unexpected error callback") },
	})

	require.NoError(t, ch.Open(context.Background()))
	require.True(t, ch.Visible())

	conn.push(`{"stage":"complete","progress":100}`)
	require.Eventually(t, func() bool { return len(after.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, DefaultCompleteDelay, after.Calls()[0])
	assert.Equal(t, int32(0), completes.Load())
	assert.Equal(t, StateActive, ch.State())

	conn.push(`{"stage":"complete","progress":100}`)
	after.Fire(0)

	require.Eventually(t, func() bool { return completes.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StateClosed, ch.State())
	require.False(t, ch.Visible())
	require.Len(t, after.Calls(), 1)
	require.True(t, conn.Closed())
	require.Equal(t, float64(100), ch.Last().Progress)
}

// TestChannelErrorWaitsForLongerDelay ensures the error callback never fires early.
func TestChannelErrorWaitsForLongerDelay(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	after := &manualAfter{}
	messages := make(chan string, 1)
	ch := newTestChannel(t, conn, after, Callbacks{
		OnError:    func(msg string) { messages <- msg },
		OnComplete: func() { t.Error("unexpected complete callback") },
	})
	require.NoError(t, ch.Open(context.Background()))

	conn.push(`{"stage":"error","progress":10,"message":"X"}`)
	require.Eventually(t, func() bool { return len(after.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, DefaultErrorDelay, after.Calls()[0])

	select {
	case msg := <-messages:
		t.Fatalf("error callback fired before delay: %q", msg)
	case <-time.After(20 * time.Millisecond):
	}

	after.Fire(0)
	select {
	case msg := <-messages:
		require.Equal(t, "X", msg)
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}
	require.Equal(t, StateClosed, ch.State())
}

// TestChannelDialFailureClosesWithoutCallbacks covers a refused connection.
func TestChannelDialFailureClosesWithoutCallbacks(t *testing.T) {
	t.Parallel()

	var states []State
	var mu sync.Mutex
	ch, err := New(testToken, Config{
		URL:    "ws://example.invalid",
		Dialer: dialerFunc(func(context.Context, string) (Conn, error) { return nil, errors.New("refused") }),
	}, Callbacks{
		OnComplete: func() { t.Error("unexpected complete") },
		OnError:    func(string) { t.Error("unexpected error") },
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	err = ch.Open(context.Background())
	require.ErrorContains(t, err, "refused")
	require.Equal(t, StateClosed, ch.State())
	mu.Lock()
	require.Equal(t, []State{StateConnecting, StateClosed}, states)
	mu.Unlock()

	require.ErrorIs(t, ch.Open(context.Background()), ErrAlreadyOpened)
}

// TestChannelTransportFailureHidesWithoutCallbacks covers a dropped socket while active.
func TestChannelTransportFailureHidesWithoutCallbacks(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	after := &manualAfter{}
	ch := newTestChannel(t, conn, after, Callbacks{
		OnComplete: func() { t.Error("unexpected complete") },
		OnError:    func(string) { t.Error("unexpected error") },
	})
	require.NoError(t, ch.Open(context.Background()))

	conn.push(`{"stage":"downloading","progress":40}`)
	require.Eventually(t, func() bool { return ch.Last().Stage == StageDownloading }, time.Second, time.Millisecond)

	conn.fail()
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not close after transport failure")
	}
	require.False(t, ch.Visible())
	require.Empty(t, after.Calls())
}

// TestChannelTransportFailureDuringDelayKeepsCallback ensures a pending completion survives a drop.
func TestChannelTransportFailureDuringDelayKeepsCallback(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	after := &manualAfter{}
	var completes atomic.Int32
	ch := newTestChannel(t, conn, after, Callbacks{OnComplete: func() { completes.Add(1) }})
	require.NoError(t, ch.Open(context.Background()))

	conn.push(`{"stage":"complete","progress":100}`)
	require.Eventually(t, func() bool { return len(after.Calls()) == 1 }, time.Second, time.Millisecond)
	conn.fail()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, StateActive, ch.State())

	after.Fire(0)
	require.Eventually(t, func() bool { return completes.Load() == 1 }, time.Second, time.Millisecond)
}

// TestChannelIgnoresPongAndMalformed drops junk without changing state.
func TestChannelIgnoresPongAndMalformed(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	var events []Event
	var mu sync.Mutex
	ch := newTestChannel(t, conn, &manualAfter{}, Callbacks{OnEvent: func(evt Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	}})
	require.NoError(t, ch.Open(context.Background()))

	conn.push("pong")
	conn.push("{not json")
	conn.push(`{"progress":5}`)
	conn.push(`{"stage":"starting","progress":0,"message":null}`)
	conn.push(`{"stage":"downloading","progress":140}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	require.Equal(t, StageStarting, events[0].Stage)
	require.Equal(t, float64(100), events[1].Progress)
	mu.Unlock()
	require.Equal(t, StateActive, ch.State())
	require.NoError(t, ch.Close())
}

// TestChannelContextCancelDropsPendingCallback covers unmounting during the delay.
func TestChannelContextCancelDropsPendingCallback(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	after := &manualAfter{}
	ch := newTestChannel(t, conn, after, Callbacks{OnComplete: func() { t.Error("unexpected complete") }})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ch.Open(ctx))

	conn.push(`{"stage":"complete","progress":100}`)
	require.Eventually(t, func() bool { return len(after.Calls()) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel did not close on cancel")
	}
	after.Fire(0)
	time.Sleep(10 * time.Millisecond)
	require.True(t, conn.Closed())
}

// TestChannelDropsFramesReadAfterClose covers a frame that was in flight when
// the channel closed.
func TestChannelDropsFramesReadAfterClose(t *testing.T) {
	t.Parallel()

	conn := &stickyConn{in: make(chan []byte, 1)}
	var events atomic.Int32
	ch, err := New(testToken, Config{
		URL:    "ws://backend.test/ws/progress/" + testToken,
		Dialer: dialerFunc(func(context.Context, string) (Conn, error) { return conn, nil }),
		After:  (&manualAfter{}).After,
	}, Callbacks{OnEvent: func(Event) { events.Add(1) }})
	require.NoError(t, err)
	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Close())

	conn.in <- []byte(`{"stage":"downloading","progress":40}`)
	require.Eventually(t, func() bool { return len(conn.in) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(conn.in)

	assert.Equal(t, int32(0), events.Load())
	assert.Equal(t, Event{}, ch.Last())
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	ch := newTestChannel(t, conn, &manualAfter{}, Callbacks{})
	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	require.Equal(t, StateClosed, ch.State())
	require.Equal(t, 1, conn.CloseCalls())
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New("", Config{URL: "ws://x"}, Callbacks{})
	require.Error(t, err)
	_, err = New(testToken, Config{}, Callbacks{})
	require.Error(t, err)
}

// TestChannelOverWebsocket runs against a real gorilla server.
func TestChannelOverWebsocket(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	var gotPath atomic.Value
	var gotPing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"starting","progress":0}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"downloading","progress":50}`))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			gotPing.Store(true)
			_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"complete","progress":100}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	completed := make(chan struct{})
	var stages []Stage
	var mu sync.Mutex
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress/" + testToken
	ch, err := New(testToken, Config{
		URL:           url,
		CompleteDelay: 5 * time.Millisecond,
		PingInterval:  5 * time.Millisecond,
	}, Callbacks{
		OnEvent: func(evt Event) {
			mu.Lock()
			stages = append(stages, evt.Stage)
			mu.Unlock()
		},
		OnComplete: func() { close(completed) },
	})
	require.NoError(t, err)
	require.NoError(t, ch.Open(context.Background()))

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never completed")
	}
	require.Equal(t, "/ws/progress/"+testToken, gotPath.Load())
	require.True(t, gotPing.Load())
	mu.Lock()
	require.Equal(t, []Stage{StageStarting, StageDownloading, StageComplete}, stages)
	mu.Unlock()
	require.Equal(t, StateClosed, ch.State())
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	evt, err := ParseEvent([]byte(`{"stage":"downloading","progress":-3,"message":"go"}`))
	require.NoError(t, err)
	require.Equal(t, Event{Stage: StageDownloading, Progress: 0, Message: "go"}, evt)

	_, err = ParseEvent([]byte(`{"progress":1}`))
	require.Error(t, err)
	_, err = ParseEvent([]byte(`{"stage":"paused"}`))
	require.Error(t, err)
	require.True(t, StageError.Terminal())
	require.False(t, StageStarting.Terminal())
}

func newTestChannel(t *testing.T, conn *fakeConn, after *manualAfter, cb Callbacks) *Channel {
	t.Helper()
	ch, err := New(testToken, Config{
		URL:    "ws://backend.test/ws/progress/" + testToken,
		Dialer: dialerFunc(func(context.Context, string) (Conn, error) { return conn, nil }),
		After:  after.After,
	}, cb)
	require.NoError(t, err)
	return ch
}

type dialerFunc func(ctx context.Context, url string) (Conn, error)

func (f dialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

type fakeConn struct {
	in         chan []byte
	closed     chan struct{}
	once       sync.Once
	closeCalls atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) push(msg string) { f.in <- []byte(msg) }

func (f *fakeConn) fail() { f.once.Do(func() { close(f.closed) }) }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	default:
	}
	select {
	case msg := <-f.in:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }

func (f *fakeConn) Close() error {
	f.closeCalls.Add(1)
	f.fail()
	return nil
}

func (f *fakeConn) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) CloseCalls() int { return int(f.closeCalls.Load()) }

type manualAfter struct {
	mu     sync.Mutex
	delays []time.Duration
	chans  []chan time.Time
}

func (m *manualAfter) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.delays = append(m.delays, d)
	m.chans = append(m.chans, ch)
	return ch
}

func (m *manualAfter) Calls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func (m *manualAfter) Fire(i int) {
	m.mu.Lock()
	ch := m.chans[i]
	m.mu.Unlock()
	ch <- time.Now()
}

// stickyConn keeps delivering frames after Close.
type stickyConn struct {
	in chan []byte
}

func (c *stickyConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, msg, nil
}

func (c *stickyConn) WriteMessage(int, []byte) error { return nil }

func (c *stickyConn) Close() error { return nil }
