package transfer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/policy/ratelimit"
	"github.com/JakeFAU/mediavid-client/internal/storage/memory"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{URL: "u1"}))
	require.False(t, q.TryEnqueue(Job{URL: "u2"}))
	require.Equal(t, 1, q.Len())

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "u1", job.URL)
}

// TestQueueContextAndClose checks cancellation and post-close behavior.
func TestQueueContextAndClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, q.Enqueue(ctx, Job{}), context.Canceled)

	q.Close()
	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), Job{}), ErrQueueClosed)
	require.False(t, q.TryEnqueue(Job{}))
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
}

// TestSaveDownloadWritesUnderDir derives the filename and counts bytes.
func TestSaveDownloadWritesUnderDir(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	body := &trackingBody{Reader: strings.NewReader("0123456789")}
	res, err := SaveDownload(context.Background(), store, "/downloads/item-1/", &media.Download{
		Body:        body,
		ContentType: "video/webm",
	})
	require.NoError(t, err)
	assert.Equal(t, "video.webm", res.Filename)
	assert.Equal(t, int64(10), res.Bytes)
	assert.Equal(t, "memory://downloads/item-1/video.webm", res.Location)
	assert.Equal(t, "84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882", res.SHA256)
	assert.True(t, body.closed)

	data, contentType, ok := store.Object("downloads/item-1/video.webm")
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(data))
	assert.Equal(t, "video/webm", contentType)
}

func TestSaveDownloadRequiresInputs(t *testing.T) {
	t.Parallel()

	_, err := SaveDownload(context.Background(), nil, "", &media.Download{Body: io.NopCloser(strings.NewReader(""))})
	require.Error(t, err)
	_, err = SaveDownload(context.Background(), memory.NewBlobStore(), "", nil)
	require.Error(t, err)
}

// TestPoolTransfersTriggeredItems runs the full trigger to storage path.
func TestPoolTransfersTriggeredItems(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://backend/a": "aaa",
		"http://backend/b": "bbbb",
	}}
	emitter := &recordingEmitter{}
	pool, err := NewPool(Config{
		Workers:   2,
		QueueSize: 1,
		Prefix:    "media",
		Fetcher:   fetcher,
		Store:     store,
		Emitter:   emitter,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Trigger(ctx, media.BatchItem{ID: "a"}, "http://backend/a")
	pool.Trigger(ctx, media.BatchItem{ID: "b"}, "http://backend/b")

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(store.Paths()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}

	require.Equal(t, []string{"media/a/clip.mp4", "media/b/clip.mp4"}, store.Paths())
	kinds := emitter.Kinds()
	require.Len(t, kinds, 2)
	for _, k := range kinds {
		require.Equal(t, activity.KindTransferDone, k)
	}
}

// TestWorkerFailureNotifies covers a download that cannot be opened.
func TestWorkerFailureNotifies(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	var notes []media.Notification
	pool, err := NewPool(Config{
		Fetcher: &fakeFetcher{err: errors.New("connection reset")},
		Store:   memory.NewBlobStore(),
		Emitter: emitter,
		Notifier: media.NotifierFunc(func(_ context.Context, n media.Notification) {
			notes = append(notes, n)
		}),
	})
	require.NoError(t, err)

	_, err = pool.workers[0].Process(context.Background(), Job{Item: media.BatchItem{ID: "x"}, URL: "http://backend/x"})
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, []activity.Kind{activity.KindTransferFailed}, emitter.Kinds())
	require.Len(t, notes, 1)
	assert.Equal(t, media.LevelError, notes[0].Level)
	assert.Equal(t, "x", notes[0].ItemID)
	assert.Contains(t, notes[0].Message, "connection reset")
}

// TestWorkerWaitsForLimiter checks a throttled transfer gives up with its context.
func TestWorkerWaitsForLimiter(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	emitter := &recordingEmitter{}
	pool, err := NewPool(Config{
		Workers: 1,
		Fetcher: &fakeFetcher{bodies: map[string]string{"http://backend/a": "a", "http://backend/b": "b"}},
		Store:   store,
		Limiter: ratelimit.New(ratelimit.Config{PerSecond: 0.001, Burst: 1}),
		Emitter: emitter,
	})
	require.NoError(t, err)

	_, err = pool.workers[0].Process(context.Background(), Job{Item: media.BatchItem{ID: "a"}, URL: "http://backend/a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.workers[0].Process(ctx, Job{Item: media.BatchItem{ID: "b"}, URL: "http://backend/b"})
	require.Error(t, err)
	assert.Equal(t, []string{"a/clip.mp4"}, store.Paths())
	assert.Equal(t, []activity.Kind{activity.KindTransferDone, activity.KindTransferFailed}, emitter.Kinds())
}

func TestNewPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPool(Config{Store: memory.NewBlobStore()})
	require.Error(t, err)
	_, err = NewPool(Config{Fetcher: &fakeFetcher{}})
	require.Error(t, err)
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type fakeFetcher struct {
	bodies map[string]string
	err    error
}

func (f *fakeFetcher) OpenDownload(_ context.Context, rawURL string) (*media.Download, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.Download{
		Body:        io.NopCloser(strings.NewReader(f.bodies[rawURL])),
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
	}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *recordingEmitter) Emit(evt activity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Kinds() []activity.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
