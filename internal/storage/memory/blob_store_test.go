package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mediavid-client/internal/store"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	blobs := NewBlobStore()
	payload := []byte("content")
	uri, err := blobs.PutObject(context.Background(), "item-1/clip.mp4", "video/mp4", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://item-1/clip.mp4", uri)

	payload[0] = 'C'
	stored, contentType, ok := blobs.Object("item-1/clip.mp4")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "video/mp4", contentType)
	require.Equal(t, []string{"item-1/clip.mp4"}, blobs.Paths())

	_, err = blobs.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestHistoryStoreListRecent(t *testing.T) {
	t.Parallel()

	history := NewHistoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, history.RecordDownload(ctx, store.HistoryRecord{ItemID: id, Outcome: store.OutcomeTriggered}))
	}
	require.Error(t, history.RecordDownload(ctx, store.HistoryRecord{}))

	recent, err := history.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "c", recent[0].ItemID)
	require.Equal(t, int64(3), recent[0].ID)
	require.Equal(t, "b", recent[1].ItemID)

	all, err := history.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
