package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/mediavid-client/internal/media"
)

func TestForwarderPublishesNotification(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "notifications")
	require.NoError(t, err)

	fwd, err := New(topic, nil)
	require.NoError(t, err)

	n := media.Notification{
		Level:   media.LevelSuccess,
		Message: "download started automatically",
		ItemID:  "item-1",
		TS:      time.Unix(1700000000, 0).UTC(),
	}
	fwd.Notify(ctx, n)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, fwd.Close(closeCtx))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "success", msgs[0].Attributes["level"])
	require.Equal(t, "item-1", msgs[0].Attributes["item_id"])

	var got media.Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, n, got)
}

func TestNewRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.Error(t, err)
}
