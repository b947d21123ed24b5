// Package pubsub_test contains unit tests for the Pub/Sub publisher.
package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/igboarchives/harvester/internal/notify"
	notifypubsub "github.com/igboarchives/harvester/internal/notify/pubsub"
)

func fakeServerOptions(t *testing.T) []option.ClientOption {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return []option.ClientOption{option.WithGRPCConn(conn)}
}

func TestDialAndPublish(t *testing.T) {
	ctx := context.Background()
	opts := fakeServerOptions(t)

	admin, err := pubsub.NewClient(ctx, "project-id", opts...)
	require.NoError(t, err)
	topic, err := admin.CreateTopic(ctx, "harvests")
	require.NoError(t, err)
	sub, err := admin.CreateSubscription(ctx, "harvests-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher, err := notifypubsub.Dial(ctx, "project-id", "harvests", opts...)
	require.NoError(t, err)

	notice := notify.Notice{RunID: "run-1", SourceID: "gijones", Destination: "gs://b/gijones", Records: 3, Images: 3}
	id, err := publisher.Publish(ctx, "harvests", notice)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, publisher.Close())

	received := make(chan *pubsub.Message, 1)
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			cancel()
		})
	}()
	msg := <-received

	var got notify.Notice
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, notice, got)
	assert.Equal(t, "application/json", msg.Attributes["content_type"])
}

func TestDialMissingTopic(t *testing.T) {
	_, err := notifypubsub.Dial(context.Background(), "project-id", "absent", fakeServerOptions(t)...)
	assert.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	_, err := notifypubsub.New(nil).Publish(context.Background(), "t", notify.Notice{})
	assert.Error(t, err)
}
