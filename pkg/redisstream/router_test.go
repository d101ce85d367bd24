package redisstream

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBuild_InProcessRoundTrip(t *testing.T) {
	ps, err := Build(Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := ps.Subscriber.Subscribe(ctx, "kahani.test")
	require.NoError(t, err)

	require.NoError(t, ps.Publisher.Publish("kahani.test", message.NewMessage(watermill.NewUUID(), []byte("hello"))))

	select {
	case msg := <-ch:
		require.Equal(t, "hello", string(msg.Payload))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError() {}

func TestIsBusyGroup(t *testing.T) {
	require.True(t, isBusyGroup(replyError("BUSYGROUP Consumer Group name already exists")))
	require.True(t, isBusyGroup(errors.Wrap(replyError("BUSYGROUP Consumer Group name already exists"), "create")))
	require.False(t, isBusyGroup(replyError("ERR The XGROUP subcommand requires the key to exist")))
	require.False(t, isBusyGroup(errors.New("BUSYGROUP from somewhere else")))
	require.False(t, isBusyGroup(nil))
}

func TestEnsureGroup_InProcessIsNoop(t *testing.T) {
	s := DefaultSettings()
	s.Addr = "127.0.0.1:1"
	require.NoError(t, s.EnsureGroup(context.Background(), "kahani.test"))
	require.NoError(t, s.DropGroup(context.Background(), "kahani.test"))
}

func TestEnsureGroup_SkipsHistory(t *testing.T) {
	addr := os.Getenv("KAHANI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KAHANI_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := "kahani.test." + watermill.NewShortUUID()
	s := DefaultSettings()
	s.Enabled = true
	s.Addr = addr
	s.Group = "kahani-test-" + watermill.NewShortUUID()

	ps, err := Build(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	require.NoError(t, ps.Publisher.Publish(stream, message.NewMessage(watermill.NewUUID(), []byte("old"))))

	require.NoError(t, s.EnsureGroup(ctx, stream))
	// a second call finds the group already there
	require.NoError(t, s.EnsureGroup(ctx, stream))

	ch, err := ps.Subscriber.Subscribe(ctx, stream)
	require.NoError(t, err)
	require.NoError(t, ps.Publisher.Publish(stream, message.NewMessage(watermill.NewUUID(), []byte("new"))))

	select {
	case msg := <-ch:
		require.Equal(t, "new", string(msg.Payload))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
	require.NoError(t, s.DropGroup(ctx, stream))
}

func TestBuild_RedisStreams(t *testing.T) {
	addr := os.Getenv("KAHANI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KAHANI_TEST_REDIS_ADDR not set")
	}
	s := DefaultSettings()
	s.Enabled = true
	s.Addr = addr
	require.NoError(t, s.EnsureGroup(context.Background(), "kahani.test"))

	ps, err := Build(s)
	require.NoError(t, err)
	require.NoError(t, ps.Close())
}
