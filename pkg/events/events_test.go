package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

func TestPublisherSink_ConsumeRoundTrip(t *testing.T) {
	gc := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	sink := NewPublisherSink(gc, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	at := time.UnixMilli(1700000000000).UTC()
	require.NoError(t, sink.PublishThreadEvent(ctx, ThreadEvent{Type: EventThreadCreated, ThreadID: "t1", Title: "New Chat", At: at}))
	require.NoError(t, sink.PublishThreadEvent(ctx, ThreadEvent{Type: EventMessageAdded, ThreadID: "t1", Role: "user", Text: "سلام", At: at}))

	var got []ThreadEvent
	err := Consume(ctx, gc, TopicThreads, func(ev ThreadEvent) error {
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, EventThreadCreated, got[0].Type)
	require.Equal(t, "New Chat", got[0].Title)
	require.Equal(t, EventMessageAdded, got[1].Type)
	require.Equal(t, "سلام", got[1].Text)
	require.True(t, at.Equal(got[1].At))
	require.NotEmpty(t, sink.Origin())
	require.Equal(t, sink.Origin(), got[0].Origin)
}

func TestPublisherSink_OriginsDiffer(t *testing.T) {
	gc := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	a := NewPublisherSink(gc, "")
	b := NewPublisherSink(gc, "")
	require.NotEqual(t, a.Origin(), b.Origin())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.PublishThreadEvent(ctx, ThreadEvent{Type: EventThreadDeleted, ThreadID: "t1"}))
	require.NoError(t, b.PublishThreadEvent(ctx, ThreadEvent{Type: EventThreadDeleted, ThreadID: "t2", Origin: "relayed"}))

	var got []ThreadEvent
	require.NoError(t, Consume(ctx, gc, TopicThreads, func(ev ThreadEvent) error {
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
		return nil
	}))
	require.Equal(t, a.Origin(), got[0].Origin)
	require.Equal(t, "relayed", got[1].Origin)
}

func TestConsume_SkipsUndecodablePayloads(t *testing.T) {
	gc := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	require.NoError(t, gc.Publish(TopicThreads, message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	sink := NewPublisherSink(gc, TopicThreads)
	require.NoError(t, sink.PublishThreadEvent(context.Background(), ThreadEvent{Type: EventThemeChanged, Text: "light"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []ThreadEvent
	err := Consume(ctx, gc, TopicThreads, func(ev ThreadEvent) error {
		got = append(got, ev)
		cancel()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, EventThemeChanged, got[0].Type)
}

func TestPublisherSink_NilIsNoop(t *testing.T) {
	var s *PublisherSink
	require.NoError(t, s.PublishThreadEvent(context.Background(), ThreadEvent{Type: EventThreadDeleted}))
	require.NoError(t, s.Close())
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.PublishThreadEvent(context.Background(), ThreadEvent{Type: EventThreadCreated})
	_ = r.PublishThreadEvent(context.Background(), ThreadEvent{Type: EventThreadSelected})
	require.Equal(t, []EventType{EventThreadCreated, EventThreadSelected}, r.Types())
}

func TestRouter_DispatchesToHandlers(t *testing.T) {
	gc := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	sink := NewPublisherSink(gc, TopicThreads)
	require.NoError(t, sink.PublishThreadEvent(context.Background(), ThreadEvent{Type: EventThreadRenamed, ThreadID: "t1", Title: "قصہ"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan ThreadEvent, 2)
	router := NewRouter(gc)
	router.AddHandler("first", "", ThreadEventHandler(func(ev ThreadEvent) error {
		got <- ev
		return nil
	}))
	router.AddHandler("second", TopicThreads, ThreadEventHandler(func(ev ThreadEvent) error {
		got <- ev
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-got:
			require.Equal(t, EventThreadRenamed, ev.Type)
			require.Equal(t, "قصہ", ev.Title)
		case <-ctx.Done():
			t.Fatal("timed out waiting for handlers")
		}
	}
	cancel()
	require.NoError(t, <-done)
}
