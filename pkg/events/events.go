// Package events carries thread change notifications over watermill.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicThreads is the topic every thread change is published on.
const TopicThreads = "kahani.threads"

type EventType string

const (
	EventThreadCreated   EventType = "thread.created"
	EventThreadRenamed   EventType = "thread.renamed"
	EventThreadDeleted   EventType = "thread.deleted"
	EventThreadSelected  EventType = "thread.selected"
	EventMessageAdded    EventType = "message.added"
	EventMessageDelta    EventType = "message.delta"
	EventThemeChanged    EventType = "theme.changed"
	EventThreadsReplaced EventType = "threads.replaced"
)

type ThreadEvent struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id,omitempty"`
	Title    string    `json:"title,omitempty"`
	Role     string    `json:"role,omitempty"`
	Text     string    `json:"text,omitempty"`
	At       time.Time `json:"at"`
	// Origin identifies the publishing sink, so a process can tell its own
	// events from those of other processes on a shared stream.
	Origin string `json:"origin,omitempty"`
}

// Sink receives thread events. Implementations must not block the caller
// for long; the store publishes synchronously after each mutation.
type Sink interface {
	PublishThreadEvent(ctx context.Context, ev ThreadEvent) error
}

// PublisherSink publishes events as JSON watermill messages, stamped with
// an origin unique to the sink.
type PublisherSink struct {
	publisher message.Publisher
	topic     string
	origin    string
}

var _ Sink = &PublisherSink{}

func NewPublisherSink(publisher message.Publisher, topic string) *PublisherSink {
	if topic == "" {
		topic = TopicThreads
	}
	return &PublisherSink{publisher: publisher, topic: topic, origin: watermill.NewShortUUID()}
}

func (s *PublisherSink) Origin() string {
	if s == nil {
		return ""
	}
	return s.origin
}

func (s *PublisherSink) PublishThreadEvent(ctx context.Context, ev ThreadEvent) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	if ev.Origin == "" {
		ev.Origin = s.origin
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "events: encode thread event")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("origin", ev.Origin)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrap(err, "events: publish thread event")
	}
	return nil
}

func (s *PublisherSink) Close() error {
	if s == nil || s.publisher == nil {
		return nil
	}
	return s.publisher.Close()
}

// DecodeThreadEvent parses the payload of a message published by PublisherSink.
func DecodeThreadEvent(msg *message.Message) (ThreadEvent, error) {
	var ev ThreadEvent
	if msg == nil {
		return ev, errors.New("events: nil message")
	}
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, errors.Wrap(err, "events: decode thread event")
	}
	return ev, nil
}

// Consume reads thread events from subscriber until ctx is done, acking
// every message. Undecodable payloads are logged and skipped.
func Consume(ctx context.Context, subscriber message.Subscriber, topic string, handle func(ThreadEvent) error) error {
	if topic == "" {
		topic = TopicThreads
	}
	ch, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "events: subscribe")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeThreadEvent(msg)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("events: skipping bad thread event")
				continue
			}
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}

// Recorder is an in-memory Sink for tests and diagnostics.
type Recorder struct {
	Events []ThreadEvent
}

func (r *Recorder) PublishThreadEvent(_ context.Context, ev ThreadEvent) error {
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Types() []EventType {
	out := make([]EventType, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Type)
	}
	return out
}
