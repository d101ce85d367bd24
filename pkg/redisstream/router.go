package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings holds the Redis Streams transport configuration for thread events.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "kahani-tail",
		Consumer: "tail-1",
	}
}

// PubSub bundles a publisher and a subscriber sharing one transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build returns a Redis Streams backed PubSub when s.Enabled and an
// in-process go channel otherwise. The in-process variant only reaches
// subscribers of the same process.
func Build(s Settings) (*PubSub, error) {
	logger := NewZerologAdapter(log.Logger)
	if !s.Enabled {
		gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &PubSub{
			Publisher:  gc,
			Subscriber: gc,
			closers:    []func() error{gc.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: subscriber")
	}

	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// EnsureGroup makes sure s.Group exists on stream, positioned at the
// current end of the stream, so a first subscriber only sees new entries.
// It does nothing for the in-process transport.
func (s Settings) EnsureGroup(ctx context.Context, stream string) error {
	if !s.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, stream, s.Group, "$").Err()
	switch {
	case err == nil:
		log.Info().Str("stream", stream).Str("group", s.Group).Msg("redisstream: consumer group created at tail")
		return nil
	case isBusyGroup(err):
		log.Debug().Str("stream", stream).Str("group", s.Group).Msg("redisstream: consumer group exists")
		return nil
	default:
		return errors.Wrapf(err, "redisstream: create group %s on %s", s.Group, stream)
	}
}

// DropGroup removes s.Group from stream. Groups that only live as long as
// one process use it on shutdown.
func (s Settings) DropGroup(ctx context.Context, stream string) error {
	if !s.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	defer func() { _ = client.Close() }()
	if err := client.XGroupDestroy(ctx, stream, s.Group).Err(); err != nil {
		return errors.Wrapf(err, "redisstream: drop group %s on %s", s.Group, stream)
	}
	return nil
}

// isBusyGroup reports whether err is the server reply for a group that
// already exists.
func isBusyGroup(err error) bool {
	var reply redis.Error
	if !errors.As(err, &reply) {
		return false
	}
	return strings.HasPrefix(reply.Error(), "BUSYGROUP ")
}
