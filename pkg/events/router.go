package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc handles one raw message. Handlers ack the message themselves.
type HandlerFunc func(msg *message.Message) error

type handler struct {
	name  string
	topic string
	fn    HandlerFunc
}

// Router fans messages of a subscriber out to named handlers, one
// subscription per handler.
type Router struct {
	subscriber message.Subscriber
	handlers   []handler
}

func NewRouter(subscriber message.Subscriber) *Router {
	return &Router{subscriber: subscriber}
}

func (r *Router) AddHandler(name, topic string, fn HandlerFunc) {
	if topic == "" {
		topic = TopicThreads
	}
	r.handlers = append(r.handlers, handler{name: name, topic: topic, fn: fn})
}

// Run subscribes every handler and dispatches until ctx is done. A handler
// error is logged and the message skipped; it does not stop the router.
func (r *Router) Run(ctx context.Context) error {
	if r.subscriber == nil {
		return errors.New("events: router has no subscriber")
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, h := range r.handlers {
		ch, err := r.subscriber.Subscribe(ctx, h.topic)
		if err != nil {
			return errors.Wrapf(err, "events: subscribe handler %s", h.name)
		}
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-ch:
					if !ok {
						return nil
					}
					if err := h.fn(msg); err != nil {
						log.Warn().Err(err).Str("handler", h.name).Str("message_uuid", msg.UUID).Msg("events: handler failed")
					}
				}
			}
		})
	}
	return eg.Wait()
}

// ThreadEventHandler adapts a typed callback into a HandlerFunc that acks
// and decodes each message.
func ThreadEventHandler(fn func(ThreadEvent) error) HandlerFunc {
	return func(msg *message.Message) error {
		msg.Ack()
		ev, err := DecodeThreadEvent(msg)
		if err != nil {
			return err
		}
		return fn(ev)
	}
}
