package ui

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/reveal"
	"github.com/go-go-golems/kahani/pkg/session"
)

// generationDoneMsg carries the result of the request of one submission.
type generationDoneMsg struct {
	sub  *session.Submission
	resp *generation.Response
	err  error
}

type tokenMsg struct {
	reveal *reveal.Reveal
	token  string
}

type revealDoneMsg struct {
	reveal *reveal.Reveal
}

// ThreadEventMsg is a thread change notification forwarded from the event bus.
type ThreadEventMsg struct {
	Event events.ThreadEvent
}

// GenerationBackend runs the network part of a submission off the UI
// goroutine. Store mutations stay on the UI goroutine through Begin and
// Complete.
type GenerationBackend struct {
	ctrl *session.Controller

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewGenerationBackend(ctrl *session.Controller) *GenerationBackend {
	return &GenerationBackend{ctrl: ctrl}
}

// Start begins a submission and returns the command that performs the
// request. It fails with session.ErrBusy while a request is in flight.
func (b *GenerationBackend) Start(ctx context.Context, prompt string, params session.Params) (tea.Cmd, error) {
	sub, err := b.ctrl.Begin(ctx, prompt, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	return func() tea.Msg {
		resp, err := b.ctrl.Call(ctx, sub)
		b.mu.Lock()
		b.cancel = nil
		b.mu.Unlock()
		cancel()
		return generationDoneMsg{sub: sub, resp: resp, err: err}
	}, nil
}

// Interrupt aborts the running request, if any.
func (b *GenerationBackend) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	} else {
		log.Debug().Msg("ui: no generation request running")
	}
}

// IsFinished reports whether no request is in flight.
func (b *GenerationBackend) IsFinished() bool {
	return !b.ctrl.InFlight()
}

func waitForToken(r *reveal.Reveal) tea.Cmd {
	return func() tea.Msg {
		tok, ok := <-r.Tokens()
		if !ok {
			return revealDoneMsg{reveal: r}
		}
		return tokenMsg{reveal: r, token: tok}
	}
}

// ThreadEventForwardFunc returns a watermill handler that forwards thread
// events into the program p. Events stamped with self, the origin of the
// process's own sink, are dropped.
func ThreadEventForwardFunc(p *tea.Program, self string) func(msg *message.Message) error {
	return forwardThreadEvents(self, func(msg tea.Msg) { p.Send(msg) })
}

func forwardThreadEvents(self string, send func(tea.Msg)) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()
		ev, err := events.DecodeThreadEvent(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("ui: failed to parse thread event")
			return errors.Wrap(err, "forward thread event")
		}
		if self != "" && ev.Origin == self {
			return nil
		}
		send(ThreadEventMsg{Event: ev})
		return nil
	}
}
