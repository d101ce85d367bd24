// Package session drives one submission at a time from prompt to revealed
// reply: it appends the user message, calls the generation service, maps
// the outcome to assistant messages and owns the running reveal.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/conversation"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/reveal"
)

const (
	TransportFailurePlaceholder = "Error during generation."
	errorPrefix                 = "Error: "
	unknownServiceError         = "Unknown error"
)

// ErrBusy is returned by Begin while a request is in flight.
var ErrBusy = errors.New("a generation request is already in flight")

type Params struct {
	MaxLength   int
	Temperature float64
}

func DefaultParams() Params {
	return Params{MaxLength: generation.DefaultMaxLength, Temperature: generation.DefaultTemperature}
}

// Submission is one accepted prompt.
type Submission struct {
	ThreadID string
	Request  generation.Request
	Started  time.Time
}

// Outcome describes what Complete did with a result.
type Outcome struct {
	ThreadID string
	// Reveal is set when the reply is being revealed progressively.
	Reveal *reveal.Reveal
	// Banner is the user-visible error, empty on success.
	Banner string
	Failed bool
}

type Controller struct {
	store  *conversation.Store
	client generation.Generator
	policy reveal.Policy
	delay  time.Duration

	mu           sync.Mutex
	inFlight     *Submission
	banner       string
	reveal       *reveal.Reveal
	revealThread string
}

type Option func(*Controller)

func WithPolicy(p reveal.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithRevealDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.delay = d
		}
	}
}

func NewController(store *conversation.Store, client generation.Generator, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		client: client,
		policy: reveal.PolicyProgressive,
		delay:  reveal.DefaultDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Store() *conversation.Store { return c.store }

func (c *Controller) Policy() reveal.Policy { return c.policy }

// InFlight reports whether a generation request is outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight != nil
}

// Revealing reports whether a reveal is running and into which thread.
func (c *Controller) Revealing() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revealThread, c.reveal != nil
}

// Banner is the error of the last submission, empty when it succeeded.
func (c *Controller) Banner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

func (c *Controller) ClearBanner() {
	c.mu.Lock()
	c.banner = ""
	c.mu.Unlock()
}

// Begin accepts a prompt: it stops any running reveal, makes sure a thread
// is active and appends the user message. Only one submission may be in
// flight at a time.
func (c *Controller) Begin(ctx context.Context, prompt string, params Params) (*Submission, error) {
	c.mu.Lock()
	if c.inFlight != nil {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.stopRevealLocked()
	c.banner = ""

	threadID, err := c.store.EnsureActive(ctx)
	if err != nil && !conversation.IsPersistError(err) {
		c.mu.Unlock()
		return nil, errors.Wrap(err, "begin submission")
	}
	if err := c.store.AppendMessage(ctx, threadID, chat.RoleUser, prompt); err != nil && !conversation.IsPersistError(err) {
		c.mu.Unlock()
		return nil, errors.Wrap(err, "append prompt")
	}
	sub := &Submission{
		ThreadID: threadID,
		Request: generation.Request{
			Prefix:      prompt,
			MaxLength:   params.MaxLength,
			Temperature: params.Temperature,
		},
		Started: time.Now(),
	}
	c.inFlight = sub
	c.mu.Unlock()

	log.Debug().
		Str("thread_id", threadID).
		Int("max_length", params.MaxLength).
		Float64("temperature", params.Temperature).
		Msg("session: submission accepted")
	return sub, nil
}

// Call performs the request of sub. It does not touch the store and can run
// off the UI goroutine.
func (c *Controller) Call(ctx context.Context, sub *Submission) (*generation.Response, error) {
	if sub == nil {
		return nil, errors.New("nil submission")
	}
	return c.client.Generate(ctx, sub.Request)
}

// Complete maps the result of sub to assistant messages and clears the
// in-flight marker. The thread stays usable whatever happened.
func (c *Controller) Complete(ctx context.Context, sub *Submission, resp *generation.Response, callErr error) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == sub {
		c.inFlight = nil
	}
	out := Outcome{ThreadID: sub.ThreadID}
	if _, ok := c.store.Thread(sub.ThreadID); !ok {
		// deleted while the request was running
		log.Info().Str("thread_id", sub.ThreadID).Msg("session: dropping result for deleted thread")
		if callErr != nil {
			c.banner = errorPrefix + callErr.Error()
			out.Banner, out.Failed = c.banner, true
		}
		return out
	}

	elapsed := time.Since(sub.Started)
	switch {
	case callErr != nil:
		log.Warn().Err(callErr).Str("thread_id", sub.ThreadID).Dur("elapsed", elapsed).Msg("session: generation failed")
		c.banner = errorPrefix + callErr.Error()
		out.Banner, out.Failed = c.banner, true
		c.appendLogged(ctx, sub.ThreadID, TransportFailurePlaceholder)

	case resp == nil || !resp.Success:
		msg := unknownServiceError
		if resp != nil && strings.TrimSpace(resp.Error) != "" {
			msg = resp.Error
		}
		log.Info().Str("thread_id", sub.ThreadID).Str("error", msg).Msg("session: service reported failure")
		out.Failed = true
		c.appendLogged(ctx, sub.ThreadID, errorPrefix+msg)

	case c.policy == reveal.PolicyInstant:
		log.Debug().Str("thread_id", sub.ThreadID).Dur("elapsed", elapsed).Msg("session: appending reply")
		c.appendLogged(ctx, sub.ThreadID, resp.Story)

	default:
		log.Debug().Str("thread_id", sub.ThreadID).Dur("elapsed", elapsed).Int("words", reveal.WordCount(resp.Story)).Msg("session: revealing reply")
		c.appendLogged(ctx, sub.ThreadID, "")
		c.reveal = reveal.Start(context.Background(), resp.Story, c.delay)
		c.revealThread = sub.ThreadID
		out.Reveal = c.reveal
	}
	return out
}

func (c *Controller) appendLogged(ctx context.Context, threadID, text string) {
	if err := c.store.AppendMessage(ctx, threadID, chat.RoleAssistant, text); err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("session: could not append assistant message")
	}
}

// ApplyToken writes one revealed token into the trailing assistant message.
// Tokens of a reveal that is no longer current are ignored and reported
// with ok=false.
func (c *Controller) ApplyToken(ctx context.Context, r *reveal.Reveal, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil || r != c.reveal {
		return false, nil
	}
	if err := c.store.AppendToLastAssistant(ctx, c.revealThread, token); err != nil {
		return true, err
	}
	return true, nil
}

// FinishReveal clears r once its token channel is closed.
func (c *Controller) FinishReveal(r *reveal.Reveal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r != nil && r == c.reveal {
		c.reveal = nil
		c.revealThread = ""
	}
}

// StopReveal aborts the running reveal, leaving the partial text in place.
func (c *Controller) StopReveal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRevealLocked()
}

func (c *Controller) stopRevealLocked() {
	if c.reveal == nil {
		return
	}
	c.reveal.Stop()
	log.Debug().Str("thread_id", c.revealThread).Msg("session: reveal stopped")
	c.reveal = nil
	c.revealThread = ""
}

// Select switches the active thread. Navigating away stops a running reveal;
// selecting the thread being revealed leaves it running.
func (c *Controller) Select(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.reveal != nil && c.revealThread != id {
		c.stopRevealLocked()
	}
	c.mu.Unlock()
	return c.store.Select(ctx, id)
}

// NewThread creates and activates a thread, stopping any running reveal.
func (c *Controller) NewThread(ctx context.Context) (chat.Thread, error) {
	c.StopReveal()
	return c.store.Create(ctx)
}

// Delete removes a thread; a reveal writing into it is stopped first.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.revealThread == id {
		c.stopRevealLocked()
	}
	c.mu.Unlock()
	return c.store.Delete(ctx, id)
}

// Run performs a whole submission synchronously, draining the reveal and
// calling onToken for every token. Used by the one-shot command.
func (c *Controller) Run(ctx context.Context, prompt string, params Params, onToken func(string)) (Outcome, error) {
	sub, err := c.Begin(ctx, prompt, params)
	if err != nil {
		return Outcome{}, err
	}
	resp, callErr := c.Call(ctx, sub)
	out := c.Complete(ctx, sub, resp, callErr)
	if out.Reveal == nil {
		return out, nil
	}
	defer c.FinishReveal(out.Reveal)
	for {
		select {
		case <-ctx.Done():
			c.StopReveal()
			return out, ctx.Err()
		case tok, ok := <-out.Reveal.Tokens():
			if !ok {
				return out, nil
			}
			if _, err := c.ApplyToken(ctx, out.Reveal, tok); err != nil {
				log.Warn().Err(err).Msg("session: could not persist revealed token")
			}
			if onToken != nil {
				onToken(tok)
			}
		}
	}
}
