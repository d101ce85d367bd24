// Package reveal presents an already complete text as if it were arriving
// word by word.
package reveal

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const DefaultDelay = 60 * time.Millisecond

// Policy decides how a generated reply is appended to a thread.
type Policy string

const (
	// PolicyInstant appends the whole reply as one message.
	PolicyInstant Policy = "instant"
	// PolicyProgressive reveals the reply token by token into a growing message.
	PolicyProgressive Policy = "progressive"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyProgressive:
		return PolicyProgressive, nil
	case PolicyInstant:
		return PolicyInstant, nil
	default:
		return "", errors.Errorf("unknown reveal policy %q", s)
	}
}

// Tokenize splits text into alternating runs of non-whitespace and
// whitespace. Joining the tokens yields text unchanged.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			tokens = append(tokens, text[start:i])
			start = i
			inSpace = space
		}
	}
	return append(tokens, text[start:])
}

// Reveal is one running token producer. Tokens are sent in order on the
// channel returned by Tokens, which is closed once every token has been
// delivered or the reveal was stopped.
type Reveal struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	delivered int
	total     int
	stopped   bool
}

// Start begins revealing text. The first token is available immediately and
// each following one after delay.
func Start(ctx context.Context, text string, delay time.Duration) *Reveal {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	toks := Tokenize(text)
	r := &Reveal{
		tokens: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
		total:  len(toks),
	}
	go r.run(ctx, toks, delay)
	return r
}

func (r *Reveal) run(ctx context.Context, toks []string, delay time.Duration) {
	defer close(r.done)
	defer close(r.tokens)
	defer r.cancel()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for i, tok := range toks {
		if i > 0 && delay > 0 {
			if timer == nil {
				timer = time.NewTimer(delay)
			} else {
				timer.Reset(delay)
			}
			select {
			case <-ctx.Done():
				r.markStopped()
				return
			case <-timer.C:
			}
		}
		select {
		case <-ctx.Done():
			r.markStopped()
			return
		case r.tokens <- tok:
			r.mu.Lock()
			r.delivered++
			r.mu.Unlock()
		}
	}
}

func (r *Reveal) markStopped() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *Reveal) Tokens() <-chan string { return r.tokens }

// Done is closed when the producer goroutine has exited.
func (r *Reveal) Done() <-chan struct{} { return r.done }

// Stop aborts the reveal and waits for the producer to exit. No token is
// sent after Stop returns. Calling Stop more than once is fine.
func (r *Reveal) Stop() {
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Stopped reports whether cancellation cut the reveal short.
func (r *Reveal) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Progress returns how many tokens were delivered out of the total.
func (r *Reveal) Progress() (delivered, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered, r.total
}

// Collect drains a reveal, calling onToken for each token, and returns the
// concatenated text.
func Collect(r *Reveal, onToken func(string)) string {
	var sb strings.Builder
	for tok := range r.Tokens() {
		sb.WriteString(tok)
		if onToken != nil {
			onToken(tok)
		}
	}
	return sb.String()
}

// WordCount counts the non-whitespace tokens of text.
func WordCount(text string) int {
	n := 0
	for _, tok := range Tokenize(text) {
		r, _ := utf8.DecodeRuneInString(tok)
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
