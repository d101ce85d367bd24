package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/events"
)

// Persister is the durable side of the store. The thread collection is
// always written whole.
type Persister interface {
	SaveThreads(ctx context.Context, threads []chat.Thread) error
	SaveTheme(ctx context.Context, theme chat.Theme) error
}

// Loader reads the persisted state at startup.
type Loader interface {
	LoadThreads(ctx context.Context) ([]chat.Thread, error)
	LoadTheme(ctx context.Context) (chat.Theme, error)
}

// ActivePersister is implemented by persisters that remember the selected
// thread across runs.
type ActivePersister interface {
	SaveActive(ctx context.Context, id string) error
}

// ActiveLoader is the reading side of ActivePersister.
type ActiveLoader interface {
	LoadActive(ctx context.Context) (string, error)
}

// Store applies actions to the application state and persists every
// confirmed mutation. The selection is only persisted when the persister
// implements ActivePersister.
type Store struct {
	mu        sync.Mutex
	state     State
	persister Persister
	sink      events.Sink
	now       func() time.Time
}

type StoreOption func(*Store)

func WithSink(sink events.Sink) StoreOption {
	return func(s *Store) { s.sink = sink }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(initial State, persister Persister, opts ...StoreOption) *Store {
	s := &Store{
		state:     initial.Clone(),
		persister: persister,
		now:       time.Now,
	}
	if s.state.Threads == nil {
		s.state.Threads = []chat.Thread{}
	}
	s.state.Theme = chat.ParseTheme(string(s.state.Theme))
	if s.state.Index(s.state.ActiveID) < 0 {
		s.state.ActiveID = ""
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open loads the persisted collection and theme. The remembered thread
// becomes active when the loader has one, the first thread otherwise.
func Open(ctx context.Context, loader Loader, persister Persister, opts ...StoreOption) (*Store, error) {
	threads, err := loader.LoadThreads(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open conversation store")
	}
	theme, err := loader.LoadTheme(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("conversation store: could not load theme, using dark")
		theme = chat.ThemeDark
	}
	initial := State{Threads: threads, Theme: theme}
	if len(threads) > 0 {
		initial.ActiveID = threads[0].ID
	}
	if al, ok := loader.(ActiveLoader); ok {
		id, err := al.LoadActive(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("conversation store: could not load active thread")
		} else if initial.Index(id) >= 0 {
			initial.ActiveID = id
		}
	}
	return NewStore(initial, persister, opts...), nil
}

// Reload replaces the threads and theme with what loader holds, keeping the
// active thread when it still exists. It neither persists nor publishes;
// it is how a process catches up with changes written by another one.
func (s *Store) Reload(ctx context.Context, loader Loader) error {
	threads, err := loader.LoadThreads(ctx)
	if err != nil {
		return errors.Wrap(err, "reload conversation store")
	}
	theme, err := loader.LoadTheme(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("conversation store: could not reload theme, keeping current")
		theme = s.state.Theme
	}
	next := State{Threads: threads, Theme: chat.ParseTheme(string(theme)), ActiveID: s.state.ActiveID}
	if next.Threads == nil {
		next.Threads = []chat.Thread{}
	}
	if next.Index(next.ActiveID) < 0 {
		next.ActiveID = ""
		if len(next.Threads) > 0 {
			next.ActiveID = next.Threads[0].ID
		}
	}
	s.state = next
	return nil
}

// Dispatch reduces a and, on success, persists and publishes the change.
// A persistence error is returned after the in-memory state was updated.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(ctx, a)
}

func (s *Store) dispatchLocked(ctx context.Context, a Action) (State, error) {
	next, err := Reduce(s.state, a)
	if err != nil {
		return s.state.Clone(), err
	}
	prevActive := s.state.ActiveID
	s.state = next

	var persistErr error
	if s.persister != nil {
		switch a.kind() {
		case kindThreads:
			persistErr = s.persister.SaveThreads(ctx, next.Threads)
		case kindTheme:
			persistErr = s.persister.SaveTheme(ctx, next.Theme)
		case kindSelection:
		}
		if ap, ok := s.persister.(ActivePersister); ok && next.ActiveID != prevActive {
			if err := ap.SaveActive(ctx, next.ActiveID); err != nil && persistErr == nil {
				persistErr = err
			}
		}
	}
	s.publish(ctx, a, next)
	if persistErr != nil {
		log.Error().Err(persistErr).Msgf("conversation store: persisting %T failed", a)
		return next.Clone(), &PersistError{Err: persistErr}
	}
	return next.Clone(), nil
}

// PersistError reports a mutation that was applied in memory but could not
// be written to storage.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "persist state: " + e.Err.Error() }

func (e *PersistError) Unwrap() error { return e.Err }

func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

func (s *Store) publish(ctx context.Context, a Action, st State) {
	if s.sink == nil {
		return
	}
	ev := events.ThreadEvent{At: s.now()}
	switch a := a.(type) {
	case CreateThread:
		ev.Type, ev.ThreadID, ev.Title = events.EventThreadCreated, a.Thread.ID, a.Thread.Title
	case SelectThread:
		ev.Type, ev.ThreadID = events.EventThreadSelected, a.ID
	case RenameThread:
		ev.Type, ev.ThreadID, ev.Title = events.EventThreadRenamed, a.ID, a.Title
	case DeleteThread:
		ev.Type, ev.ThreadID = events.EventThreadDeleted, a.ID
	case AppendMessage:
		ev.Type, ev.ThreadID, ev.Role, ev.Text = events.EventMessageAdded, a.ThreadID, string(a.Role), a.Text
	case AppendToLastAssistant:
		ev.Type, ev.ThreadID, ev.Role, ev.Text = events.EventMessageDelta, a.ThreadID, string(chat.RoleAssistant), a.Text
	case SetTheme:
		ev.Type, ev.Title = events.EventThemeChanged, string(st.Theme)
	case ReplaceThreads:
		ev.Type = events.EventThreadsReplaced
	default:
		return
	}
	if err := s.sink.PublishThreadEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Msg("conversation store: publish failed")
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// List returns the threads, newest first.
func (s *Store) List() []chat.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.CloneThreads(s.state.Threads)
}

func (s *Store) Thread(id string) (chat.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Thread(id)
	return t.Clone(), ok
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveID
}

func (s *Store) Active() (chat.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Active()
	return t.Clone(), ok
}

func (s *Store) Theme() chat.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Theme
}

// Create inserts a new thread at the front and makes it active.
func (s *Store) Create(ctx context.Context) (chat.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := chat.NewThread(s.now())
	_, err := s.dispatchLocked(ctx, CreateThread{Thread: t})
	return t, err
}

// EnsureActive returns the active thread id, creating a thread first when
// none is active.
func (s *Store) EnsureActive(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Active(); ok {
		return s.state.ActiveID, nil
	}
	t := chat.NewThread(s.now())
	if _, err := s.dispatchLocked(ctx, CreateThread{Thread: t}); err != nil {
		if IsPersistError(err) {
			return t.ID, err
		}
		return "", err
	}
	return t.ID, nil
}

func (s *Store) Select(ctx context.Context, id string) error {
	_, err := s.Dispatch(ctx, SelectThread{ID: id})
	return err
}

func (s *Store) Rename(ctx context.Context, id, title string) error {
	_, err := s.Dispatch(ctx, RenameThread{ID: id, Title: title})
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.Dispatch(ctx, DeleteThread{ID: id})
	return err
}

func (s *Store) AppendMessage(ctx context.Context, id string, role chat.Role, text string) error {
	_, err := s.Dispatch(ctx, AppendMessage{ThreadID: id, Role: role, Text: text, At: s.now()})
	return err
}

func (s *Store) AppendToLastAssistant(ctx context.Context, id, text string) error {
	_, err := s.Dispatch(ctx, AppendToLastAssistant{ThreadID: id, Text: text, At: s.now()})
	return err
}

func (s *Store) SetTheme(ctx context.Context, theme chat.Theme) error {
	_, err := s.Dispatch(ctx, SetTheme{Theme: theme})
	return err
}

func (s *Store) ToggleTheme(ctx context.Context) (chat.Theme, error) {
	st, err := s.Dispatch(ctx, SetTheme{Theme: s.Theme().Toggle()})
	return st.Theme, err
}

func (s *Store) ReplaceThreads(ctx context.Context, threads []chat.Thread) error {
	_, err := s.Dispatch(ctx, ReplaceThreads{Threads: threads})
	return err
}
