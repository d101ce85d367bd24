// Package conversation owns the application state of the chat client: the
// ordered thread collection, the active thread and the theme.
//
// State only changes through Reduce. Store wraps Reduce with persistence
// and change notifications, which happen after each confirmed mutation.
package conversation

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/kahani/pkg/chat"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrInvalidRole    = errors.New("invalid message role")
	ErrDuplicateID    = errors.New("duplicate thread id")
)

type State struct {
	Threads  []chat.Thread
	ActiveID string
	Theme    chat.Theme
}

func (s State) Index(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range s.Threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s State) Thread(id string) (chat.Thread, bool) {
	i := s.Index(id)
	if i < 0 {
		return chat.Thread{}, false
	}
	return s.Threads[i], true
}

// Active returns the active thread. A dangling ActiveID counts as no
// active thread.
func (s State) Active() (chat.Thread, bool) {
	return s.Thread(s.ActiveID)
}

func (s State) Clone() State {
	s.Threads = chat.CloneThreads(s.Threads)
	return s
}

// Action is a state transition request.
type Action interface {
	kind() actionKind
}

type actionKind int

const (
	kindThreads actionKind = iota
	kindSelection
	kindTheme
)

// CreateThread inserts Thread at the front and makes it active.
type CreateThread struct {
	Thread chat.Thread
}

type SelectThread struct {
	ID string
}

type RenameThread struct {
	ID    string
	Title string
}

// DeleteThread removes a thread; the active id is cleared when it pointed
// at the removed thread.
type DeleteThread struct {
	ID string
}

type AppendMessage struct {
	ThreadID string
	Role     chat.Role
	Text     string
	At       time.Time
}

// AppendToLastAssistant extends the trailing assistant message of a thread,
// creating an empty one first when the thread does not end with one.
type AppendToLastAssistant struct {
	ThreadID string
	Text     string
	At       time.Time
}

type SetTheme struct {
	Theme chat.Theme
}

// ReplaceThreads swaps the whole collection, used by imports.
type ReplaceThreads struct {
	Threads []chat.Thread
}

func (CreateThread) kind() actionKind { return kindThreads }
func (SelectThread) kind() actionKind { return kindSelection }
func (RenameThread) kind() actionKind { return kindThreads }
func (DeleteThread) kind() actionKind { return kindThreads }
func (AppendMessage) kind() actionKind { return kindThreads }
func (AppendToLastAssistant) kind() actionKind { return kindThreads }
func (SetTheme) kind() actionKind { return kindTheme }
func (ReplaceThreads) kind() actionKind { return kindThreads }

// Reduce applies a to s and returns the new state. The input state is never
// modified. After every successful reduction ActiveID is either empty or the
// id of an existing thread.
func Reduce(s State, a Action) (State, error) {
	next, err := reduce(s, a)
	if err != nil {
		return s, err
	}
	if next.Index(next.ActiveID) < 0 {
		next.ActiveID = ""
	}
	return next, nil
}

func reduce(s State, a Action) (State, error) {
	switch a := a.(type) {
	case CreateThread:
		if a.Thread.ID == "" {
			return s, errors.New("create thread: empty id")
		}
		if s.Index(a.Thread.ID) >= 0 {
			return s, errors.Wrapf(ErrDuplicateID, "create thread %s", a.Thread.ID)
		}
		t := a.Thread.Clone()
		if t.Messages == nil {
			t.Messages = []chat.Message{}
		}
		threads := make([]chat.Thread, 0, len(s.Threads)+1)
		threads = append(threads, t)
		threads = append(threads, s.Threads...)
		s.Threads = threads
		s.ActiveID = t.ID
		return s, nil

	case SelectThread:
		if a.ID != "" && s.Index(a.ID) < 0 {
			return s, errors.Wrapf(ErrThreadNotFound, "select %s", a.ID)
		}
		s.ActiveID = a.ID
		return s, nil

	case RenameThread:
		return updateThread(s, a.ID, func(t *chat.Thread) error {
			t.Title = a.Title
			return nil
		})

	case DeleteThread:
		i := s.Index(a.ID)
		if i < 0 {
			return s, errors.Wrapf(ErrThreadNotFound, "delete %s", a.ID)
		}
		threads := make([]chat.Thread, 0, len(s.Threads)-1)
		threads = append(threads, s.Threads[:i]...)
		threads = append(threads, s.Threads[i+1:]...)
		s.Threads = threads
		if s.ActiveID == a.ID {
			s.ActiveID = ""
		}
		return s, nil

	case AppendMessage:
		if !a.Role.Valid() {
			return s, errors.Wrapf(ErrInvalidRole, "append %q", a.Role)
		}
		return updateThread(s, a.ThreadID, func(t *chat.Thread) error {
			t.Messages = append(t.Messages, chat.Message{Role: a.Role, Text: a.Text, Timestamp: a.At.UnixMilli()})
			return nil
		})

	case AppendToLastAssistant:
		return updateThread(s, a.ThreadID, func(t *chat.Thread) error {
			n := len(t.Messages)
			if n == 0 || t.Messages[n-1].Role != chat.RoleAssistant {
				t.Messages = append(t.Messages, chat.Message{Role: chat.RoleAssistant, Text: a.Text, Timestamp: a.At.UnixMilli()})
				return nil
			}
			t.Messages[n-1].Text += a.Text
			return nil
		})

	case SetTheme:
		s.Theme = chat.ParseTheme(string(a.Theme))
		return s, nil

	case ReplaceThreads:
		seen := map[string]struct{}{}
		for _, t := range a.Threads {
			if strings.TrimSpace(t.ID) == "" {
				return s, errors.New("replace threads: empty id")
			}
			if _, dup := seen[t.ID]; dup {
				return s, errors.Wrapf(ErrDuplicateID, "replace threads %s", t.ID)
			}
			seen[t.ID] = struct{}{}
		}
		s.Threads = chat.CloneThreads(a.Threads)
		return s, nil

	default:
		return s, errors.Errorf("unknown action %T", a)
	}
}

// updateThread applies fn to a copy of the thread so that the previous
// state keeps its own message slice.
func updateThread(s State, id string, fn func(*chat.Thread) error) (State, error) {
	i := s.Index(id)
	if i < 0 {
		return s, errors.Wrapf(ErrThreadNotFound, "thread %s", id)
	}
	t := s.Threads[i].Clone()
	if err := fn(&t); err != nil {
		return s, err
	}
	threads := make([]chat.Thread, len(s.Threads))
	copy(threads, s.Threads)
	threads[i] = t
	s.Threads = threads
	return s, nil
}
