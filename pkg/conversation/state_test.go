package conversation

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/kahani/pkg/chat"
)

func thread(id string) chat.Thread {
	return chat.Thread{ID: id, Title: chat.DefaultThreadTitle, Messages: []chat.Message{}, CreatedAt: 1}
}

func mustReduce(t *testing.T, s State, a Action) State {
	t.Helper()
	next, err := Reduce(s, a)
	require.NoError(t, err)
	return next
}

func requireActiveValid(t *testing.T, s State) {
	t.Helper()
	if s.ActiveID == "" {
		return
	}
	require.GreaterOrEqual(t, s.Index(s.ActiveID), 0, "active id %s is dangling", s.ActiveID)
}

func TestReduce_CreateInsertsAtFrontAndActivates(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	s = mustReduce(t, s, CreateThread{Thread: thread("b")})

	require.Equal(t, "b", s.Threads[0].ID)
	require.Equal(t, "a", s.Threads[1].ID)
	require.Equal(t, "b", s.ActiveID)

	_, err := Reduce(s, CreateThread{Thread: thread("a")})
	require.True(t, errors.Is(err, ErrDuplicateID))
}

func TestReduce_ActiveIDAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := State{}
	next := 0
	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(s.Threads) == 0:
			next++
			s = mustReduce(t, s, CreateThread{Thread: thread(fmt.Sprintf("t%d", next))})
		case op == 1:
			id := s.Threads[rng.Intn(len(s.Threads))].ID
			s = mustReduce(t, s, DeleteThread{ID: id})
		case op == 2:
			id := s.Threads[rng.Intn(len(s.Threads))].ID
			s = mustReduce(t, s, SelectThread{ID: id})
		default:
			_, err := Reduce(s, DeleteThread{ID: "missing"})
			require.True(t, errors.Is(err, ErrThreadNotFound))
		}
		requireActiveValid(t, s)
	}
}

func TestReduce_DanglingActiveIsCleared(t *testing.T) {
	s := State{Threads: []chat.Thread{thread("a")}, ActiveID: "gone"}
	s = mustReduce(t, s, SetTheme{Theme: chat.ThemeLight})
	require.Equal(t, "", s.ActiveID)
	_, ok := s.Active()
	require.False(t, ok)
}

func TestReduce_DeleteActiveClearsSelection(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	s = mustReduce(t, s, CreateThread{Thread: thread("b")})
	require.Equal(t, "b", s.ActiveID)

	s = mustReduce(t, s, DeleteThread{ID: "a"})
	require.Equal(t, "b", s.ActiveID)

	s = mustReduce(t, s, DeleteThread{ID: "b"})
	require.Equal(t, "", s.ActiveID)
	require.Empty(t, s.Threads)
}

func TestReduce_AppendGrowsByOneAndKeepsOrder(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	at := time.UnixMilli(1000)
	texts := []string{"ایک", "دو", "تین", "چار"}
	for i, txt := range texts {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		before, _ := s.Thread("a")
		next := mustReduce(t, s, AppendMessage{ThreadID: "a", Role: role, Text: txt, At: at})
		after, _ := next.Thread("a")

		require.Len(t, after.Messages, len(before.Messages)+1)
		require.Equal(t, before.Messages, after.Messages[:len(before.Messages)])
		require.Equal(t, txt, after.Messages[len(after.Messages)-1].Text)
		require.Equal(t, int64(1000), after.Messages[len(after.Messages)-1].Timestamp)
		s = next
	}

	_, err := Reduce(s, AppendMessage{ThreadID: "a", Role: "system", Text: "x"})
	require.True(t, errors.Is(err, ErrInvalidRole))
	_, err = Reduce(s, AppendMessage{ThreadID: "nope", Role: chat.RoleUser})
	require.True(t, errors.Is(err, ErrThreadNotFound))
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	s = mustReduce(t, s, AppendMessage{ThreadID: "a", Role: chat.RoleAssistant, Text: "one"})

	next := mustReduce(t, s, AppendToLastAssistant{ThreadID: "a", Text: " two"})
	next = mustReduce(t, next, RenameThread{ID: "a", Title: "renamed"})

	orig, _ := s.Thread("a")
	require.Equal(t, "one", orig.Messages[0].Text)
	require.Equal(t, chat.DefaultThreadTitle, orig.Title)

	updated, _ := next.Thread("a")
	require.Equal(t, "one two", updated.Messages[0].Text)
	require.Equal(t, "renamed", updated.Title)
}

func TestReduce_AppendToLastAssistantCreatesPlaceholder(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	s = mustReduce(t, s, AppendMessage{ThreadID: "a", Role: chat.RoleUser, Text: "q"})
	s = mustReduce(t, s, AppendToLastAssistant{ThreadID: "a", Text: "ایک"})
	s = mustReduce(t, s, AppendToLastAssistant{ThreadID: "a", Text: " دن"})

	th, _ := s.Thread("a")
	require.Len(t, th.Messages, 2)
	require.Equal(t, chat.RoleAssistant, th.Messages[1].Role)
	require.Equal(t, "ایک دن", th.Messages[1].Text)
}

func TestReduce_ReplaceThreads(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	s = mustReduce(t, s, ReplaceThreads{Threads: []chat.Thread{thread("x"), thread("y")}})
	require.Len(t, s.Threads, 2)
	require.Equal(t, "", s.ActiveID)

	_, err := Reduce(s, ReplaceThreads{Threads: []chat.Thread{thread("x"), thread("x")}})
	require.True(t, errors.Is(err, ErrDuplicateID))
}

func TestReduce_SelectUnknownFails(t *testing.T) {
	s := mustReduce(t, State{}, CreateThread{Thread: thread("a")})
	_, err := Reduce(s, SelectThread{ID: "zzz"})
	require.Error(t, err)

	s = mustReduce(t, s, SelectThread{ID: ""})
	require.Equal(t, "", s.ActiveID)
}
