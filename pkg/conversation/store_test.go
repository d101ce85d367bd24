package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/persistence/chatstore"
	"github.com/go-go-golems/kahani/pkg/persistence/kvstore"
)

type countingPersister struct {
	threadSaves int
	themeSaves  int
	last        []chat.Thread
	fail        error
}

func (p *countingPersister) SaveThreads(_ context.Context, threads []chat.Thread) error {
	p.threadSaves++
	p.last = chat.CloneThreads(threads)
	return p.fail
}

func (p *countingPersister) SaveTheme(_ context.Context, _ chat.Theme) error {
	p.themeSaves++
	return p.fail
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000000) }
}

func TestStore_PersistsAfterEveryThreadMutation(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{}
	s := NewStore(State{}, p, WithClock(fixedClock()))

	th, err := s.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.threadSaves)

	require.NoError(t, s.AppendMessage(ctx, th.ID, chat.RoleUser, "hi"))
	require.NoError(t, s.Rename(ctx, th.ID, "کہانی"))
	require.Equal(t, 3, p.threadSaves)
	require.Equal(t, "کہانی", p.last[0].Title)

	require.NoError(t, s.Select(ctx, ""))
	require.Equal(t, 3, p.threadSaves, "selection is not persisted")

	_, err = s.ToggleTheme(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.themeSaves)
	require.Equal(t, chat.ThemeLight, s.Theme())

	require.Error(t, s.Rename(ctx, "missing", "x"))
	require.Equal(t, 3, p.threadSaves, "failed reductions are not persisted")
}

func TestStore_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{fail: errors.New("disk full")}
	s := NewStore(State{}, p)

	id, err := s.EnsureActive(ctx)
	require.Error(t, err)
	require.True(t, IsPersistError(err))
	require.NotEmpty(t, id)
	require.Equal(t, id, s.ActiveID())
	require.Len(t, s.List(), 1)
}

func TestStore_EnsureActive(t *testing.T) {
	ctx := context.Background()
	s := NewStore(State{}, nil)

	id, err := s.EnsureActive(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := s.EnsureActive(ctx)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Len(t, s.List(), 1)

	require.NoError(t, s.Delete(ctx, id))
	require.Equal(t, "", s.ActiveID())

	third, err := s.EnsureActive(ctx)
	require.NoError(t, err)
	require.NotEqual(t, id, third)
}

func TestStore_DeleteNonActiveKeepsActive(t *testing.T) {
	ctx := context.Background()
	s := NewStore(State{}, nil)
	a, err := s.Create(ctx)
	require.NoError(t, err)
	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, b.ID, s.ActiveID())

	require.NoError(t, s.Delete(ctx, a.ID))
	require.Equal(t, b.ID, s.ActiveID())

	require.NoError(t, s.Delete(ctx, b.ID))
	require.Equal(t, "", s.ActiveID())
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(State{}, nil)
	th, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, th.ID, chat.RoleUser, "one"))

	list := s.List()
	list[0].Messages[0].Text = "mutated"
	active, ok := s.Active()
	require.True(t, ok)
	require.Equal(t, "one", active.Messages[0].Text)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	ts := chatstore.NewThreadStore(kv)

	s, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	first, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, first.ID, chat.RoleUser, "once upon a time"))
	require.NoError(t, s.AppendMessage(ctx, first.ID, chat.RoleAssistant, "ایک دفعہ کا ذکر ہے"))
	second, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Rename(ctx, second.ID, "دوسری کہانی"))
	require.NoError(t, s.SetTheme(ctx, chat.ThemeLight))

	reloaded, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	require.Equal(t, s.List(), reloaded.List())
	require.Equal(t, chat.ThemeLight, reloaded.Theme())
	require.Equal(t, second.ID, reloaded.ActiveID(), "first thread is active after reload")
}

func TestStore_RemembersSelection(t *testing.T) {
	ctx := context.Background()
	ts := chatstore.NewThreadStore(kvstore.NewInMemoryStore())

	s, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	first, err := s.Create(ctx)
	require.NoError(t, err)
	_, err = s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Select(ctx, first.ID))

	reloaded, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	require.Equal(t, first.ID, reloaded.ActiveID())

	// a remembered id that no longer exists falls back to the first thread
	require.NoError(t, reloaded.Delete(ctx, first.ID))
	require.NoError(t, ts.SaveActive(ctx, first.ID))
	again, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	require.Equal(t, again.List()[0].ID, again.ActiveID())
}

func TestStore_OpenCorruptStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	require.NoError(t, kv.Set(ctx, chatstore.ThreadsKey, "\x00garbage"))
	ts := chatstore.NewThreadStore(kv)

	s, err := Open(ctx, ts, ts)
	require.NoError(t, err)
	require.Empty(t, s.List())
	require.Equal(t, "", s.ActiveID())
	require.Equal(t, chat.ThemeDark, s.Theme())
}

func TestStore_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	s := NewStore(State{}, nil, WithSink(rec))

	th, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, th.ID, chat.RoleUser, "q"))
	require.NoError(t, s.AppendToLastAssistant(ctx, th.ID, "a"))
	require.NoError(t, s.Rename(ctx, th.ID, "t"))
	require.NoError(t, s.Delete(ctx, th.ID))
	require.Error(t, s.Delete(ctx, th.ID))

	require.Equal(t, []events.EventType{
		events.EventThreadCreated,
		events.EventMessageAdded,
		events.EventMessageDelta,
		events.EventThreadRenamed,
		events.EventThreadDeleted,
	}, rec.Types())
	require.Equal(t, th.ID, rec.Events[1].ThreadID)
}

func TestStore_ReloadPicksUpForeignWrites(t *testing.T) {
	ctx := context.Background()
	ts := chatstore.NewThreadStore(kvstore.NewInMemoryStore())
	rec := &events.Recorder{}
	counting := &countingPersister{}

	s, err := Open(ctx, ts, counting, WithSink(rec))
	require.NoError(t, err)
	other, err := Open(ctx, ts, ts)
	require.NoError(t, err)

	first, err := other.Create(ctx)
	require.NoError(t, err)
	second, err := other.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, other.SetTheme(ctx, chat.ThemeLight))

	require.NoError(t, s.Reload(ctx, ts))
	require.Len(t, s.List(), 2)
	require.Equal(t, chat.ThemeLight, s.Theme())
	require.Equal(t, second.ID, s.ActiveID())

	require.NoError(t, s.Select(ctx, first.ID))
	require.NoError(t, other.Rename(ctx, first.ID, "باہر سے"))
	require.NoError(t, s.Reload(ctx, ts))
	require.Equal(t, first.ID, s.ActiveID())
	th, ok := s.Active()
	require.True(t, ok)
	require.Equal(t, "باہر سے", th.Title)

	// the active thread was deleted elsewhere
	require.NoError(t, other.Delete(ctx, first.ID))
	require.NoError(t, s.Reload(ctx, ts))
	require.Equal(t, second.ID, s.ActiveID())

	require.Equal(t, 0, counting.threadSaves)
	require.Equal(t, 0, counting.themeSaves)
	require.Equal(t, []events.EventType{events.EventThreadSelected}, rec.Types())
}
