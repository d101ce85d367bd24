package chatstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/persistence/kvstore"
)

// Storage keys shared with the web client.
const (
	ThreadsKey = "urdu_chats_v1"
	ThemeKey   = "urdu_theme"
)

// ActiveKey remembers the selected thread between runs of the terminal
// client.
const ActiveKey = "kahani_active_thread"

// ThreadStore persists the whole thread collection and the theme as two
// keys of a key-value store.
type ThreadStore struct {
	kv kvstore.Store
}

func NewThreadStore(kv kvstore.Store) *ThreadStore {
	return &ThreadStore{kv: kv}
}

// LoadThreads never fails on bad data: an absent or undecodable collection
// yields an empty one. Only storage errors are returned.
func (s *ThreadStore) LoadThreads(ctx context.Context) ([]chat.Thread, error) {
	if s == nil || s.kv == nil {
		return nil, errors.New("thread store: kv store is nil")
	}
	raw, ok, err := s.kv.Get(ctx, ThreadsKey)
	if err != nil {
		return nil, errors.Wrap(err, "thread store: load threads")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []chat.Thread{}, nil
	}
	threads, err := DecodeThreads([]byte(raw))
	if err != nil {
		log.Warn().Err(err).Str("key", ThreadsKey).Msg("thread store: discarding unreadable thread collection")
		return []chat.Thread{}, nil
	}
	return threads, nil
}

func (s *ThreadStore) SaveThreads(ctx context.Context, threads []chat.Thread) error {
	if s == nil || s.kv == nil {
		return errors.New("thread store: kv store is nil")
	}
	if threads == nil {
		threads = []chat.Thread{}
	}
	b, err := json.Marshal(threads)
	if err != nil {
		return errors.Wrap(err, "thread store: encode threads")
	}
	return errors.Wrap(s.kv.Set(ctx, ThreadsKey, string(b)), "thread store: save threads")
}

func (s *ThreadStore) LoadTheme(ctx context.Context) (chat.Theme, error) {
	if s == nil || s.kv == nil {
		return chat.ThemeDark, errors.New("thread store: kv store is nil")
	}
	raw, ok, err := s.kv.Get(ctx, ThemeKey)
	if err != nil {
		return chat.ThemeDark, errors.Wrap(err, "thread store: load theme")
	}
	if !ok {
		return chat.ThemeDark, nil
	}
	return chat.ParseTheme(raw), nil
}

func (s *ThreadStore) SaveTheme(ctx context.Context, theme chat.Theme) error {
	if s == nil || s.kv == nil {
		return errors.New("thread store: kv store is nil")
	}
	return errors.Wrap(s.kv.Set(ctx, ThemeKey, string(chat.ParseTheme(string(theme)))), "thread store: save theme")
}

// LoadActive returns the remembered thread id, empty when none is stored.
func (s *ThreadStore) LoadActive(ctx context.Context) (string, error) {
	if s == nil || s.kv == nil {
		return "", errors.New("thread store: kv store is nil")
	}
	raw, _, err := s.kv.Get(ctx, ActiveKey)
	if err != nil {
		return "", errors.Wrap(err, "thread store: load active thread")
	}
	return strings.TrimSpace(raw), nil
}

// SaveActive stores id, or removes the key when id is empty.
func (s *ThreadStore) SaveActive(ctx context.Context, id string) error {
	if s == nil || s.kv == nil {
		return errors.New("thread store: kv store is nil")
	}
	if id == "" {
		return errors.Wrap(s.kv.Delete(ctx, ActiveKey), "thread store: clear active thread")
	}
	return errors.Wrap(s.kv.Set(ctx, ActiveKey, id), "thread store: save active thread")
}

// DecodeThreads parses a persisted collection. Threads without an id are
// dropped and duplicate ids keep their first occurrence.
func DecodeThreads(b []byte) ([]chat.Thread, error) {
	var threads []chat.Thread
	if err := json.Unmarshal(b, &threads); err != nil {
		return nil, errors.Wrap(err, "decode threads")
	}
	out := make([]chat.Thread, 0, len(threads))
	seen := map[string]struct{}{}
	for _, t := range threads {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.Messages == nil {
			t.Messages = []chat.Message{}
		}
		out = append(out, t)
	}
	return out, nil
}

type exportDocument struct {
	Theme   chat.Theme    `yaml:"theme"`
	Threads []chat.Thread `yaml:"threads"`
}

// ExportYAML renders the collection for `kahani threads export`.
func ExportYAML(threads []chat.Thread, theme chat.Theme) ([]byte, error) {
	b, err := yaml.Marshal(exportDocument{Theme: theme, Threads: threads})
	if err != nil {
		return nil, errors.Wrap(err, "export threads")
	}
	return b, nil
}

func ImportYAML(b []byte) ([]chat.Thread, chat.Theme, error) {
	var doc exportDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, chat.ThemeDark, errors.Wrap(err, "import threads")
	}
	seen := map[string]struct{}{}
	for i, t := range doc.Threads {
		if t.ID == "" {
			return nil, chat.ThemeDark, errors.Errorf("import threads: thread %d has no id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, chat.ThemeDark, errors.Errorf("import threads: duplicate thread id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Messages == nil {
			doc.Threads[i].Messages = []chat.Message{}
		}
		for _, m := range t.Messages {
			if !m.Role.Valid() {
				return nil, chat.ThemeDark, errors.Errorf("import threads: thread %s has message with role %q", t.ID, m.Role)
			}
		}
	}
	return doc.Threads, chat.ParseTheme(string(doc.Theme)), nil
}
