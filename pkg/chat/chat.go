// Package chat holds the thread and message model shared by the store, the
// submission controller and the terminal UI.
package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultThreadTitle = "New Chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// roleLegacyBot is what the web client wrote for generated replies.
	roleLegacyBot Role = "bot"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant, roleLegacyBot:
		return RoleAssistant, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r *Role) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message is one turn of a thread. Text only changes while a reply is being
// revealed into the trailing assistant message.
type Message struct {
	Role      Role   `json:"role" yaml:"role"`
	Text      string `json:"text" yaml:"text"`
	Timestamp int64  `json:"ts" yaml:"ts"`
}

func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Thread is one conversation. Timestamps are unix milliseconds so the
// persisted payload stays compatible with collections written by the web
// client.
type Thread struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt int64     `json:"created_at" yaml:"created_at"`
}

func NewThread(now time.Time) Thread {
	return Thread{
		ID:        uuid.NewString(),
		Title:     DefaultThreadTitle,
		Messages:  []Message{},
		CreatedAt: now.UnixMilli(),
	}
}

func (t Thread) Created() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// DisplayTitle falls back to a placeholder for empty titles.
func (t Thread) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return "Untitled"
	}
	return t.Title
}

func (t Thread) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// LastAssistantText returns the text of the newest assistant message.
func (t Thread) LastAssistantText() (string, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleAssistant {
			return t.Messages[i].Text, true
		}
	}
	return "", false
}

// Clone returns a copy that does not share the message slice.
func (t Thread) Clone() Thread {
	out := t
	out.Messages = append(make([]Message, 0, len(t.Messages)), t.Messages...)
	return out
}

func CloneThreads(in []Thread) []Thread {
	out := make([]Thread, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme maps anything unknown to the dark theme.
func ParseTheme(s string) Theme {
	if Theme(strings.ToLower(strings.TrimSpace(s))) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
