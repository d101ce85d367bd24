package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewThread_Defaults(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a := NewThread(now)
	b := NewThread(now)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, DefaultThreadTitle, a.Title)
	require.Empty(t, a.Messages)
	require.Equal(t, int64(1700000000000), a.CreatedAt)
}

func TestRole_DecodesLegacyBot(t *testing.T) {
	var th Thread
	raw := `{"id":"x1","title":"t","messages":[{"role":"user","text":"hi","ts":1},{"role":"bot","text":"yo","ts":2}],"created_at":1}`
	require.NoError(t, json.Unmarshal([]byte(raw), &th))
	require.Len(t, th.Messages, 2)
	require.Equal(t, RoleUser, th.Messages[0].Role)
	require.Equal(t, RoleAssistant, th.Messages[1].Role)

	var m Message
	require.Error(t, json.Unmarshal([]byte(`{"role":"system","text":""}`), &m))
}

func TestRole_DecodesLegacyBotFromYAML(t *testing.T) {
	var msgs []Message
	require.NoError(t, yaml.Unmarshal([]byte("- role: bot\n  text: yo\n- role: USER\n  text: hi\n"), &msgs))
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Equal(t, RoleUser, msgs[1].Role)

	var m Message
	require.Error(t, yaml.Unmarshal([]byte("role: system\n"), &m))
}

func TestThread_CloneDoesNotShareMessages(t *testing.T) {
	th := Thread{ID: "a", Messages: []Message{{Role: RoleUser, Text: "one"}}}
	c := th.Clone()
	c.Messages[0].Text = "changed"
	c.Messages = append(c.Messages, Message{Role: RoleAssistant, Text: "two"})

	require.Equal(t, "one", th.Messages[0].Text)
	require.Len(t, th.Messages, 1)
}

func TestThread_LastAssistantText(t *testing.T) {
	th := Thread{Messages: []Message{
		{Role: RoleAssistant, Text: "first"},
		{Role: RoleUser, Text: "q"},
	}}
	txt, ok := th.LastAssistantText()
	require.True(t, ok)
	require.Equal(t, "first", txt)

	_, ok = Thread{}.LastAssistantText()
	require.False(t, ok)
}

func TestTheme(t *testing.T) {
	require.Equal(t, ThemeLight, ParseTheme("LIGHT"))
	require.Equal(t, ThemeDark, ParseTheme(""))
	require.Equal(t, ThemeDark, ParseTheme("sepia"))
	require.Equal(t, ThemeLight, ThemeDark.Toggle())
	require.Equal(t, ThemeDark, ThemeLight.Toggle())
}
