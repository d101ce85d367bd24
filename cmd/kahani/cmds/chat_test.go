package cmds

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/kahani/pkg/config"
)

func TestUIEventSettings(t *testing.T) {
	var s config.Settings
	s.Events.Redis = config.EventsRedisSettings{Addr: "localhost:6379", Stream: "kahani.threads", Group: "kahani-tail", Consumer: "tail-1"}

	es := uiEventSettings(s)
	require.False(t, es.Enabled)
	require.Equal(t, "kahani-tail", es.Group)

	s.Events.Redis.Enabled = true
	a := uiEventSettings(s)
	b := uiEventSettings(s)
	require.True(t, strings.HasPrefix(a.Group, uiConsumerGroup+"-"))
	require.NotEqual(t, a.Group, b.Group)
	require.NotEqual(t, a.Consumer, b.Consumer)
	require.Equal(t, "localhost:6379", a.Addr)
}

func TestPrepareUIEvents_InProcessSkipsRedis(t *testing.T) {
	var s config.Settings
	s.Events.Redis = config.EventsRedisSettings{Addr: "127.0.0.1:1", Stream: "kahani.threads"}
	es, err := prepareUIEvents(context.Background(), s)
	require.NoError(t, err)
	require.False(t, es.Enabled)
}

func TestPrepareUIEvents_CreatesGroup(t *testing.T) {
	addr := os.Getenv("KAHANI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KAHANI_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	var s config.Settings
	s.Events.Redis = config.EventsRedisSettings{Enabled: true, Addr: addr, Stream: "kahani.test.ui"}

	es, err := prepareUIEvents(ctx, s)
	require.NoError(t, err)
	// creating it again is a no-op
	require.NoError(t, es.EnsureGroup(ctx, s.Events.Redis.Stream))
	require.NoError(t, es.DropGroup(ctx, s.Events.Redis.Stream))
}
