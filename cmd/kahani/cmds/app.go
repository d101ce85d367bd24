package cmds

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/config"
	"github.com/go-go-golems/kahani/pkg/conversation"
	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/logging"
	"github.com/go-go-golems/kahani/pkg/persistence/chatstore"
	"github.com/go-go-golems/kahani/pkg/persistence/kvstore"
	"github.com/go-go-golems/kahani/pkg/redisstream"
	"github.com/go-go-golems/kahani/pkg/session"
)

// AnnotationTUI marks commands that take over the terminal. Their logs go to
// a file unless --log-file says otherwise.
const AnnotationTUI = "kahani/tui"

type settingsKey struct{}

var errSettingsNotInitialized = errors.New("settings not initialized")

// InitSettings loads settings for cmd and configures logging. It is meant
// to run as the root PersistentPreRunE.
func InitSettings(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	s, err := config.Load(v)
	if err != nil {
		return err
	}

	logFile := s.Log.File
	if logFile == "" && cmd.Annotations[AnnotationTUI] != "" {
		logFile = filepath.Join(config.DefaultDataDir(), "kahani.log")
	}
	// the closer is left to process exit; lumberjack flushes on every write
	if _, err := logging.InitLogger(logging.Settings{
		Level:      s.Log.Level,
		Format:     s.Log.Format,
		File:       logFile,
		WithCaller: s.Log.WithCaller,
	}); err != nil {
		return err
	}
	log.Debug().Str("config", v.ConfigFileUsed()).Str("storage", s.Storage.Backend).Msg("settings loaded")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, settingsKey{}, s))
	return nil
}

func settingsFrom(cmd *cobra.Command) (config.Settings, error) {
	if ctx := cmd.Context(); ctx != nil {
		if s, ok := ctx.Value(settingsKey{}).(config.Settings); ok {
			return s, nil
		}
	}
	return config.Settings{}, errSettingsNotInitialized
}

// App wires storage, the event bus, the conversation store and the
// generation client together.
type App struct {
	Settings   config.Settings
	KV         kvstore.Store
	Threads    *chatstore.ThreadStore
	PubSub     *redisstream.PubSub
	Store      *conversation.Store
	Client     *generation.Client
	Controller *session.Controller

	sink *events.PublisherSink
}

// EventSettings maps the events section onto the transport settings.
func EventSettings(s config.Settings) redisstream.Settings {
	return redisstream.Settings{
		Enabled:  s.Events.Redis.Enabled,
		Addr:     s.Events.Redis.Addr,
		Group:    s.Events.Redis.Group,
		Consumer: s.Events.Redis.Consumer,
	}
}

func NewClient(s config.Settings) *generation.Client {
	var opts []generation.ClientOption
	if s.API.Timeout > 0 {
		opts = append(opts, generation.WithHTTPClient(&http.Client{Timeout: s.API.Timeout}))
	}
	return generation.NewClient(s.API.BaseURL, opts...)
}

// OpenApp builds an App. es overrides the event transport settings, which
// lets each TUI subscribe with a consumer group of its own.
func OpenApp(ctx context.Context, s config.Settings, es redisstream.Settings) (*App, error) {
	kv, err := kvstore.Open(ctx, s.KVSettings())
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	app := &App{Settings: s, KV: kv, Threads: chatstore.NewThreadStore(kv)}

	ps, err := redisstream.Build(es)
	if err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "open event bus")
	}
	app.PubSub = ps
	app.sink = events.NewPublisherSink(ps.Publisher, s.Events.Redis.Stream)

	store, err := conversation.Open(ctx, app.Threads, app.Threads, conversation.WithSink(app.sink))
	if err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "load conversations")
	}
	app.Store = store
	app.Client = NewClient(s)
	app.Controller = session.NewController(store, app.Client,
		session.WithPolicy(s.RevealPolicy()),
		session.WithRevealDelay(s.Reveal.Delay),
	)
	return app, nil
}

// Origin is the stamp carried by events this App publishes.
func (a *App) Origin() string {
	return a.sink.Origin()
}

func (a *App) Params() session.Params {
	return session.Params{
		MaxLength:   a.Settings.Generate.MaxLength,
		Temperature: a.Settings.Generate.Temperature,
	}
}

func (a *App) Close() error {
	var firstErr error
	if a.Controller != nil {
		a.Controller.StopReveal()
	}
	if a.PubSub != nil {
		if err := a.PubSub.Close(); err != nil {
			firstErr = err
		}
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openAppFromCmd opens the App with the configured event settings.
func openAppFromCmd(cmd *cobra.Command) (*App, error) {
	s, err := settingsFrom(cmd)
	if err != nil {
		return nil, err
	}
	return OpenApp(cmd.Context(), s, EventSettings(s))
}
