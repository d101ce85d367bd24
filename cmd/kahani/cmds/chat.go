package cmds

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/kahani/pkg/config"
	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/redisstream"
	"github.com/go-go-golems/kahani/pkg/ui"
)

const uiConsumerGroup = "kahani-ui"

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "chat",
		Short:       "Open the interactive story chat",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{AnnotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunChat(cmd)
		},
	}
}

// uiEventSettings gives every TUI process its own consumer group, so each
// one sees every event on the stream.
func uiEventSettings(s config.Settings) redisstream.Settings {
	es := EventSettings(s)
	if es.Enabled {
		suffix := uuid.NewString()[:8]
		es.Group = uiConsumerGroup + "-" + suffix
		es.Consumer = "ui-" + suffix
	}
	return es
}

// prepareUIEvents creates the TUI consumer group at the end of the stream
// before anything subscribes, so the program starts without replaying
// history.
func prepareUIEvents(ctx context.Context, s config.Settings) (redisstream.Settings, error) {
	es := uiEventSettings(s)
	if err := es.EnsureGroup(ctx, s.Events.Redis.Stream); err != nil {
		return es, err
	}
	return es, nil
}

// RunChat runs the TUI until the user quits. With redis events enabled,
// changes other processes publish are reloaded into the running shell.
func RunChat(cmd *cobra.Command) error {
	s, err := settingsFrom(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	es, err := prepareUIEvents(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer dropCancel()
		if err := es.DropGroup(dropCtx, s.Events.Redis.Stream); err != nil {
			log.Warn().Err(err).Msg("chat: drop consumer group")
		}
	}()

	app, err := OpenApp(ctx, s, es)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("chat: close")
		}
	}()

	var opts []ui.Option
	if es.Enabled {
		opts = append(opts, ui.WithRemoteSync(app.Threads))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	model := ui.New(ctx, app.Controller, app.Params(), opts...)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(egCtx))

	if es.Enabled {
		router := events.NewRouter(app.PubSub.Subscriber)
		router.AddHandler("ui-remote-sync", s.Events.Redis.Stream, ui.ThreadEventForwardFunc(p, app.Origin()))
		eg.Go(func() error {
			return router.Run(egCtx)
		})
	}
	eg.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "run chat ui")
		}
		return nil
	})
	return eg.Wait()
}
