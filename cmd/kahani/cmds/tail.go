package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/redisstream"
)

func NewTailCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow thread changes published on the redis stream",
		Long: `Prints every thread change other kahani processes publish. Requires
events.redis.enabled; the in-process bus only reaches its own process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settingsFrom(cmd)
			if err != nil {
				return err
			}
			if !s.Events.Redis.Enabled {
				return errors.New("tail needs events.redis.enabled (--events-redis)")
			}
			if output != "text" && output != "json" {
				return errors.Errorf("unknown output format %q", output)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			es := EventSettings(s)
			if err := es.EnsureGroup(ctx, s.Events.Redis.Stream); err != nil {
				return err
			}
			ps, err := redisstream.Build(es)
			if err != nil {
				return err
			}
			defer func() { _ = ps.Close() }()

			out := cmd.OutOrStdout()
			router := events.NewRouter(ps.Subscriber)
			router.AddHandler("tail-printer", s.Events.Redis.Stream, events.ThreadEventHandler(func(ev events.ThreadEvent) error {
				return printEvent(out, output, ev)
			}))

			log.Info().Str("stream", s.Events.Redis.Stream).Str("group", es.Group).Msg("tailing thread events")
			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(egCtx)
			})
			err = eg.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	return cmd
}

func printEvent(w io.Writer, format string, ev events.ThreadEvent) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(ev)
	}
	line := fmt.Sprintf("%s %-16s %s", ev.At.Local().Format("15:04:05.000"), ev.Type, shortID(ev.ThreadID))
	if ev.Title != "" {
		line += " title=" + ev.Title
	}
	if ev.Role != "" {
		line += " role=" + ev.Role
	}
	if ev.Text != "" {
		line += fmt.Sprintf(" text=%q", ev.Text)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
