package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/generation"
)

func NewGenerateCommand() *cobra.Command {
	var (
		threadID  string
		newThread bool
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate one story continuation and print it",
		Long: `Sends the prompt to the story service and appends the exchange to the
active thread (or --thread). Without arguments the prompt is read from
stdin when it is not a terminal. An empty prompt is allowed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if len(args) == 0 && !isatty.IsTerminal(os.Stdin.Fd()) {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read prompt")
				}
				prompt = strings.TrimRight(string(b), "\n")
			}

			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			ctx := cmd.Context()

			switch {
			case newThread:
				if _, err := app.Controller.NewThread(ctx); err != nil {
					return err
				}
			case threadID != "":
				id, err := resolveThread(app, threadID)
				if err != nil {
					return err
				}
				if err := app.Controller.Select(ctx, id); err != nil {
					return err
				}
			}

			params := app.Params()
			req := generation.Request{Prefix: prompt, MaxLength: params.MaxLength, Temperature: params.Temperature}
			for _, w := range req.Validate() {
				log.Warn().Msg(w)
			}

			out := cmd.OutOrStdout()
			streamed := false
			outcome, err := app.Controller.Run(ctx, prompt, params, func(tok string) {
				streamed = true
				_, _ = fmt.Fprint(out, tok)
			})
			if err != nil {
				return err
			}
			if outcome.Banner != "" {
				return errors.New(outcome.Banner)
			}

			th, ok := app.Store.Thread(outcome.ThreadID)
			if !ok {
				return errors.Errorf("thread %s disappeared", outcome.ThreadID)
			}
			if outcome.Failed {
				text, _ := th.LastAssistantText()
				return errors.New(text)
			}
			if !streamed {
				text, _ := th.LastAssistantText()
				_, _ = fmt.Fprint(out, text)
			}
			_, _ = fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id (or unique id prefix) to continue")
	cmd.Flags().BoolVar(&newThread, "new", false, "Start a new thread for this prompt")
	cmd.MarkFlagsMutuallyExclusive("thread", "new")
	return cmd
}
