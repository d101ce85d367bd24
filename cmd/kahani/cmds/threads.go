package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/conversation"
	"github.com/go-go-golems/kahani/pkg/persistence/chatstore"
)

const renamePrompt = "نیا عنوان:"

func NewThreadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"thread"},
		Short:   "Manage stored chat threads",
	}
	listCmd, err := NewThreadsListCommand()
	cobra.CheckErr(err)
	cmd.AddCommand(
		buildGlazeCommand(listCmd),
		newThreadsShowCommand(),
		newThreadsNewCommand(),
		newThreadsRenameCommand(),
		newThreadsDeleteCommand(),
		newThreadsSelectCommand(),
		newThreadsExportCommand(),
		newThreadsImportCommand(),
	)
	return cmd
}

// resolveThread accepts a full id or a unique id prefix. An empty ref names
// the active thread.
func resolveThread(app *App, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if th, ok := app.Store.Active(); ok {
			return th.ID, nil
		}
		return "", errors.New("no active thread")
	}
	var match string
	for _, th := range app.Store.List() {
		if th.ID == ref {
			return th.ID, nil
		}
		if strings.HasPrefix(th.ID, ref) {
			if match != "" {
				return "", errors.Errorf("thread prefix %q is ambiguous", ref)
			}
			match = th.ID
		}
	}
	if match == "" {
		return "", errors.Wrapf(conversation.ErrThreadNotFound, "thread %s", ref)
	}
	return match, nil
}

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// pickThread asks for a thread when none was named on the command line.
func pickThread(app *App, args []string, title string) (string, error) {
	if len(args) > 0 {
		return resolveThread(app, args[0])
	}
	threads := app.Store.List()
	if !interactive() || len(threads) == 0 {
		return resolveThread(app, "")
	}
	id := app.Store.ActiveID()
	opts := make([]huh.Option[string], 0, len(threads))
	for _, th := range threads {
		opts = append(opts, huh.NewOption(th.DisplayTitle()+" ("+shortID(th.ID)+")", th.ID))
	}
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title(title).Options(opts...).Value(&id),
	)).WithTheme(huh.ThemeCharm()).Run()
	if err != nil {
		return "", errors.Wrap(err, "select thread")
	}
	return id, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

// writeStructured prints a document as json or yaml.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

type ThreadsListCommand struct {
	*cmds.CommandDescription
	settingsHolder
}

type ThreadsListSettings struct {
	Limit int `glazed:"limit"`
}

func NewThreadsListCommand() (*ThreadsListCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List threads, newest first"),
		cmds.WithLong("List stored threads with their message counts. The active thread has active=true."),
		cmds.WithFlags(
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Limit number of threads (0 = no limit)"),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &ThreadsListCommand{CommandDescription: desc}, nil
}

func (c *ThreadsListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	ls := &ThreadsListSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, ls); err != nil {
		return err
	}
	s, err := c.loadedSettings()
	if err != nil {
		return err
	}
	app, err := OpenApp(ctx, s, EventSettings(s))
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return addThreadRows(ctx, gp, app.Store, ls.Limit)
}

var _ cmds.GlazeCommand = &ThreadsListCommand{}

func addThreadRows(ctx context.Context, gp middlewares.Processor, store *conversation.Store, limit int) error {
	activeID := store.ActiveID()
	for i, th := range store.List() {
		if limit > 0 && i >= limit {
			break
		}
		row := types.NewRow(
			types.MRP("active", th.ID == activeID),
			types.MRP("id", th.ID),
			types.MRP("title", th.DisplayTitle()),
			types.MRP("messages", len(th.Messages)),
			types.MRP("created_at", formatTime(th.CreatedAt)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func newThreadsShowCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show [thread]",
		Short: "Print the messages of a thread (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}
			id, err := resolveThread(app, ref)
			if err != nil {
				return err
			}
			th, _ := app.Store.Thread(id)
			if output != "text" {
				return writeStructured(cmd.OutOrStdout(), output, th)
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%s (%s)\n\n", th.DisplayTitle(), th.ID)
			for _, m := range th.Messages {
				_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", formatTime(m.Timestamp), m.Role, m.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newThreadsNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a thread and make it active",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			th, err := app.Store.Create(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
				if err := app.Store.Rename(cmd.Context(), th.ID, args[0]); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), th.ID)
			return nil
		},
	}
}

func newThreadsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename [thread] [title]",
		Short: "Rename a thread; prompts for missing arguments",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			id, err := pickThread(app, args, "Thread to rename")
			if err != nil {
				return err
			}
			th, _ := app.Store.Thread(id)

			title := ""
			if len(args) > 1 {
				title = args[1]
			} else if interactive() {
				title = th.Title
				err := huh.NewForm(huh.NewGroup(
					huh.NewInput().Title(renamePrompt).Value(&title),
				)).WithTheme(huh.ThemeCharm()).Run()
				if err != nil && !errors.Is(err, huh.ErrUserAborted) {
					return errors.Wrap(err, "read title")
				}
				if err != nil {
					title = ""
				}
			} else {
				return errors.New("missing title")
			}

			// an empty answer keeps the current title
			if strings.TrimSpace(title) == "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "title unchanged: %s\n", th.DisplayTitle())
				return nil
			}
			return app.Store.Rename(cmd.Context(), id, title)
		},
	}
}

func newThreadsDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete [thread]",
		Short: "Delete a thread",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			id, err := pickThread(app, args, "Thread to delete")
			if err != nil {
				return err
			}
			th, _ := app.Store.Thread(id)

			if !yes {
				if !interactive() {
					return errors.New("refusing to delete without --yes")
				}
				confirmed := false
				err := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete %q?", th.DisplayTitle())).
						Affirmative("Delete").
						Negative("Keep").
						Value(&confirmed),
				)).WithTheme(huh.ThemeCharm()).Run()
				if err != nil && !errors.Is(err, huh.ErrUserAborted) {
					return errors.Wrap(err, "confirm delete")
				}
				if !confirmed {
					return nil
				}
			}
			if err := app.Controller.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newThreadsSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select [thread]",
		Short: "Make a thread the active one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			id, err := pickThread(app, args, "Thread to open")
			if err != nil {
				return err
			}
			return app.Controller.Select(cmd.Context(), id)
		},
	}
}

func newThreadsExportCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every thread and the theme as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			b, err := chatstore.ExportYAML(app.Store.List(), app.Store.Theme())
			if err != nil {
				return err
			}
			if file == "" || file == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return errors.Wrapf(os.WriteFile(file, b, 0o600), "write %s", file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Output file (default stdout)")
	return cmd
}

func newThreadsImportCommand() *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load threads from a YAML export, replacing the current ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if args[0] == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}
			threads, theme, err := chatstore.ImportYAML(b)
			if err != nil {
				return err
			}

			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if merge {
				threads = mergeThreads(threads, app.Store.List())
			}
			if err := app.Store.ReplaceThreads(cmd.Context(), threads); err != nil {
				return err
			}
			if err := app.Store.SetTheme(cmd.Context(), theme); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d threads\n", len(threads))
			return nil
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "Keep existing threads whose ids are not in the file")
	return cmd
}

// mergeThreads puts imported threads first and keeps existing ones that the
// import does not replace.
func mergeThreads(imported, existing []chat.Thread) []chat.Thread {
	seen := make(map[string]struct{}, len(imported))
	out := make([]chat.Thread, 0, len(imported)+len(existing))
	for _, th := range imported {
		seen[th.ID] = struct{}{}
		out = append(out, th)
	}
	for _, th := range existing {
		if _, ok := seen[th.ID]; !ok {
			out = append(out, th)
		}
	}
	return out
}
