package cmds

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/config"
)

// NewConfigGroupCommand groups commands that edit the config file in place.
func NewConfigGroupCommand() *cobra.Command {
	cobraCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the kahani configuration file",
	}
	cobraCmd.AddCommand(
		newConfigListCommand(),
		newConfigGetCommand(),
		newConfigSetCommand(),
		newConfigDeleteCommand(),
		newConfigEditCommand(),
	)
	return cobraCmd
}

// configEditor opens the file named by --config, or the default config file.
func configEditor(cmd *cobra.Command) (*config.Editor, error) {
	path, _ := cmd.Flags().GetString("config")
	editor, err := config.NewEditor(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not create config editor")
	}
	log.Debug().Str("config_path", editor.Path()).Msg("using config file")
	return editor, nil
}

func newConfigListCommand() *cobra.Command {
	var concise bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configuration keys and values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := configEditor(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			all := editor.GetAll()
			for _, key := range editor.ListKeys() {
				if concise {
					_, _ = fmt.Fprintln(out, key)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", key, config.FormatValue(all[key]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&concise, "concise", "c", false, "Only show keys")
	return cmd
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := configEditor(cmd)
			if err != nil {
				return err
			}
			value, err := editor.Get(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), config.FormatValue(value))
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := configEditor(cmd)
			if err != nil {
				return err
			}
			if err := editor.Set(args[0], args[1]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}

func newConfigDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := configEditor(cmd)
			if err != nil {
				return err
			}
			if err := editor.Delete(args[0]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}

func newConfigEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the configuration file in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editorBin := os.Getenv("EDITOR")
			if editorBin == "" {
				editorBin = "vim"
			}
			editor, err := configEditor(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(editor.Path()), 0o755); err != nil {
				return errors.Wrap(err, "could not create config directory")
			}

			editCmd := exec.Command(editorBin, editor.Path())
			editCmd.Stdin = os.Stdin
			editCmd.Stdout = os.Stdout
			editCmd.Stderr = os.Stderr
			return editCmd.Run()
		},
	}
}
