package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/chat"
)

func NewThemeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [dark|light|toggle]",
		Short:     "Print or change the stored UI theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"dark", "light", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openAppFromCmd(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			theme := app.Store.Theme()
			if len(args) > 0 {
				switch arg := strings.ToLower(args[0]); arg {
				case "toggle":
					theme, err = app.Store.ToggleTheme(cmd.Context())
				case string(chat.ThemeDark), string(chat.ThemeLight):
					theme = chat.Theme(arg)
					err = app.Store.SetTheme(cmd.Context(), theme)
				default:
					return errors.Errorf("unknown theme %q", args[0])
				}
				if err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), theme)
			return nil
		},
	}
}
