package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/config"
)

// settingsHolder is embedded by glazed commands. The settings are handed
// over in PreRunE, after the root command loaded them.
type settingsHolder struct {
	settings *config.Settings
}

func (h *settingsHolder) setSettings(s config.Settings) { h.settings = &s }

func (h *settingsHolder) loadedSettings() (config.Settings, error) {
	if h.settings == nil {
		return config.Settings{}, errSettingsNotInitialized
	}
	return *h.settings, nil
}

type glazeCommand interface {
	cmds.GlazeCommand
	setSettings(s config.Settings)
}

// buildGlazeCommand turns c into a cobra command with the glazed output
// flags (--output, --fields, ...).
func buildGlazeCommand(c glazeCommand) *cobra.Command {
	cobraCmd, err := cli.BuildCobraCommand(c)
	cobra.CheckErr(err)
	cobraCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		s, err := settingsFrom(cmd)
		if err != nil {
			return err
		}
		c.setSettings(s)
		return nil
	}
	return cobraCmd
}
