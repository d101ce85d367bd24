package main

import (
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/cmd/kahani/cmds"
	"github.com/go-go-golems/kahani/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "kahani",
	Short: "kahani is a terminal client for an Urdu story generator",
	Long: `kahani keeps story chats in local threads and asks the story service to
continue your prompts. Run without a subcommand to open the chat.`,
	Args:          cobra.NoArgs,
	Annotations:   map[string]string{cmds.AnnotationTUI: "true"},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// settings and the logger depend on flags, so both are set up here
		// rather than in init
		return cmds.InitSettings(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmds.RunChat(cmd)
	},
}

func initRootCmd() {
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewGenerateCommand(),
		cmds.NewThreadsCommand(),
		cmds.NewThemeCommand(),
		cmds.NewHealthCommand(),
		cmds.NewModelInfoCommand(),
		cmds.NewTailCommand(),
		cmds.NewConfigGroupCommand(),
	)
}

func main() {
	initRootCmd()
	err := rootCmd.Execute()
	cobra.CheckErr(err)
}
