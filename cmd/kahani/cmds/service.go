package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/kahani/pkg/generation"
)

// The service commands only talk to the story service, so they skip
// opening storage and the event bus.

type HealthCommand struct {
	*cmds.CommandDescription
	settingsHolder
}

type ModelInfoCommand struct {
	*cmds.CommandDescription
	settingsHolder
}

func newServiceDescription(name, short string) (*cmds.CommandDescription, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	return cmds.NewCommandDescription(
		name,
		cmds.WithShort(short),
		cmds.WithSections(glazedSection, commandSettingsSection),
	), nil
}

func NewHealthCommand() *cobra.Command {
	desc, err := newServiceDescription("health", "Check that the story service is up")
	cobra.CheckErr(err)
	return buildGlazeCommand(&HealthCommand{CommandDescription: desc})
}

func (c *HealthCommand) RunIntoGlazeProcessor(ctx context.Context, _ *values.Values, gp middlewares.Processor) error {
	s, err := c.loadedSettings()
	if err != nil {
		return err
	}
	h, err := NewClient(s).Health(ctx)
	if err != nil {
		return err
	}
	return gp.AddRow(ctx, types.NewRow(
		types.MRP("status", h.Status),
		types.MRP("message", h.Message),
	))
}

func NewModelInfoCommand() *cobra.Command {
	desc, err := newServiceDescription("model-info", "Print details about the model behind the story service")
	cobra.CheckErr(err)
	return buildGlazeCommand(&ModelInfoCommand{CommandDescription: desc})
}

func (c *ModelInfoCommand) RunIntoGlazeProcessor(ctx context.Context, _ *values.Values, gp middlewares.Processor) error {
	s, err := c.loadedSettings()
	if err != nil {
		return err
	}
	info, err := NewClient(s).ModelInfo(ctx)
	if err != nil {
		return err
	}
	return gp.AddRow(ctx, modelInfoRow(info))
}

func modelInfoRow(info *generation.ModelInfo) types.Row {
	return types.NewRow(
		types.MRP("model_type", info.ModelType),
		types.MRP("vocabulary_size", info.VocabularySize),
		types.MRP("total_tokens", info.TotalTokens),
		types.MRP("is_trained", info.IsTrained),
		types.MRP("interpolation_weights", info.InterpolationWeights),
	)
}

var (
	_ cmds.GlazeCommand = &HealthCommand{}
	_ cmds.GlazeCommand = &ModelInfoCommand{}
)
