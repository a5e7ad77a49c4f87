package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tatianab/devil-deal/internal/config"
)

func newSettingsCmd(f *flags) *cobra.Command {
	var update config.ProviderConfig
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved generator settings",
		Long: `Without flags, prints the saved provider settings with the credential masked.
With flags, merges them into the saved settings.

Example:
  game settings --provider openai_compatible --model gpt-4o-mini --api-key sk-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := f.resolveSettings()
			if err != nil {
				return fmt.Errorf("locate settings: %w", err)
			}
			current, err := config.LoadSettings(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if update == (config.ProviderConfig{}) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", path, current)
				return nil
			}
			next := current.Merge(update)
			switch next.Name {
			case config.ProviderGemini, config.ProviderOpenAI, config.ProviderProxy, config.ProviderOffline:
			default:
				return fmt.Errorf("unknown provider %q", next.Name)
			}
			if err := config.SaveSettings(path, next); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n%s\n", path, next)
			return nil
		},
	}
	cmd.Flags().StringVar(&update.Name, "provider", "", "gemini, openai_compatible, local_proxy or offline")
	cmd.Flags().StringVar(&update.BaseURL, "base-url", "", "API base URL")
	cmd.Flags().StringVar(&update.Model, "model", "", "model name")
	cmd.Flags().StringVar(&update.APIKey, "api-key", "", "API key")
	return cmd
}
