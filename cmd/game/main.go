// Command game plays the devil's contract game in the terminal.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/game"
	"github.com/tatianab/devil-deal/internal/logging"
	"github.com/tatianab/devil-deal/internal/provider"
	"github.com/tatianab/devil-deal/internal/tui"
	"github.com/tatianab/devil-deal/internal/validate"
	"go.uber.org/zap"
)

// flags shared by every command.
type flags struct {
	configPath   string
	settingsPath string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "game",
		Short: "Negotiate with a devil over a contract full of loopholes",
		Long: `Each round the devil offers a contract. Read it, find the loopholes and
argue them away before you sign, or walk away. Every loophole you leave in
place takes its toll when you accept.

Without a configured generator the game plays with built-in content.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return play(cmd, f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&f.settingsPath, "settings", "", "settings store (default: user config dir)")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSettingsCmd(f))
	root.AddCommand(newValidateCmd())
	root.AddCommand(newFallbackCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveSettings returns the settings store location.
func (f *flags) resolveSettings() (string, error) {
	if f.settingsPath != "" {
		return f.settingsPath, nil
	}
	return config.DefaultSettingsPath()
}

func (f *flags) load() (*config.Config, error) {
	settings, err := f.resolveSettings()
	if err != nil {
		return nil, fmt.Errorf("locate settings: %w", err)
	}
	cfg, err := config.LoadConfig(f.configPath, settings)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func play(cmd *cobra.Command, f *flags) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}

	// The alternate screen owns stdout, so logs go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "devil-deal.log")
	}
	logger, err := logging.New(cfg.Log, f.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	v, err := validate.New()
	if err != nil {
		return err
	}
	client, err := provider.New(cmd.Context(), cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}
	defer client.Close()

	orch := engine.New(client, v, logger, engineOptions(cfg.Generation))
	machine := game.New(cfg.Game, orch, logger)
	logger.Info("starting game", zap.Stringer("provider", cfg.Provider), zap.Int64("seed", cfg.Game.Seed))

	if err := tui.Run(machine, client.Name()); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func engineOptions(g config.GenerationConfig) engine.Options {
	return engine.Options{
		MaxAttempts: g.MaxAttempts,
		BackoffBase: g.BackoffBase,
		RetryDelay:  g.RetryDelay,
		RepairDelay: g.RepairDelay,
		CallTimeout: g.CallTimeout,
	}
}
