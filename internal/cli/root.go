package cli

import (
	"fmt"
	"os"

	"github.com/arnold/phasetrack-api/internal/config"
	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/spf13/cobra"
)

// env is filled in by the root command before any subcommand runs.
type env struct {
	cfg *config.Config
}

func NewRootCmd(version string) *cobra.Command {
	e := &env{}

	cmd := &cobra.Command{
		Use:          "phasetrack",
		Short:        "Project phase and task completion tracking API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if _, err := logger.Init(cfg.LogLevel); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			middleware.Configure(cfg)
			if err := database.Connect(cfg); err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			e.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Log.Sync()
		},
	}

	cmd.AddCommand(newServeCmd(e))
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd(e))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
