package cli

import (
	"time"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/handlers"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/routes"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(e *env) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := e.cfg

			if !skipMigrate {
				if err := database.Migrate(); err != nil {
					return err
				}
			}

			fb := services.NewFirebaseApp(ctx, cfg)
			services.InitPush(ctx, fb)
			services.InitStorage(ctx, fb, cfg.StorageBucket, cfg.UploadDir)
			services.InitSessions(ctx, cfg)
			services.InitEvents(cfg.AMQPURL)
			defer services.Events.Close()

			handlers.MaxUploadBytes = cfg.MaxUploadBytes
			app := routes.NewApp(routes.Options{
				BodyLimit: int(cfg.MaxUploadBytes) * 4,
				FilesDir:  cfg.UploadDir,
			})

			go func() {
				<-ctx.Done()
				logger.Log.Info("shutting down")
				if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
					logger.Log.Warn("shutdown", zap.Error(err))
				}
			}()

			logger.Log.Info("listening", zap.String("port", cfg.Port))
			return app.Listen(":" + cfg.Port)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not auto-migrate the schema on start")
	return cmd
}
