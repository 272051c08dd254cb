package services

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/arnold/phasetrack-api/internal/config"
	"github.com/arnold/phasetrack-api/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewFirebaseApp returns nil when no service account is configured or the app
// cannot be created; push and bucket storage then stay disabled.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) *firebase.App {
	if cfg.FCMServiceAccount == "" {
		return nil
	}

	var fbCfg *firebase.Config
	if cfg.StorageBucket != "" {
		fbCfg = &firebase.Config{StorageBucket: cfg.StorageBucket}
	}

	app, err := firebase.NewApp(ctx, fbCfg, option.WithCredentialsFile(cfg.FCMServiceAccount))
	if err != nil {
		logger.Log.Warn("firebase: failed to initialize app", zap.Error(err))
		return nil
	}
	return app
}
