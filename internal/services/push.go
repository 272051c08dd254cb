package services

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PushService sends push notifications through Firebase Cloud Messaging.
type PushService struct {
	client *messaging.Client
}

// Push is disabled until InitPush succeeds.
var Push = &PushService{}

// InitPush enables push notifications from the shared firebase app. A nil app
// leaves push disabled.
func InitPush(ctx context.Context, app *firebase.App) {
	if app == nil {
		logger.Log.Info("fcm: no service account configured, push notifications disabled")
		Push = &PushService{}
		return
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Log.Warn("fcm: messaging client unavailable, push notifications disabled", zap.Error(err))
		Push = &PushService{}
		return
	}

	Push = &PushService{client: client}
	logger.Log.Info("fcm: push notifications enabled")
}

func (p *PushService) Enabled() bool {
	return p != nil && p.client != nil
}

// SendToUser sends a push notification to a user by their ID.
// No-op if push is not configured or the user has no device token.
func (p *PushService) SendToUser(userID uuid.UUID, title, body string, data map[string]string) {
	if !p.Enabled() {
		return
	}

	var user models.User
	if err := database.DB.Select("fcm_token").First(&user, "id = ?", userID).Error; err != nil {
		return
	}
	if user.FCMToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := p.client.Send(context.Background(), msg); err != nil {
		logger.Log.Warn("fcm: send failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
