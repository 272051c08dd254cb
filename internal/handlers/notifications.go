package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var pushTitles = map[models.NotificationKind]string{
	models.NotificationTaskAssigned: "New task assigned",
	models.NotificationPhaseLead:    "You are leading a phase",
}

// GetNotifications lists the caller's notifications, newest first.
// ?unread=true restricts the page to unread ones.
func GetNotifications(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	page, limit, offset := pagination(c)
	unreadOnly := c.QueryBool("unread")

	mine := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("recipient_id = ?", userID)
		if unreadOnly {
			tx = tx.Where("read_at IS NULL")
		}
		return tx
	}

	var total int64
	if err := db(c).Model(&models.Notification{}).Scopes(mine).Count(&total).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load notifications")
	}
	var unread int64
	if err := db(c).Model(&models.Notification{}).Where("recipient_id = ? AND read_at IS NULL", userID).Count(&unread).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load notifications")
	}

	notifications := []models.Notification{}
	err := db(c).Scopes(mine).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load notifications")
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total":         total,
		"unread":        unread,
		"page":          page,
		"limit":         limit,
	})
}

// MarkNotificationRead stamps one of the caller's notifications. Marking an
// already read notification keeps its original timestamp.
func MarkNotificationRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid notification ID")
	}

	res := db(c).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Update("read_at", gorm.Expr("COALESCE(read_at, ?)", time.Now()))
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update notification")
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "Notification not found")
	}

	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

func MarkAllRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	res := db(c).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update notifications")
	}

	return c.JSON(fiber.Map{
		"message": "Notifications marked as read",
		"updated": res.RowsAffected,
	})
}

// RegisterDeviceToken stores the caller's FCM token. An empty token
// unregisters the device.
func RegisterDeviceToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req struct {
		Token *string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == nil {
		return fail(c, fiber.StatusBadRequest, "Token is required")
	}

	if err := db(c).Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", *req.Token).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to save device token")
	}
	return c.JSON(fiber.Map{"message": "Device token saved"})
}

type notice struct {
	kind    models.NotificationKind
	project uuid.UUID
	task    *uuid.UUID
	message string
	extra   map[string]string
}

// notify stores one notification per recipient, skipping the actor, and
// pushes it to recipients with a registered device. Failures are only logged.
func notify(actorID uuid.UUID, recipients []uuid.UUID, n notice) {
	var meta datatypes.JSON
	if len(n.extra) > 0 {
		if b, err := json.Marshal(n.extra); err == nil {
			meta = b
		}
	}

	rows := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		if id == actorID {
			continue
		}
		rows = append(rows, models.Notification{
			RecipientID: id,
			ProjectID:   n.project,
			TaskID:      n.task,
			Kind:        n.kind,
			Message:     n.message,
			Metadata:    meta,
		})
	}
	if len(rows) == 0 {
		return
	}
	if err := database.DB.Create(&rows).Error; err != nil {
		logger.Log.Warn("store notifications failed", zap.String("kind", string(n.kind)), zap.Error(err))
		return
	}

	if !services.Push.Enabled() {
		return
	}
	data := map[string]string{"kind": string(n.kind), "projectId": n.project.String()}
	if n.task != nil {
		data["taskId"] = n.task.String()
	}
	for k, v := range n.extra {
		data[k] = v
	}
	for _, row := range rows {
		go services.Push.SendToUser(row.RecipientID, pushTitles[n.kind], n.message, data)
	}
}

func notifyAssignee(task *models.Task, actorID uuid.UUID) {
	if task.AssigneeID == nil {
		return
	}
	id := task.ID
	notify(actorID, []uuid.UUID{*task.AssigneeID}, notice{
		kind:    models.NotificationTaskAssigned,
		project: task.ProjectID,
		task:    &id,
		message: fmt.Sprintf("You have been assigned %q", task.Name),
	})
}

func notifyPhaseLeads(project *models.Project, entry *models.PhaseHistory, actorID uuid.UUID) {
	leads := make([]uuid.UUID, 0, len(entry.Leads))
	for _, u := range entry.Leads {
		leads = append(leads, u.ID)
	}
	phase := entry.PhaseID.String()
	if project.CurrentPhase != nil {
		phase = project.CurrentPhase.Name
	}
	notify(actorID, leads, notice{
		kind:    models.NotificationPhaseLead,
		project: project.ID,
		message: fmt.Sprintf("%s moved to %s with you as lead", project.Name, phase),
		extra:   map[string]string{"phaseId": entry.PhaseID.String()},
	})
}
