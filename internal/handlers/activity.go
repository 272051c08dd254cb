package handlers

import (
	"encoding/json"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GetProjectActivity pages through a project's audit trail, newest first.
// ?action= and ?target= narrow it to one kind of change or one task.
func GetProjectActivity(c *fiber.Ctx) error {
	projectID, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	if err := requireProject(c, projectID); err != nil {
		return err
	}

	filter := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("project_id = ?", projectID)
		if action := c.Query("action"); action != "" {
			tx = tx.Where("action_type = ?", action)
		}
		if target, err := uuid.Parse(c.Query("target")); err == nil {
			tx = tx.Where("target_id = ?", target)
		}
		return tx
	}
	page, limit, offset := pagination(c)

	var total int64
	if err := db(c).Model(&models.Activity{}).Scopes(filter).Count(&total).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load activity")
	}
	activities := []models.Activity{}
	err := db(c).Scopes(filter).
		Preload("User").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load activity")
	}

	return c.JSON(fiber.Map{
		"activities": activities,
		"total":      total,
		"page":       page,
		"limit":      limit,
	})
}

// LogActivity records an audit entry. Write failures are logged and dropped.
func LogActivity(projectID, userID uuid.UUID, actionType string, targetID *uuid.UUID, metadata map[string]interface{}) {
	activity := models.Activity{
		ProjectID:  projectID,
		UserID:     userID,
		ActionType: actionType,
		TargetID:   targetID,
	}

	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			activity.Metadata = datatypes.JSON(data)
		}
	}

	if err := database.DB.Create(&activity).Error; err != nil {
		logger.Log.Warn("activity log write failed",
			zap.String("project_id", projectID.String()),
			zap.String("action", actionType),
			zap.Error(err),
		)
	}
}
