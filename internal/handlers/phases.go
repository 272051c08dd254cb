package handlers

import (
	"fmt"
	"strings"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func GetPhases(c *fiber.Ctx) error {
	var phases []models.Phase
	if err := db(c).Order("phase_order ASC").Find(&phases).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load phases")
	}
	return c.JSON(phases)
}

func GetPhase(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid phase ID")
	}
	var phase models.Phase
	if err := db(c).First(&phase, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Phase")
	}
	return c.JSON(phase)
}

func CreatePhase(c *fiber.Ctx) error {
	var req models.PhaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Phase name is required")
	}

	taken, err := nameTaken(db(c), &models.Phase{}, "name", req.Name, uuid.Nil)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create phase")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate phase name")
	}

	phase := models.Phase{Name: req.Name, Description: req.Description}
	if req.Order != nil {
		phase.Order = *req.Order
	} else {
		var max int
		db(c).Model(&models.Phase{}).Select("COALESCE(MAX(phase_order), 0)").Scan(&max)
		phase.Order = max + 1
	}

	if err := db(c).Create(&phase).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create phase")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "New phase created",
		"phase":   phase,
	})
}

func UpdatePhase(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid phase ID")
	}

	var req models.PhaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Phase name is required")
	}

	var phase models.Phase
	if err := db(c).First(&phase, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Phase")
	}

	taken, err := nameTaken(db(c), &models.Phase{}, "name", req.Name, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update phase")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate phase name")
	}

	phase.Name = req.Name
	phase.Description = req.Description
	if req.Order != nil {
		phase.Order = *req.Order
	}
	if err := db(c).Save(&phase).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update phase")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Phase '%s' updated", phase.Name),
		"phase":   phase,
	})
}

// DeletePhase refuses to remove a phase still referenced by a project's
// history or by a task.
func DeletePhase(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid phase ID")
	}

	var phase models.Phase
	if err := db(c).First(&phase, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Phase")
	}

	var refs int64
	err := db(c).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.PhaseHistory{}).Where("phase_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		refs += n
		if err := tx.Model(&models.Task{}).Where("phase_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		refs += n
		if refs > 0 {
			return nil
		}
		return tx.Delete(&phase).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete phase")
	}
	if refs > 0 {
		return fail(c, fiber.StatusConflict, "Phase is used by projects or tasks")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Phase '%s' with ID %s deleted", phase.Name, phase.ID),
	})
}
