package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/progress"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newEngine is swapped in tests to inject failing collaborators.
var newEngine = func() *progress.Engine {
	return progress.NewEngine(database.DB)
}

// lookupError answers a failed lookup of a path resource: 404 when the row
// is missing, 500 otherwise.
func lookupError(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, fiber.StatusNotFound, what+" not found")
	}
	return fail(c, fiber.StatusInternalServerError, "Failed to load "+strings.ToLower(what))
}

func exists(tx *gorm.DB, model interface{}, id uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(model).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func db(c *fiber.Ctx) *gorm.DB {
	return database.DB.WithContext(c.UserContext())
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(param))
	return id, err == nil
}

func pagination(c *fiber.Ctx) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

// nameTaken reports whether another row of model already uses name,
// compared case-insensitively. exclude is ignored when Nil.
func nameTaken(tx *gorm.DB, model interface{}, column, name string, exclude uuid.UUID) (bool, error) {
	q := tx.Model(model).Where("LOWER("+column+") = ?", strings.ToLower(strings.TrimSpace(name)))
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// progressError maps engine sentinel errors onto HTTP responses.
func progressError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, progress.ErrProjectNotFound):
		return fail(c, fiber.StatusNotFound, "Project not found")
	case errors.Is(err, progress.ErrPhaseNotFound):
		return fail(c, fiber.StatusNotFound, "Phase not found")
	case errors.Is(err, progress.ErrUserNotFound):
		return fail(c, fiber.StatusBadRequest, "Unknown user in leads")
	case errors.Is(err, progress.ErrNoLeads):
		return fail(c, fiber.StatusBadRequest, "At least one phase lead is required")
	case errors.Is(err, progress.ErrInvalidDates):
		return fail(c, fiber.StatusBadRequest, "Phase estimated end date can't be before the phase start date")
	}
	return fail(c, fiber.StatusInternalServerError, "Internal server error")
}
