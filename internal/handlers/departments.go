package handlers

import (
	"fmt"
	"strings"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func GetDepartments(c *fiber.Ctx) error {
	var departments []models.Department
	if err := db(c).Order("name ASC").Find(&departments).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load departments")
	}
	return c.JSON(departments)
}

func CreateDepartment(c *fiber.Ctx) error {
	var req models.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Department name is required")
	}

	taken, err := nameTaken(db(c), &models.Department{}, "name", req.Name, uuid.Nil)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create department")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate department name")
	}

	dept := models.Department{Name: req.Name, Details: req.Details, Active: true}
	if req.Active != nil {
		dept.Active = *req.Active
	}
	if err := db(c).Create(&dept).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create department")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "New department created",
		"department": dept,
	})
}

func UpdateDepartment(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid department ID")
	}

	var req models.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Department name is required")
	}

	var dept models.Department
	if err := db(c).First(&dept, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Department")
	}

	taken, err := nameTaken(db(c), &models.Department{}, "name", req.Name, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update department")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate department name")
	}

	dept.Name = req.Name
	dept.Details = req.Details
	if req.Active != nil {
		dept.Active = *req.Active
	}
	if err := db(c).Save(&dept).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update department")
	}

	return c.JSON(fiber.Map{
		"message":    fmt.Sprintf("Department '%s' updated", dept.Name),
		"department": dept,
	})
}

func DeleteDepartment(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid department ID")
	}

	var dept models.Department
	if err := db(c).First(&dept, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Department")
	}

	var members int64
	if err := db(c).Model(&models.User{}).Where("department_id = ?", id).Count(&members).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete department")
	}
	if members > 0 {
		return fail(c, fiber.StatusConflict, "Department still has users")
	}

	if err := db(c).Delete(&dept).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete department")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Department '%s' with ID %s deleted", dept.Name, dept.ID),
	})
}
