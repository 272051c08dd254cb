package handlers

import (
	"fmt"
	"strings"

	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func GetUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := db(c).Preload("Department").Order("name ASC").Find(&users).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load users")
	}
	return c.JSON(users)
}

func GetUser(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid user ID")
	}
	var user models.User
	if err := db(c).Preload("Department").First(&user, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "User")
	}
	return c.JSON(user)
}

func emailTaken(c *fiber.Ctx, email string, exclude uuid.UUID) (bool, error) {
	return nameTaken(db(c), &models.User{}, "email", email, exclude)
}

// checkDepartment returns a non-nil response error unless the department exists.
func checkDepartment(c *fiber.Ctx, id uuid.UUID) error {
	found, err := exists(db(c), &models.Department{}, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load department")
	}
	if !found {
		return fail(c, fiber.StatusBadRequest, "Department not found")
	}
	return nil
}

func CreateUser(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" || req.DepartmentID == uuid.Nil {
		return fail(c, fiber.StatusBadRequest, "All fields are required")
	}
	if !models.ValidEmail(req.Email) {
		return fail(c, fiber.StatusBadRequest, "Invalid email address")
	}
	if err := checkDepartment(c, req.DepartmentID); err != nil {
		return err
	}

	taken, err := emailTaken(c, req.Email, uuid.Nil)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate email")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Password:     string(hashedPassword),
		DepartmentID: req.DepartmentID,
		IsAdmin:      req.IsAdmin,
	}
	if err := db(c).Create(&user).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": fmt.Sprintf("New user %s created", user.Name),
		"user":    user,
	})
}

func UpdateUser(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	var req models.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.DepartmentID == uuid.Nil {
		return fail(c, fiber.StatusBadRequest, "All fields are required")
	}
	if !models.ValidEmail(req.Email) {
		return fail(c, fiber.StatusBadRequest, "Invalid email address")
	}

	var user models.User
	if err := db(c).First(&user, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "User")
	}
	if err := checkDepartment(c, req.DepartmentID); err != nil {
		return err
	}

	taken, err := emailTaken(c, req.Email, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update user")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate email")
	}

	user.Name = req.Name
	user.Email = req.Email
	user.DepartmentID = req.DepartmentID
	user.IsAdmin = req.IsAdmin
	if req.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
		}
		user.Password = string(hashedPassword)
	}

	if err := db(c).Omit("Department").Save(&user).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update user")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("User %s updated", user.Name),
		"user":    user,
	})
}

// DeleteUser removes a user from every team and unassigns their tasks. Users
// who lead a recorded phase cannot be deleted.
func DeleteUser(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "User ID required")
	}
	if id == middleware.GetUserID(c) {
		return fail(c, fiber.StatusBadRequest, "You cannot delete your own account")
	}

	var user models.User
	if err := db(c).First(&user, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "User")
	}

	var leads int64
	if err := db(c).Table("phase_history_leads").Where("user_id = ?", id).Count(&leads).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete user")
	}
	if leads > 0 {
		return fail(c, fiber.StatusConflict, "User leads a project phase")
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM project_team WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM project_team_leads WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).Where("assignee_id = ?", id).Update("assignee_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("recipient_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete user")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("User %s successfully deleted", user.Name),
	})
}
