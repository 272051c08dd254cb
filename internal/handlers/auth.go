package handlers

import (
	"strings"
	"time"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const refreshCookie = "jwt"

func setRefreshCookie(c *fiber.Ctx, token string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})
}

// issueTokens opens a refresh session for user and returns a fresh access
// token. The refresh token goes out as an http-only cookie.
func issueTokens(c *fiber.Ctx, user models.User) (string, error) {
	ttl := middleware.RefreshTTL()
	sessionID, err := services.Sessions.Create(c.UserContext(), user.ID, ttl)
	if err != nil {
		return "", err
	}
	refresh, err := middleware.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		return "", err
	}
	access, err := middleware.GenerateAccessToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return "", err
	}
	setRefreshCookie(c, refresh, ttl)
	return access, nil
}

func Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "All fields are required")
	}

	var user models.User
	if err := db(c).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	access, err := issueTokens(c, user)
	if err != nil {
		logger.Log.Error("login: issue tokens", zap.String("user_id", user.ID.String()), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(models.AuthResponse{
		AccessToken: access,
		User:        user,
	})
}

// Refresh trades a valid refresh cookie for a new access token and rotates
// the refresh session.
func Refresh(c *fiber.Ctx) error {
	token := c.Cookies(refreshCookie)
	if token == "" {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	claims, err := middleware.ParseRefreshToken(token)
	if err != nil {
		return fail(c, fiber.StatusForbidden, "Forbidden")
	}

	userID, err := services.Sessions.Lookup(c.UserContext(), claims.ID)
	if err != nil || userID != claims.UserID {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var user models.User
	if err := db(c).First(&user, "id = ?", userID).Error; err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if err := services.Sessions.Revoke(c.UserContext(), claims.ID); err != nil {
		logger.Log.Warn("refresh: revoke old session", zap.Error(err))
	}
	access, err := issueTokens(c, user)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(models.AuthResponse{
		AccessToken: access,
		User:        user,
	})
}

func Logout(c *fiber.Ctx) error {
	token := c.Cookies(refreshCookie)
	if token == "" {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if claims, err := middleware.ParseRefreshToken(token); err == nil {
		if err := services.Sessions.Revoke(c.UserContext(), claims.ID); err != nil {
			logger.Log.Warn("logout: revoke session", zap.Error(err))
		}
	}
	c.ClearCookie(refreshCookie)

	return c.JSON(fiber.Map{"message": "Cookie cleared"})
}

func GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var user models.User
	if err := db(c).Preload("Department").First(&user, "id = ?", userID).Error; err != nil {
		return lookupError(c, err, "User")
	}
	return c.JSON(user)
}
