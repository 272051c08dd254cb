package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	DepartmentID uuid.UUID   `json:"departmentId" gorm:"type:uuid;index;not null"`
	Department   *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
	Name         string      `json:"name" gorm:"not null"`
	Email        string      `json:"email" gorm:"uniqueIndex;not null"`
	Password     string      `json:"-"`
	IsAdmin      bool        `json:"isAdmin" gorm:"default:false"`
	FCMToken     string      `json:"-" gorm:"column:fcm_token"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// User DTOs
type CreateUserRequest struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	DepartmentID uuid.UUID `json:"departmentId"`
	IsAdmin      bool      `json:"isAdmin"`
}

type UpdateUserRequest struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	DepartmentID uuid.UUID `json:"departmentId"`
	IsAdmin      bool      `json:"isAdmin"`
}

// Auth DTOs
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}
