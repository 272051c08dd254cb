package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationTaskAssigned NotificationKind = "task_assigned"
	NotificationPhaseLead    NotificationKind = "phase_lead"
)

// Notification is an in-app message for one recipient. ProjectID and TaskID
// let clients open the matching project board.
type Notification struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	RecipientID uuid.UUID        `json:"recipientId" gorm:"type:uuid;index;not null"`
	ProjectID   uuid.UUID        `json:"projectId" gorm:"type:uuid;index;not null"`
	TaskID      *uuid.UUID       `json:"taskId,omitempty" gorm:"type:uuid"`
	Kind        NotificationKind `json:"kind" gorm:"not null"`
	Message     string           `json:"message" gorm:"not null"`
	Metadata    datatypes.JSON   `json:"metadata,omitempty"`
	ReadAt      *time.Time       `json:"readAt"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
