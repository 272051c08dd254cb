package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhaseHistory records one visit of a project into a phase. A project that
// returns to a phase gets a new entry; earlier entries are never rewritten
// except for their completion rate.
type PhaseHistory struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID        uuid.UUID  `json:"projectId" gorm:"type:uuid;index;not null"`
	PhaseID          uuid.UUID  `json:"phaseId" gorm:"type:uuid;index;not null"`
	Phase            *Phase     `json:"phase,omitempty" gorm:"foreignKey:PhaseID"`
	Sequence         int        `json:"sequence" gorm:"not null"`
	Leads            []User     `json:"leads,omitempty" gorm:"many2many:phase_history_leads;"`
	StartDate        time.Time  `json:"startDate"`
	EstimatedEndDate time.Time  `json:"estimatedEndDate"`
	ActualEndDate    *time.Time `json:"actualEndDate"`
	CompletionRate   float64    `json:"completionRate" gorm:"not null;default:0"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (PhaseHistory) TableName() string { return "phase_histories" }

func (h *PhaseHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

type TransitionPhaseRequest struct {
	Phase            uuid.UUID   `json:"phase"`
	Leads            []uuid.UUID `json:"leads"`
	StartDate        time.Time   `json:"startDate"`
	EstimatedEndDate time.Time   `json:"estimatedEndDate"`
}
