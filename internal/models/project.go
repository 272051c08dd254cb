package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectOnHold    ProjectStatus = "On Hold"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectOnHold:
		return true
	}
	return false
}

type Project struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name             string         `json:"name" gorm:"uniqueIndex;not null"`
	Description      string         `json:"description"`
	CurrentPhaseID   uuid.UUID      `json:"currentPhaseId" gorm:"type:uuid;index;not null"`
	CurrentPhase     *Phase         `json:"currentPhase,omitempty" gorm:"foreignKey:CurrentPhaseID"`
	PhasesHistory    []PhaseHistory `json:"phasesHistory" gorm:"foreignKey:ProjectID"`
	Team             []User         `json:"team,omitempty" gorm:"many2many:project_team;"`
	TeamLeads        []User         `json:"teamLeads,omitempty" gorm:"many2many:project_team_leads;"`
	Status           ProjectStatus  `json:"status" gorm:"not null;default:'Active'"`
	StartDate        time.Time      `json:"startDate"`
	EstimatedEndDate time.Time      `json:"estimatedEndDate"`
	ActualEndDate    *time.Time     `json:"actualEndDate"`
	CompletionRate   float64        `json:"completionRate" gorm:"not null;default:0"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Project DTOs
type CreateProjectRequest struct {
	Name                  string        `json:"name"`
	Description           string        `json:"description"`
	CurrentPhase          uuid.UUID     `json:"currentPhase"`
	PhaseLeads            []uuid.UUID   `json:"phaseLeads"`
	PhaseStartDate        time.Time     `json:"phaseStartDate"`
	PhaseEstimatedEndDate time.Time     `json:"phaseEstimatedEndDate"`
	Team                  []uuid.UUID   `json:"team"`
	TeamLeads             []uuid.UUID   `json:"teamLeads"`
	Status                ProjectStatus `json:"status"`
	StartDate             time.Time     `json:"startDate"`
	EstimatedEndDate      time.Time     `json:"estimatedEndDate"`
	ActualEndDate         *time.Time    `json:"actualEndDate"`
}

type UpdateProjectRequest struct {
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Team             []uuid.UUID   `json:"team"`
	TeamLeads        []uuid.UUID   `json:"teamLeads"`
	Status           ProjectStatus `json:"status"`
	StartDate        time.Time     `json:"startDate"`
	EstimatedEndDate time.Time     `json:"estimatedEndDate"`
	ActualEndDate    *time.Time    `json:"actualEndDate"`
}
