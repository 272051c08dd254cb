package progress

import (
	"time"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PhaseEntryInput struct {
	PhaseID          uuid.UUID
	Leads            []models.User
	StartDate        time.Time
	EstimatedEndDate time.Time
}

// Ledger owns the per-project phase history. Callers pass the *gorm.DB to
// use, which carries both the request context and any open transaction.
type Ledger interface {
	RecordPhaseEntry(db *gorm.DB, projectID uuid.UUID, in PhaseEntryInput) (*models.PhaseHistory, error)
	SetAllEntriesForPhase(db *gorm.DB, projectID, phaseID uuid.UUID, rate float64) error
}

// BroadcastLedger keeps a single current rate per (project, phase) and writes
// it to every history entry of that phase.
type BroadcastLedger struct{}

func (BroadcastLedger) RecordPhaseEntry(db *gorm.DB, projectID uuid.UUID, in PhaseEntryInput) (*models.PhaseHistory, error) {
	var history []models.PhaseHistory
	if err := db.Where("project_id = ?", projectID).Order("sequence ASC").Find(&history).Error; err != nil {
		return nil, err
	}

	entry := models.PhaseHistory{
		ProjectID:        projectID,
		PhaseID:          in.PhaseID,
		Sequence:         nextSequence(history),
		Leads:            in.Leads,
		StartDate:        in.StartDate,
		EstimatedEndDate: in.EstimatedEndDate,
		CompletionRate:   CarryOverRate(history, in.PhaseID),
	}
	if err := db.Omit("Leads.*").Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (BroadcastLedger) SetAllEntriesForPhase(db *gorm.DB, projectID, phaseID uuid.UUID, rate float64) error {
	var count int64
	if err := db.Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrProjectNotFound
	}

	return db.Model(&models.PhaseHistory{}).
		Where("project_id = ? AND phase_id = ?", projectID, phaseID).
		Update("completion_rate", rate).Error
}

// CarryOverRate is the rate last recorded for phaseID in history, or 0 if the
// project never visited that phase.
func CarryOverRate(history []models.PhaseHistory, phaseID uuid.UUID) float64 {
	rate := 0.0
	last := -1
	for _, h := range history {
		if h.PhaseID == phaseID && h.Sequence > last {
			rate = h.CompletionRate
			last = h.Sequence
		}
	}
	return rate
}

func nextSequence(history []models.PhaseHistory) int {
	max := 0
	for _, h := range history {
		if h.Sequence > max {
			max = h.Sequence
		}
	}
	return max + 1
}

// NewLeads returns the users in incoming that are not already in existing,
// keeping incoming order and dropping duplicates.
func NewLeads(existing, incoming []models.User) []models.User {
	seen := make(map[uuid.UUID]bool, len(existing)+len(incoming))
	for _, u := range existing {
		seen[u.ID] = true
	}
	var added []models.User
	for _, u := range incoming {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		added = append(added, u)
	}
	return added
}
