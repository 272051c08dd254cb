package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/metrics"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stage is the last step of a recompute that finished successfully.
type Stage int

const (
	StageTaskSaved Stage = iota
	StagePhaseComputed
	StageLedgerUpdated
	StageProjectComputed
)

func (s Stage) String() string {
	switch s {
	case StageTaskSaved:
		return "task_saved"
	case StagePhaseComputed:
		return "phase_computed"
	case StageLedgerUpdated:
		return "ledger_updated"
	case StageProjectComputed:
		return "project_computed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Outcome reports how far a recompute got after the task write. A non-nil
// Err means the task is saved but the aggregates from Stage onward are stale
// until the next successful recompute of the same project.
type Outcome struct {
	Stage       Stage
	PhaseRate   float64
	ProjectRate float64
	Err         error
}

func (o Outcome) Stale() bool {
	return o.Err != nil
}

type Engine struct {
	db      *gorm.DB
	ledger  Ledger
	catalog Catalog
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:      db,
		ledger:  BroadcastLedger{},
		catalog: GormCatalog{DB: db},
	}
}

func (e *Engine) WithLedger(l Ledger) *Engine {
	cp := *e
	cp.ledger = l
	return &cp
}

func (e *Engine) WithCatalog(c Catalog) *Engine {
	cp := *e
	cp.catalog = c
	return &cp
}

// Recompute runs the post-write steps for a task mutation in (projectID,
// phaseID): phase rate, history broadcast, project rate. Steps run in order
// and stop at the first failure; nothing is rolled back.
func (e *Engine) Recompute(ctx context.Context, projectID, phaseID uuid.UUID) Outcome {
	start := time.Now()
	out := Outcome{Stage: StageTaskSaved}
	defer func() {
		metrics.RecordRecompute(out.Stage.String(), out.Err, time.Since(start))
		if out.Err != nil {
			logger.Log.Error("completion recompute failed",
				zap.String("project_id", projectID.String()),
				zap.String("phase_id", phaseID.String()),
				zap.Stringer("stage", out.Stage),
				zap.Error(out.Err),
			)
		}
	}()

	db := e.db.WithContext(ctx)

	var tasks []models.Task
	if err := db.Where("project_id = ? AND phase_id = ?", projectID, phaseID).Find(&tasks).Error; err != nil {
		out.Err = fmt.Errorf("load phase tasks: %w", err)
		return out
	}
	out.PhaseRate = PhaseCompletion(tasks)
	out.Stage = StagePhaseComputed

	if err := e.ledger.SetAllEntriesForPhase(db, projectID, phaseID, out.PhaseRate); err != nil {
		out.Err = fmt.Errorf("update phase history: %w", err)
		return out
	}
	out.Stage = StageLedgerUpdated

	rate, err := e.RecomputeProject(ctx, projectID)
	if err != nil {
		out.Err = fmt.Errorf("update project completion: %w", err)
		return out
	}
	out.ProjectRate = rate
	out.Stage = StageProjectComputed

	logger.Log.Debug("completion recomputed",
		zap.String("project_id", projectID.String()),
		zap.String("phase_id", phaseID.String()),
		zap.Float64("phase_rate", out.PhaseRate),
		zap.Float64("project_rate", out.ProjectRate),
	)
	return out
}

// RecomputeProject derives the project's overall rate from its phase history
// and the catalog size, and stores it on the project.
func (e *Engine) RecomputeProject(ctx context.Context, projectID uuid.UUID) (float64, error) {
	db := e.db.WithContext(ctx)

	var history []models.PhaseHistory
	if err := db.Where("project_id = ?", projectID).Order("sequence ASC").Find(&history).Error; err != nil {
		return 0, err
	}

	size, err := e.catalog.CountPhases(ctx)
	if err != nil {
		return 0, fmt.Errorf("count phases: %w", err)
	}

	rate := ProjectCompletion(history, size)
	res := db.Model(&models.Project{}).Where("id = ?", projectID).Update("completion_rate", rate)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrProjectNotFound
	}
	return rate, nil
}

// StartProject creates the project together with its first phase history
// entry. Phase leads are also added to the project's team leads.
func (e *Engine) StartProject(ctx context.Context, project *models.Project, first PhaseEntryInput) error {
	if len(first.Leads) == 0 {
		return ErrNoLeads
	}
	if first.EstimatedEndDate.Before(first.StartDate) {
		return ErrInvalidDates
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePhase(tx, first.PhaseID); err != nil {
			return err
		}

		project.CurrentPhaseID = first.PhaseID
		project.TeamLeads = append(project.TeamLeads, NewLeads(project.TeamLeads, first.Leads)...)
		if err := tx.Omit("Team.*", "TeamLeads.*", "PhasesHistory").Create(project).Error; err != nil {
			return err
		}

		entry, err := e.ledger.RecordPhaseEntry(tx, project.ID, first)
		if err != nil {
			return fmt.Errorf("record first phase: %w", err)
		}
		project.PhasesHistory = []models.PhaseHistory{*entry}
		return nil
	})
}

type Transition struct {
	PhaseID          uuid.UUID
	LeadIDs          []uuid.UUID
	StartDate        time.Time
	EstimatedEndDate time.Time
}

// TransitionPhase moves a project into a phase: it appends a history entry
// seeded with the phase's last known rate for this project, adds the leads
// to the project's team leads and points the project at the new phase. It
// does not recompute any completion rate.
func (e *Engine) TransitionPhase(ctx context.Context, projectID uuid.UUID, in Transition) (*models.Project, *models.PhaseHistory, error) {
	if len(in.LeadIDs) == 0 {
		return nil, nil, ErrNoLeads
	}
	if in.EstimatedEndDate.Before(in.StartDate) {
		return nil, nil, ErrInvalidDates
	}

	var project models.Project
	var entry *models.PhaseHistory
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("TeamLeads").First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		if err := ensurePhase(tx, in.PhaseID); err != nil {
			return err
		}
		leads, err := LoadUsers(tx, in.LeadIDs)
		if err != nil {
			return err
		}

		entry, err = e.ledger.RecordPhaseEntry(tx, projectID, PhaseEntryInput{
			PhaseID:          in.PhaseID,
			Leads:            leads,
			StartDate:        in.StartDate,
			EstimatedEndDate: in.EstimatedEndDate,
		})
		if err != nil {
			return fmt.Errorf("record phase entry: %w", err)
		}

		if added := NewLeads(project.TeamLeads, leads); len(added) > 0 {
			if err := tx.Model(&project).Association("TeamLeads").Append(added); err != nil {
				return fmt.Errorf("add team leads: %w", err)
			}
		}

		if err := tx.Model(&models.Project{ID: project.ID}).Update("current_phase_id", in.PhaseID).Error; err != nil {
			return err
		}
		project.CurrentPhaseID = in.PhaseID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.IncrementPhaseTransition()
	logger.Log.Info("project phase transitioned",
		zap.String("project_id", projectID.String()),
		zap.String("phase_id", in.PhaseID.String()),
		zap.Int("sequence", entry.Sequence),
		zap.Float64("carry_over_rate", entry.CompletionRate),
	)
	return &project, entry, nil
}

func ensurePhase(tx *gorm.DB, phaseID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Phase{}).Where("id = ?", phaseID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrPhaseNotFound
	}
	return nil
}

// LoadUsers fetches the users with the given IDs, ignoring duplicates. It fails
// with ErrUserNotFound unless every ID resolves.
func LoadUsers(tx *gorm.DB, ids []uuid.UUID) ([]models.User, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	var users []models.User
	if err := tx.Where("id IN ?", unique).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) != len(unique) {
		return nil, ErrUserNotFound
	}
	return users, nil
}
