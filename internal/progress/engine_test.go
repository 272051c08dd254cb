package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	planning models.Phase
	design   models.Phase
	alice    models.User
	bob      models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory(uuid.NewString())
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}

	f := &fixture{db: db, engine: NewEngine(db)}
	f.planning = models.Phase{Name: "Planning", Order: 1}
	f.design = models.Phase{Name: "Design", Order: 2}
	for _, p := range []*models.Phase{&f.planning, &f.design} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create phase: %v", err)
		}
	}

	dept := models.Department{Name: "Engineering", Active: true}
	if err := db.Create(&dept).Error; err != nil {
		t.Fatalf("create department: %v", err)
	}
	f.alice = models.User{Name: "Alice", Email: "alice@example.com", DepartmentID: dept.ID}
	f.bob = models.User{Name: "Bob", Email: "bob@example.com", DepartmentID: dept.ID}
	for _, u := range []*models.User{&f.alice, &f.bob} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return f
}

func (f *fixture) startProject(t *testing.T, name string, phase models.Phase) *models.Project {
	t.Helper()
	now := time.Now()
	project := &models.Project{
		Name:             name,
		Status:           models.ProjectActive,
		StartDate:        now,
		EstimatedEndDate: now.AddDate(0, 3, 0),
	}
	err := f.engine.StartProject(context.Background(), project, PhaseEntryInput{
		PhaseID:          phase.ID,
		Leads:            []models.User{f.alice},
		StartDate:        now,
		EstimatedEndDate: now.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("StartProject: %v", err)
	}
	return project
}

func (f *fixture) addTask(t *testing.T, project *models.Project, phase models.Phase, name string, weight float64, status models.TaskStatus) *models.Task {
	t.Helper()
	task := &models.Task{
		ProjectID: project.ID,
		PhaseID:   phase.ID,
		Name:      name,
		Weight:    weight,
		Status:    status,
		StartDate: time.Now(),
		DueDate:   time.Now().AddDate(0, 0, 7),
	}
	if err := f.db.Create(task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) transition(t *testing.T, project *models.Project, phase models.Phase, leads ...uuid.UUID) *models.PhaseHistory {
	t.Helper()
	_, entry, err := f.engine.TransitionPhase(context.Background(), project.ID, Transition{
		PhaseID:          phase.ID,
		LeadIDs:          leads,
		StartDate:        time.Now(),
		EstimatedEndDate: time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("TransitionPhase: %v", err)
	}
	return entry
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Project {
	t.Helper()
	var p models.Project
	err := f.db.Preload("PhasesHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).Preload("TeamLeads").First(&p, "id = ?", id).Error
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return p
}

func TestRecomputeEndToEnd(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)

	f.addTask(t, project, f.planning, "A", 10, models.TaskToDo)
	b := f.addTask(t, project, f.planning, "B", 10, models.TaskDone)

	out := f.engine.Recompute(context.Background(), project.ID, f.planning.ID)
	if out.Err != nil {
		t.Fatalf("Recompute: %v", out.Err)
	}
	if out.Stage != StageProjectComputed {
		t.Fatalf("Stage = %s, want %s", out.Stage, StageProjectComputed)
	}
	if out.PhaseRate != 50 || out.ProjectRate != 25 {
		t.Fatalf("rates = %v/%v, want 50/25", out.PhaseRate, out.ProjectRate)
	}

	got := f.reload(t, project.ID)
	if got.CompletionRate != 25 {
		t.Fatalf("stored project rate = %v, want 25", got.CompletionRate)
	}
	if len(got.PhasesHistory) != 1 || got.PhasesHistory[0].CompletionRate != 50 {
		t.Fatalf("stored history = %+v, want one Planning entry at 50", got.PhasesHistory)
	}

	if err := f.db.Model(b).Update("status", models.TaskCancelled).Error; err != nil {
		t.Fatalf("cancel task: %v", err)
	}
	out = f.engine.Recompute(context.Background(), project.ID, f.planning.ID)
	if out.Err != nil {
		t.Fatalf("Recompute after cancel: %v", out.Err)
	}
	if out.PhaseRate != 0 || out.ProjectRate != 0 {
		t.Fatalf("rates after cancel = %v/%v, want 0/0", out.PhaseRate, out.ProjectRate)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)
	f.addTask(t, project, f.planning, "A", 3, models.TaskDone)
	f.addTask(t, project, f.planning, "B", 1, models.TaskInProgress)

	first := f.engine.Recompute(context.Background(), project.ID, f.planning.ID)
	second := f.engine.Recompute(context.Background(), project.ID, f.planning.ID)
	if first.Err != nil || second.Err != nil {
		t.Fatalf("Recompute errors: %v, %v", first.Err, second.Err)
	}
	if first.PhaseRate != second.PhaseRate || first.ProjectRate != second.ProjectRate {
		t.Fatalf("recompute not idempotent: %+v vs %+v", first, second)
	}
}

func TestRevisitCarriesOverAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)
	f.addTask(t, project, f.planning, "A", 8, models.TaskDone)
	f.addTask(t, project, f.planning, "B", 2, models.TaskToDo)

	if out := f.engine.Recompute(context.Background(), project.ID, f.planning.ID); out.PhaseRate != 80 {
		t.Fatalf("Planning rate = %v, want 80", out.PhaseRate)
	}

	design := f.transition(t, project, f.design, f.bob.ID)
	if design.Sequence != 2 || design.CompletionRate != 0 {
		t.Fatalf("Design entry = seq %d rate %v, want seq 2 rate 0", design.Sequence, design.CompletionRate)
	}

	back := f.transition(t, project, f.planning, f.alice.ID)
	if back.Sequence != 3 || back.CompletionRate != 80 {
		t.Fatalf("revisit entry = seq %d rate %v, want seq 3 rate 80", back.Sequence, back.CompletionRate)
	}

	f.addTask(t, project, f.planning, "C", 10, models.TaskDone)
	out := f.engine.Recompute(context.Background(), project.ID, f.planning.ID)
	if out.Err != nil {
		t.Fatalf("Recompute: %v", out.Err)
	}
	if out.PhaseRate != 90 {
		t.Fatalf("Planning rate = %v, want 90", out.PhaseRate)
	}
	// Planning counted once out of two catalog phases.
	if out.ProjectRate != 45 {
		t.Fatalf("project rate = %v, want 45", out.ProjectRate)
	}

	got := f.reload(t, project.ID)
	for _, h := range got.PhasesHistory {
		if h.PhaseID == f.planning.ID && h.CompletionRate != 90 {
			t.Fatalf("Planning entry seq %d has rate %v, want 90", h.Sequence, h.CompletionRate)
		}
	}
}

func TestTransitionPhaseUnionsTeamLeads(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)

	updated, _, err := f.engine.TransitionPhase(context.Background(), project.ID, Transition{
		PhaseID:          f.design.ID,
		LeadIDs:          []uuid.UUID{f.bob.ID, f.alice.ID, f.bob.ID},
		StartDate:        time.Now(),
		EstimatedEndDate: time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("TransitionPhase: %v", err)
	}
	if updated.CurrentPhaseID != f.design.ID {
		t.Fatalf("current phase = %s, want Design", updated.CurrentPhaseID)
	}

	got := f.reload(t, project.ID)
	if got.CurrentPhaseID != f.design.ID {
		t.Fatal("current phase not persisted")
	}
	if len(got.TeamLeads) != 2 {
		t.Fatalf("team leads = %d, want 2 (alice and bob once each)", len(got.TeamLeads))
	}
	if got.CompletionRate != 0 {
		t.Fatalf("transition must not recompute, project rate = %v", got.CompletionRate)
	}
}

func TestTransitionPhaseErrors(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)
	now := time.Now()

	tests := []struct {
		name      string
		projectID uuid.UUID
		in        Transition
		want      error
	}{
		{"no leads", project.ID, Transition{PhaseID: f.design.ID, StartDate: now, EstimatedEndDate: now}, ErrNoLeads},
		{"end before start", project.ID, Transition{PhaseID: f.design.ID, LeadIDs: []uuid.UUID{f.alice.ID}, StartDate: now, EstimatedEndDate: now.Add(-time.Hour)}, ErrInvalidDates},
		{"unknown project", uuid.New(), Transition{PhaseID: f.design.ID, LeadIDs: []uuid.UUID{f.alice.ID}, StartDate: now, EstimatedEndDate: now}, ErrProjectNotFound},
		{"unknown phase", project.ID, Transition{PhaseID: uuid.New(), LeadIDs: []uuid.UUID{f.alice.ID}, StartDate: now, EstimatedEndDate: now}, ErrPhaseNotFound},
		{"unknown lead", project.ID, Transition{PhaseID: f.design.ID, LeadIDs: []uuid.UUID{uuid.New()}, StartDate: now, EstimatedEndDate: now}, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.engine.TransitionPhase(context.Background(), tt.projectID, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var count int64
	f.db.Model(&models.PhaseHistory{}).Where("project_id = ?", project.ID).Count(&count)
	if count != 1 {
		t.Fatalf("failed transitions left %d history entries, want 1", count)
	}
}

func TestRecomputeUnknownProject(t *testing.T) {
	f := newFixture(t)
	out := f.engine.Recompute(context.Background(), uuid.New(), f.planning.ID)
	if !errors.Is(out.Err, ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", out.Err)
	}
	if out.Stage != StagePhaseComputed {
		t.Fatalf("Stage = %s, want %s", out.Stage, StagePhaseComputed)
	}
}

type failingLedger struct{ BroadcastLedger }

func (failingLedger) SetAllEntriesForPhase(*gorm.DB, uuid.UUID, uuid.UUID, float64) error {
	return errors.New("ledger offline")
}

type failingCatalog struct{}

func (failingCatalog) CountPhases(context.Context) (int64, error) {
	return 0, errors.New("catalog offline")
}

func TestRecomputeReportsStaleStage(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)
	f.addTask(t, project, f.planning, "A", 1, models.TaskDone)

	out := f.engine.WithLedger(failingLedger{}).Recompute(context.Background(), project.ID, f.planning.ID)
	if !out.Stale() || out.Stage != StagePhaseComputed || out.PhaseRate != 100 {
		t.Fatalf("ledger failure outcome = %+v", out)
	}

	out = f.engine.WithCatalog(failingCatalog{}).Recompute(context.Background(), project.ID, f.planning.ID)
	if !out.Stale() || out.Stage != StageLedgerUpdated {
		t.Fatalf("catalog failure outcome = %+v", out)
	}

	// The ledger write before the failure is kept.
	got := f.reload(t, project.ID)
	if got.PhasesHistory[0].CompletionRate != 100 {
		t.Fatalf("history rate = %v, want 100", got.PhasesHistory[0].CompletionRate)
	}
	if got.CompletionRate != 0 {
		t.Fatalf("project rate = %v, want stale 0", got.CompletionRate)
	}
}

func TestTaskInUnvisitedPhaseDoesNotMoveProject(t *testing.T) {
	f := newFixture(t)
	project := f.startProject(t, "Apollo", f.planning)
	f.addTask(t, project, f.design, "early", 5, models.TaskDone)

	out := f.engine.Recompute(context.Background(), project.ID, f.design.ID)
	if out.Err != nil {
		t.Fatalf("Recompute: %v", out.Err)
	}
	if out.PhaseRate != 100 || out.ProjectRate != 0 {
		t.Fatalf("rates = %v/%v, want 100/0", out.PhaseRate, out.ProjectRate)
	}
}

func TestStartProjectValidation(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	err := f.engine.StartProject(context.Background(), &models.Project{Name: "NoLeads"}, PhaseEntryInput{
		PhaseID: f.planning.ID, StartDate: now, EstimatedEndDate: now,
	})
	if !errors.Is(err, ErrNoLeads) {
		t.Fatalf("err = %v, want ErrNoLeads", err)
	}

	err = f.engine.StartProject(context.Background(), &models.Project{Name: "BadPhase"}, PhaseEntryInput{
		PhaseID: uuid.New(), Leads: []models.User{f.alice}, StartDate: now, EstimatedEndDate: now,
	})
	if !errors.Is(err, ErrPhaseNotFound) {
		t.Fatalf("err = %v, want ErrPhaseNotFound", err)
	}

	var count int64
	f.db.Model(&models.Project{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed starts created %d projects", count)
	}
}
