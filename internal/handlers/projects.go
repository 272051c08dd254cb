package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/arnold/phasetrack-api/internal/progress"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func preloadProject(tx *gorm.DB) *gorm.DB {
	return tx.Preload("CurrentPhase").
		Preload("Team").
		Preload("TeamLeads").
		Preload("PhasesHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("PhasesHistory.Phase").
		Preload("PhasesHistory.Leads")
}

func loadProject(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := preloadProject(tx.WithContext(ctx)).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProjects(c *fiber.Ctx) error {
	var projects []models.Project
	if err := preloadProject(db(c)).Order("created_at DESC").Find(&projects).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load projects")
	}
	return c.JSON(projects)
}

func GetProject(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	project, err := loadProject(c.UserContext(), db(c), id)
	if err != nil {
		return lookupError(c, err, "Project")
	}
	return c.JSON(project)
}

// projectDatesError validates the project-level dates and returns a
// user-facing message, or "" when they are consistent.
func projectDatesError(start, estimatedEnd time.Time, actualEnd *time.Time) string {
	if estimatedEnd.Before(start) {
		return "Estimated end date can't be before the start date"
	}
	if actualEnd != nil && actualEnd.Before(start) {
		return "Actual end date can't be before the start date"
	}
	return ""
}

func CreateProject(c *fiber.Ctx) error {
	var req models.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CurrentPhase == uuid.Nil || req.StartDate.IsZero() || req.EstimatedEndDate.IsZero() {
		return fail(c, fiber.StatusBadRequest, "Missing required fields")
	}
	if msg := projectDatesError(req.StartDate, req.EstimatedEndDate, req.ActualEndDate); msg != "" {
		return fail(c, fiber.StatusBadRequest, msg)
	}
	if req.Status == "" {
		req.Status = models.ProjectActive
	}
	if !req.Status.Valid() {
		return fail(c, fiber.StatusBadRequest, "Invalid project status")
	}
	if req.PhaseStartDate.IsZero() {
		req.PhaseStartDate = req.StartDate
	}
	if req.PhaseEstimatedEndDate.IsZero() {
		req.PhaseEstimatedEndDate = req.EstimatedEndDate
	}
	if len(req.PhaseLeads) == 0 {
		req.PhaseLeads = req.TeamLeads
	}

	taken, err := nameTaken(db(c), &models.Project{}, "name", req.Name, uuid.Nil)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create project")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate project name")
	}

	var team, teamLeads, phaseLeads []models.User
	for _, group := range []struct {
		ids []uuid.UUID
		dst *[]models.User
	}{{req.Team, &team}, {req.TeamLeads, &teamLeads}, {req.PhaseLeads, &phaseLeads}} {
		if len(group.ids) == 0 {
			continue
		}
		users, err := progress.LoadUsers(db(c), group.ids)
		if err != nil {
			return progressError(c, err)
		}
		*group.dst = users
	}

	project := models.Project{
		Name:             req.Name,
		Description:      req.Description,
		Team:             team,
		TeamLeads:        teamLeads,
		Status:           req.Status,
		StartDate:        req.StartDate,
		EstimatedEndDate: req.EstimatedEndDate,
		ActualEndDate:    req.ActualEndDate,
	}
	err = newEngine().StartProject(c.UserContext(), &project, progress.PhaseEntryInput{
		PhaseID:          req.CurrentPhase,
		Leads:            phaseLeads,
		StartDate:        req.PhaseStartDate,
		EstimatedEndDate: req.PhaseEstimatedEndDate,
	})
	if err != nil {
		return progressError(c, err)
	}

	created, err := loadProject(c.UserContext(), db(c), project.ID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load project")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "New project created",
		"project": created,
	})
}

// UpdateProject edits the descriptive fields and membership of a project.
// Completion, history and the current phase are not writable here.
func UpdateProject(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}

	var req models.UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Status == "" || req.StartDate.IsZero() || req.EstimatedEndDate.IsZero() {
		return fail(c, fiber.StatusBadRequest, "Missing required fields")
	}
	if !req.Status.Valid() {
		return fail(c, fiber.StatusBadRequest, "Invalid project status")
	}
	if msg := projectDatesError(req.StartDate, req.EstimatedEndDate, req.ActualEndDate); msg != "" {
		return fail(c, fiber.StatusBadRequest, msg)
	}

	var project models.Project
	if err := db(c).First(&project, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Project")
	}

	taken, err := nameTaken(db(c), &models.Project{}, "name", req.Name, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update project")
	}
	if taken {
		return fail(c, fiber.StatusConflict, "Duplicate project name")
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if req.Team != nil {
			team, err := progress.LoadUsers(tx, req.Team)
			if err != nil {
				return err
			}
			if err := tx.Model(&project).Association("Team").Replace(team); err != nil {
				return err
			}
		}
		if req.TeamLeads != nil {
			leads, err := progress.LoadUsers(tx, req.TeamLeads)
			if err != nil {
				return err
			}
			if err := tx.Model(&project).Association("TeamLeads").Replace(leads); err != nil {
				return err
			}
		}
		return tx.Model(&models.Project{ID: project.ID}).Updates(map[string]interface{}{
			"name":               req.Name,
			"description":        req.Description,
			"status":             req.Status,
			"start_date":         req.StartDate,
			"estimated_end_date": req.EstimatedEndDate,
			"actual_end_date":    req.ActualEndDate,
		}).Error
	})
	if err != nil {
		if errors.Is(err, progress.ErrUserNotFound) {
			return progressError(c, err)
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to update project")
	}

	updated, err := loadProject(c.UserContext(), db(c), id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load project")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Project '%s' updated successfully", updated.Name),
		"project": updated,
	})
}

// DeleteProject removes the project with its phase history, tasks and
// activity.
func DeleteProject(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}

	var project models.Project
	if err := db(c).First(&project, "id = ?", id).Error; err != nil {
		return lookupError(c, err, "Project")
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		tasks := tx.Model(&models.Task{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("task_id IN (?)", tasks).Delete(&models.TaskRemark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN (?)", tasks).Delete(&models.TaskAttachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		history := tx.Model(&models.PhaseHistory{}).Select("id").Where("project_id = ?", id)
		if err := tx.Exec("DELETE FROM phase_history_leads WHERE phase_history_id IN (?)", history).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.PhaseHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&project).Association("Team").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&project).Association("TeamLeads").Clear(); err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete project")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Project '%s' with ID %s successfully deleted", project.Name, project.ID),
	})
}

// TransitionProjectPhase moves a project into another phase, revisits
// included. Completion rates are left as they are.
func TransitionProjectPhase(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}

	var req models.TransitionPhaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Phase == uuid.Nil || req.StartDate.IsZero() || req.EstimatedEndDate.IsZero() {
		return fail(c, fiber.StatusBadRequest, "Missing required fields")
	}

	_, entry, err := newEngine().TransitionPhase(c.UserContext(), id, progress.Transition{
		PhaseID:          req.Phase,
		LeadIDs:          req.Leads,
		StartDate:        req.StartDate,
		EstimatedEndDate: req.EstimatedEndDate,
	})
	if err != nil {
		return progressError(c, err)
	}

	project, err := loadProject(c.UserContext(), db(c), id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load project")
	}

	payload := fiber.Map{
		"projectId":      id,
		"phaseId":        entry.PhaseID,
		"sequence":       entry.Sequence,
		"completionRate": entry.CompletionRate,
	}
	LogActivity(id, userID, models.ActionPhaseTransitioned, &entry.ID, payload)
	WS.Broadcast(id, userID, WSEvent{
		Type:      EventPhaseTransitioned,
		ProjectID: id.String(),
		UserID:    userID.String(),
		Data:      payload,
	})
	services.Events.Emit(services.RoutePhaseTransitioned, payload)
	notifyPhaseLeads(project, entry, userID)

	return c.JSON(fiber.Map{
		"message": "Project phase updated",
		"project": project,
	})
}
