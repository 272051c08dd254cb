package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/arnold/phasetrack-api/internal/metrics"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/arnold/phasetrack-api/internal/progress"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func preloadTask(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Remarks", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

func GetTasks(c *fiber.Ctx) error {
	var tasks []models.Task
	if err := preloadTask(db(c)).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load tasks")
	}
	return c.JSON(tasks)
}

// GetProjectTasks lists a project's tasks. A project without tasks yields an
// empty list.
func GetProjectTasks(c *fiber.Ctx) error {
	projectID, ok := parseID(c, "projectId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	if err := requireProject(c, projectID); err != nil {
		return err
	}

	tasks := []models.Task{}
	if err := preloadTask(db(c)).Where("project_id = ?", projectID).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load tasks")
	}
	return c.JSON(tasks)
}

// requireProject answers 404 for an unknown project and 500 when the lookup
// itself fails. It returns nil when the project exists.
func requireProject(c *fiber.Ctx, id uuid.UUID) error {
	found, err := exists(db(c), &models.Project{}, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load project")
	}
	if !found {
		return fail(c, fiber.StatusNotFound, "Project not found")
	}
	return nil
}

// validateTask normalises req and returns a user-facing message when it is
// not acceptable, or "".
func validateTask(req *models.TaskRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Phase == uuid.Nil || req.StartDate.IsZero() || req.DueDate.IsZero() {
		return "Missing required fields"
	}
	if req.Weight < 0 {
		return "Task weight can't be negative"
	}
	if req.Status == "" {
		req.Status = models.TaskToDo
	}
	if !req.Status.Valid() {
		return "Invalid task status"
	}
	if req.DueDate.Before(req.StartDate) {
		return "Due date cannot be before the start date"
	}
	for _, a := range req.Attachments {
		if a.ID == nil && (a.Name == "" || a.URL == "") {
			return "Attachments need a name and a url"
		}
	}
	return ""
}

// checkTaskRefs confirms the phase and assignee a task points at exist.
func checkTaskRefs(c *fiber.Ctx, req *models.TaskRequest) (int, string) {
	found, err := exists(db(c), &models.Phase{}, req.Phase)
	if err != nil {
		return fiber.StatusInternalServerError, "Failed to load phase"
	}
	if !found {
		return fiber.StatusNotFound, "Phase not found"
	}
	if req.Assignee != nil {
		found, err = exists(db(c), &models.User{}, *req.Assignee)
		if err != nil {
			return fiber.StatusInternalServerError, "Failed to load assignee"
		}
		if !found {
			return fiber.StatusBadRequest, "Assignee not found"
		}
	}
	return 0, ""
}

// completionDate returns the completion timestamp for a task moving from
// previous to next status.
func completionDate(previous, next models.TaskStatus, current *time.Time, now time.Time) *time.Time {
	if next != models.TaskDone {
		return nil
	}
	if previous == models.TaskDone && current != nil {
		return current
	}
	return &now
}

// diffAttachments splits the submitted list against the stored attachments:
// entries without an ID are new, stored entries whose ID is not submitted are
// removed. Submitted IDs unknown to the task are ignored.
func diffAttachments(existing []models.TaskAttachment, submitted []models.AttachmentInput) (added []models.TaskAttachment, removed []uuid.UUID) {
	keep := make(map[uuid.UUID]bool, len(submitted))
	for _, a := range submitted {
		if a.ID == nil {
			added = append(added, models.TaskAttachment{Name: a.Name, URL: a.URL})
			continue
		}
		keep[*a.ID] = true
	}
	for _, a := range existing {
		if !keep[a.ID] {
			removed = append(removed, a.ID)
		}
	}
	return added, removed
}

// shouldAppendRemark is true for a non-empty remark that differs from the
// task's latest one.
func shouldAppendRemark(task *models.Task, remark string) bool {
	remark = strings.TrimSpace(remark)
	return remark != "" && remark != task.LastRemark()
}

func CreateTask(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	projectID, ok := parseID(c, "projectId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}

	var req models.TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if msg := validateTask(&req); msg != "" {
		return fail(c, fiber.StatusBadRequest, msg)
	}
	if err := requireProject(c, projectID); err != nil {
		return err
	}
	if status, msg := checkTaskRefs(c, &req); msg != "" {
		return fail(c, status, msg)
	}

	task := models.Task{
		ProjectID:      projectID,
		PhaseID:        req.Phase,
		AssigneeID:     req.Assignee,
		Name:           req.Name,
		Description:    req.Description,
		Weight:         req.Weight,
		Status:         req.Status,
		StartDate:      req.StartDate,
		DueDate:        req.DueDate,
		CompletionDate: completionDate("", req.Status, nil, time.Now()),
	}
	task.Attachments, _ = diffAttachments(nil, req.Attachments)
	if remark := strings.TrimSpace(req.Remark); remark != "" {
		task.Remarks = []models.TaskRemark{{Text: remark}}
	}

	if err := db(c).Create(&task).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create task")
	}
	metrics.IncrementTaskMutation("create")

	outcome := newEngine().Recompute(c.UserContext(), projectID, task.PhaseID)
	publishTaskChange(userID, models.ActionTaskCreated, &task, outcome)
	notifyAssignee(&task, userID)

	if outcome.Stale() {
		return staleResponse(c, &task)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":               "New task created",
		"task":                  task,
		"phaseCompletionRate":   outcome.PhaseRate,
		"projectCompletionRate": outcome.ProjectRate,
	})
}

func UpdateTask(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	projectID, ok := parseID(c, "projectId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}

	var req models.TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if msg := validateTask(&req); msg != "" {
		return fail(c, fiber.StatusBadRequest, msg)
	}

	var task models.Task
	if err := preloadTask(db(c)).Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		return lookupError(c, err, "Task")
	}
	if status, msg := checkTaskRefs(c, &req); msg != "" {
		return fail(c, status, msg)
	}

	previousPhase := task.PhaseID
	previousAssignee := task.AssigneeID
	added, removed := diffAttachments(task.Attachments, req.Attachments)

	err := db(c).Transaction(func(tx *gorm.DB) error {
		if len(removed) > 0 {
			if err := tx.Where("task_id = ? AND id IN ?", task.ID, removed).Delete(&models.TaskAttachment{}).Error; err != nil {
				return err
			}
		}
		for i := range added {
			added[i].TaskID = task.ID
			if err := tx.Create(&added[i]).Error; err != nil {
				return err
			}
		}
		if shouldAppendRemark(&task, req.Remark) {
			remark := models.TaskRemark{TaskID: task.ID, Text: strings.TrimSpace(req.Remark)}
			if err := tx.Create(&remark).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Task{ID: task.ID}).Updates(map[string]interface{}{
			"name":            req.Name,
			"description":     req.Description,
			"phase_id":        req.Phase,
			"assignee_id":     req.Assignee,
			"weight":          req.Weight,
			"status":          req.Status,
			"start_date":      req.StartDate,
			"due_date":        req.DueDate,
			"completion_date": completionDate(task.Status, req.Status, task.CompletionDate, time.Now()),
		}).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update task")
	}
	metrics.IncrementTaskMutation("update")

	var updated models.Task
	if err := preloadTask(db(c)).First(&updated, "id = ?", task.ID).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load task")
	}

	engine := newEngine()
	var outcome progress.Outcome
	if previousPhase != updated.PhaseID {
		outcome = engine.Recompute(c.UserContext(), projectID, previousPhase)
	}
	if !outcome.Stale() {
		outcome = engine.Recompute(c.UserContext(), projectID, updated.PhaseID)
	}
	publishTaskChange(userID, models.ActionTaskUpdated, &updated, outcome)
	if updated.AssigneeID != nil && (previousAssignee == nil || *previousAssignee != *updated.AssigneeID) {
		notifyAssignee(&updated, userID)
	}

	if outcome.Stale() {
		return staleResponse(c, &updated)
	}
	return c.JSON(fiber.Map{
		"message":               fmt.Sprintf("Task '%s' updated", updated.Name),
		"task":                  updated,
		"phaseCompletionRate":   outcome.PhaseRate,
		"projectCompletionRate": outcome.ProjectRate,
	})
}

func DeleteTask(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	projectID, ok := parseID(c, "projectId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}

	var task models.Task
	if err := db(c).Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		return lookupError(c, err, "Task")
	}

	err := db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskRemark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskAttachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&task).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete task")
	}
	metrics.IncrementTaskMutation("delete")

	outcome := newEngine().Recompute(c.UserContext(), projectID, task.PhaseID)
	publishTaskChange(userID, models.ActionTaskDeleted, &task, outcome)

	if outcome.Stale() {
		return staleResponse(c, &task)
	}
	return c.JSON(fiber.Map{
		"message":               fmt.Sprintf("Task '%s' with ID %s deleted", task.Name, task.ID),
		"phaseCompletionRate":   outcome.PhaseRate,
		"projectCompletionRate": outcome.ProjectRate,
	})
}

// staleResponse reports a task write that succeeded while the completion
// recompute after it did not.
func staleResponse(c *fiber.Ctx, task *models.Task) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Task saved but completion rates could not be updated",
		"task":  task,
		"stale": true,
	})
}

var taskEvents = map[string]struct{ ws, route string }{
	models.ActionTaskCreated: {EventTaskCreated, services.RouteTaskCreated},
	models.ActionTaskUpdated: {EventTaskUpdated, services.RouteTaskUpdated},
	models.ActionTaskDeleted: {EventTaskDeleted, services.RouteTaskDeleted},
}

// publishTaskChange records the mutation in the activity log and fans it out
// to websocket listeners and the event exchange. Completion events go out
// only when the recompute finished.
func publishTaskChange(userID uuid.UUID, action string, task *models.Task, outcome progress.Outcome) {
	ev := taskEvents[action]
	LogActivity(task.ProjectID, userID, action, &task.ID, map[string]interface{}{
		"taskName": task.Name,
		"phaseId":  task.PhaseID.String(),
		"status":   string(task.Status),
	})

	WS.Broadcast(task.ProjectID, userID, WSEvent{
		Type:      ev.ws,
		ProjectID: task.ProjectID.String(),
		UserID:    userID.String(),
		Data:      task,
	})
	services.Events.Emit(ev.route, fiber.Map{
		"projectId": task.ProjectID,
		"taskId":    task.ID,
		"phaseId":   task.PhaseID,
		"status":    task.Status,
		"weight":    task.Weight,
	})

	if outcome.Stale() {
		return
	}
	completion := fiber.Map{
		"projectId":             task.ProjectID,
		"phaseId":               task.PhaseID,
		"phaseCompletionRate":   outcome.PhaseRate,
		"projectCompletionRate": outcome.ProjectRate,
	}
	WS.Broadcast(task.ProjectID, uuid.Nil, WSEvent{
		Type:      EventCompletionUpdated,
		ProjectID: task.ProjectID.String(),
		UserID:    userID.String(),
		Data:      completion,
	})
	services.Events.Emit(services.RouteCompletionUpdated, completion)
}
