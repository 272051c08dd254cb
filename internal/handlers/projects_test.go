package handlers

import (
	"testing"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func TestCreateProjectValidation(t *testing.T) {
	e := setup(t)
	e.createProject(t, "Apollo", e.planning)

	base := func() fiber.Map {
		return fiber.Map{
			"name":             "Gemini",
			"currentPhase":     e.planning.ID,
			"phaseLeads":       []uuid.UUID{e.member.ID},
			"startDate":        day(1),
			"estimatedEndDate": day(28),
		}
	}

	tests := []struct {
		name   string
		mutate func(fiber.Map)
		want   int
	}{
		{"duplicate name ignores case", func(m fiber.Map) { m["name"] = "apollo" }, fiber.StatusConflict},
		{"missing name", func(m fiber.Map) { delete(m, "name") }, fiber.StatusBadRequest},
		{"end before start", func(m fiber.Map) { m["estimatedEndDate"] = day(1).AddDate(0, 0, -1) }, fiber.StatusBadRequest},
		{"phase end before phase start", func(m fiber.Map) {
			m["phaseStartDate"] = day(10)
			m["phaseEstimatedEndDate"] = day(5)
		}, fiber.StatusBadRequest},
		{"no leads", func(m fiber.Map) { delete(m, "phaseLeads") }, fiber.StatusBadRequest},
		{"unknown lead", func(m fiber.Map) { m["phaseLeads"] = []uuid.UUID{uuid.New()} }, fiber.StatusBadRequest},
		{"unknown phase", func(m fiber.Map) { m["currentPhase"] = uuid.New() }, fiber.StatusNotFound},
		{"bad status", func(m fiber.Map) { m["status"] = "Paused" }, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			status, resp := e.request(t, "POST", "/api/projects", e.token, body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", status, tt.want, resp)
			}
		})
	}

	var count int64
	e.db.Model(&models.Project{}).Count(&count)
	if count != 1 {
		t.Fatalf("projects = %d, want 1", count)
	}
}

func TestCreateProjectRecordsFirstPhase(t *testing.T) {
	e := setup(t)
	projectID := e.createProject(t, "Apollo", e.planning)

	status, body := e.request(t, "GET", "/api/projects/"+projectID.String(), e.token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get project: %d", status)
	}
	if body["currentPhaseId"] != e.planning.ID.String() || body["status"] != string(models.ProjectActive) {
		t.Fatalf("project = %v", body)
	}
	history := body["phasesHistory"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	first := history[0].(map[string]interface{})
	if first["sequence"] != 1.0 || first["completionRate"] != 0.0 {
		t.Fatalf("first entry = %v", first)
	}
	leads := body["teamLeads"].([]interface{})
	if len(leads) != 1 || leads[0].(map[string]interface{})["id"] != e.member.ID.String() {
		t.Fatalf("phase leads should join team leads: %v", leads)
	}
}

func TestTransitionCarriesOverRate(t *testing.T) {
	e := setup(t)
	projectID := e.createProject(t, "Apollo", e.planning)
	e.createTask(t, projectID, e.planning, "A", 8, models.TaskDone)
	e.createTask(t, projectID, e.planning, "B", 2, models.TaskToDo)

	transition := func(phase models.Phase, lead uuid.UUID) map[string]interface{} {
		t.Helper()
		status, body := e.request(t, "PATCH", "/api/projects/"+projectID.String()+"/phase", e.token, fiber.Map{
			"phase":            phase.ID,
			"leads":            []uuid.UUID{lead},
			"startDate":        day(10),
			"estimatedEndDate": day(20),
		})
		if status != fiber.StatusOK {
			t.Fatalf("transition: %d %v", status, body)
		}
		return body["project"].(map[string]interface{})
	}

	transition(e.design, e.admin.ID)
	project := transition(e.planning, e.member.ID)

	history := project["phasesHistory"].([]interface{})
	if len(history) != 3 {
		t.Fatalf("history entries = %d, want 3", len(history))
	}
	revisit := history[2].(map[string]interface{})
	if revisit["completionRate"] != 80.0 || revisit["phaseId"] != e.planning.ID.String() {
		t.Fatalf("revisit entry = %v, want Planning at 80", revisit)
	}
	if project["currentPhaseId"] != e.planning.ID.String() {
		t.Fatalf("current phase = %v", project["currentPhaseId"])
	}
	if len(project["teamLeads"].([]interface{})) != 2 {
		t.Fatalf("team leads = %v, want both leads kept", project["teamLeads"])
	}
	// Transition does not touch the project rate: 80 / 2 phases from the last task write.
	if project["completionRate"] != 40.0 {
		t.Fatalf("project rate = %v, want 40", project["completionRate"])
	}

	status, body := e.request(t, "GET", "/api/projects/"+projectID.String()+"/activity", e.token, nil)
	if status != fiber.StatusOK || body["total"] != 4.0 {
		t.Fatalf("activity = %d %v, want 2 task + 2 transition entries", status, body)
	}
	_, body = e.request(t, "GET", "/api/projects/"+projectID.String()+"/activity?action="+models.ActionPhaseTransitioned, e.token, nil)
	if body["total"] != 2.0 {
		t.Fatalf("transition activity = %v, want 2", body)
	}
}

func TestTransitionErrors(t *testing.T) {
	e := setup(t)
	projectID := e.createProject(t, "Apollo", e.planning)

	tests := []struct {
		name    string
		project string
		body    fiber.Map
		want    int
	}{
		{"no leads", projectID.String(), fiber.Map{"phase": e.design.ID, "startDate": day(1), "estimatedEndDate": day(2)}, fiber.StatusBadRequest},
		{"end before start", projectID.String(), fiber.Map{"phase": e.design.ID, "leads": []uuid.UUID{e.admin.ID}, "startDate": day(5), "estimatedEndDate": day(2)}, fiber.StatusBadRequest},
		{"unknown phase", projectID.String(), fiber.Map{"phase": uuid.New(), "leads": []uuid.UUID{e.admin.ID}, "startDate": day(1), "estimatedEndDate": day(2)}, fiber.StatusNotFound},
		{"unknown project", uuid.NewString(), fiber.Map{"phase": e.design.ID, "leads": []uuid.UUID{e.admin.ID}, "startDate": day(1), "estimatedEndDate": day(2)}, fiber.StatusNotFound},
		{"bad id", "nope", fiber.Map{}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.request(t, "PATCH", "/api/projects/"+tt.project+"/phase", e.token, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", status, tt.want, body)
			}
		})
	}
}

func TestUpdateProjectKeepsDerivedFields(t *testing.T) {
	e := setup(t)
	projectID := e.createProject(t, "Apollo", e.planning)
	e.createTask(t, projectID, e.planning, "A", 1, models.TaskDone)

	status, body := e.request(t, "PATCH", "/api/projects/"+projectID.String(), e.token, fiber.Map{
		"name":             "Apollo 11",
		"status":           models.ProjectOnHold,
		"startDate":        day(1),
		"estimatedEndDate": day(30),
		"completionRate":   99,
		"currentPhase":     e.design.ID,
	})
	if status != fiber.StatusOK {
		t.Fatalf("update: %d %v", status, body)
	}
	project := body["project"].(map[string]interface{})
	if project["name"] != "Apollo 11" || project["status"] != string(models.ProjectOnHold) {
		t.Fatalf("project = %v", project)
	}
	if project["completionRate"] != 50.0 || project["currentPhaseId"] != e.planning.ID.String() {
		t.Fatalf("derived fields changed: rate %v phase %v", project["completionRate"], project["currentPhaseId"])
	}

	e.createProject(t, "Gemini", e.planning)
	status, _ = e.request(t, "PATCH", "/api/projects/"+projectID.String(), e.token, fiber.Map{
		"name":             "GEMINI",
		"status":           models.ProjectActive,
		"startDate":        day(1),
		"estimatedEndDate": day(30),
	})
	if status != fiber.StatusConflict {
		t.Fatalf("rename onto existing: status %d, want 409", status)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	e := setup(t)
	projectID := e.createProject(t, "Apollo", e.planning)
	_, body := e.request(t, "POST", "/api/tasks/"+projectID.String(), e.token, fiber.Map{
		"name":        "A",
		"phase":       e.planning.ID,
		"weight":      1,
		"startDate":   day(2),
		"dueDate":     day(3),
		"remark":      "note",
		"attachments": []fiber.Map{{"name": "a", "url": "u"}},
	})
	taskID(t, body)

	status, resp := e.request(t, "DELETE", "/api/projects/"+projectID.String(), e.token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("delete: %d %v", status, resp)
	}

	for _, model := range []interface{}{&models.Project{}, &models.PhaseHistory{}, &models.Task{}, &models.TaskRemark{}, &models.TaskAttachment{}, &models.Activity{}} {
		var n int64
		e.db.Model(model).Count(&n)
		if n != 0 {
			t.Fatalf("%T rows left: %d", model, n)
		}
	}
	var leads int64
	e.db.Table("phase_history_leads").Count(&leads)
	if leads != 0 {
		t.Fatalf("phase lead rows left: %d", leads)
	}

	status, _ = e.request(t, "DELETE", "/api/projects/"+projectID.String(), e.token, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("second delete: %d, want 404", status)
	}
}
