package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arnold/phasetrack-api/internal/config"
	"github.com/arnold/phasetrack-api/internal/database"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "secret123"

type testEnv struct {
	app        *fiber.App
	db         *gorm.DB
	admin      models.User
	member     models.User
	adminToken string
	token      string
	planning   models.Phase
	design     models.Phase
}

func newTestApp() *fiber.App {
	app := fiber.New()
	api := app.Group("/api")
	api.Post("/auth/login", Login)
	api.Post("/auth/refresh", Refresh)
	api.Post("/auth/logout", Logout)

	p := api.Group("/", middleware.Protected())
	admin := middleware.AdminOnly()
	p.Get("/me", GetMe)
	p.Post("/departments", admin, CreateDepartment)
	p.Get("/phases", GetPhases)
	p.Post("/phases", admin, CreatePhase)
	p.Delete("/phases/:id", admin, DeletePhase)
	p.Post("/users", admin, CreateUser)
	p.Get("/projects/:id", GetProject)
	p.Post("/projects", CreateProject)
	p.Patch("/projects/:id", UpdateProject)
	p.Delete("/projects/:id", DeleteProject)
	p.Patch("/projects/:id/phase", TransitionProjectPhase)
	p.Get("/projects/:id/activity", GetProjectActivity)
	p.Get("/tasks/:projectId", GetProjectTasks)
	p.Post("/tasks/:projectId", CreateTask)
	p.Patch("/tasks/:projectId/:taskId", UpdateTask)
	p.Delete("/tasks/:projectId/:taskId", DeleteTask)
	p.Get("/notifications", GetNotifications)
	p.Patch("/notifications/:id/read", MarkNotificationRead)
	p.Post("/notifications/read-all", MarkAllRead)
	p.Get("/reports/overview", GetReportOverview)
	return app
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory(uuid.NewString())
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	middleware.Configure(&config.Config{
		JWTSecret:       "test-access",
		RefreshSecret:   "test-refresh",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	services.Sessions = services.NewMemorySessions()

	e := &testEnv{app: newTestApp(), db: db}

	e.planning = models.Phase{Name: "Planning", Order: 1}
	e.design = models.Phase{Name: "Design", Order: 2}
	for _, p := range []*models.Phase{&e.planning, &e.design} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create phase: %v", err)
		}
	}

	dept := models.Department{Name: "Engineering", Active: true}
	if err := db.Create(&dept).Error; err != nil {
		t.Fatalf("create department: %v", err)
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	e.admin = models.User{Name: "Ada", Email: "ada@example.com", Password: string(hash), DepartmentID: dept.ID, IsAdmin: true}
	e.member = models.User{Name: "Max", Email: "max@example.com", Password: string(hash), DepartmentID: dept.ID}
	for _, u := range []*models.User{&e.admin, &e.member} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	e.adminToken, _ = middleware.GenerateAccessToken(e.admin.ID, e.admin.Email, true)
	e.token, _ = middleware.GenerateAccessToken(e.member.ID, e.member.Email, false)
	return e
}

// request sends body as JSON and decodes the JSON response into a map.
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	status, raw := e.raw(t, method, path, token, body)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return status, out
}

func (e *testEnv) raw(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC)
}

// createProject starts a project in phase led by the member user.
func (e *testEnv) createProject(t *testing.T, name string, phase models.Phase) uuid.UUID {
	t.Helper()
	status, body := e.request(t, "POST", "/api/projects", e.token, fiber.Map{
		"name":             name,
		"currentPhase":     phase.ID,
		"phaseLeads":       []uuid.UUID{e.member.ID},
		"team":             []uuid.UUID{e.member.ID},
		"startDate":        day(1),
		"estimatedEndDate": day(28),
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create project: status %d, body %v", status, body)
	}
	project := body["project"].(map[string]interface{})
	return uuid.MustParse(project["id"].(string))
}

func (e *testEnv) createTask(t *testing.T, projectID uuid.UUID, phase models.Phase, name string, weight float64, status models.TaskStatus) (int, map[string]interface{}) {
	t.Helper()
	return e.request(t, "POST", "/api/tasks/"+projectID.String(), e.token, fiber.Map{
		"name":      name,
		"phase":     phase.ID,
		"weight":    weight,
		"status":    status,
		"startDate": day(2),
		"dueDate":   day(9),
	})
}

func taskID(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	task, ok := body["task"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no task: %v", body)
	}
	return task["id"].(string)
}

func (e *testEnv) projectRates(t *testing.T, projectID uuid.UUID) (project float64, history []float64) {
	t.Helper()
	var p models.Project
	err := e.db.Preload("PhasesHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).First(&p, "id = ?", projectID).Error
	if err != nil {
		t.Fatalf("load project: %v", err)
	}
	for _, h := range p.PhasesHistory {
		history = append(history, h.CompletionRate)
	}
	return p.CompletionRate, history
}
