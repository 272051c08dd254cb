package routes

import (
	"github.com/arnold/phasetrack-api/internal/handlers"
	"github.com/arnold/phasetrack-api/internal/middleware"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options carries the settings NewApp needs from the environment.
type Options struct {
	BodyLimit int
	FilesDir  string
}

// NewApp builds the fiber app with every route mounted.
func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: opts.BodyLimit,
	})
	app.Use(middleware.RequestLog())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if opts.FilesDir != "" {
		app.Static(services.LocalFilesURL, opts.FilesDir)
	}

	Setup(app)
	return app
}

func Setup(app *fiber.App) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/login", handlers.Login)
	auth.Post("/refresh", handlers.Refresh)
	auth.Post("/logout", handlers.Logout)

	protected := api.Group("/", middleware.Protected())
	admin := middleware.AdminOnly()

	protected.Get("/me", handlers.GetMe)

	users := protected.Group("/users")
	users.Get("/", handlers.GetUsers)
	users.Get("/:id", handlers.GetUser)
	users.Post("/", admin, handlers.CreateUser)
	users.Patch("/:id", admin, handlers.UpdateUser)
	users.Delete("/:id", admin, handlers.DeleteUser)

	departments := protected.Group("/departments")
	departments.Get("/", handlers.GetDepartments)
	departments.Post("/", admin, handlers.CreateDepartment)
	departments.Patch("/:id", admin, handlers.UpdateDepartment)
	departments.Delete("/:id", admin, handlers.DeleteDepartment)

	phases := protected.Group("/phases")
	phases.Get("/", handlers.GetPhases)
	phases.Get("/:id", handlers.GetPhase)
	phases.Post("/", admin, handlers.CreatePhase)
	phases.Patch("/:id", admin, handlers.UpdatePhase)
	phases.Delete("/:id", admin, handlers.DeletePhase)

	projects := protected.Group("/projects")
	projects.Get("/", handlers.GetProjects)
	projects.Post("/", handlers.CreateProject)
	projects.Get("/:id", handlers.GetProject)
	projects.Patch("/:id", handlers.UpdateProject)
	projects.Delete("/:id", handlers.DeleteProject)
	projects.Patch("/:id/phase", handlers.TransitionProjectPhase)
	projects.Get("/:id/activity", handlers.GetProjectActivity)

	tasks := protected.Group("/tasks")
	tasks.Get("/", handlers.GetTasks)
	tasks.Get("/:projectId", handlers.GetProjectTasks)
	tasks.Post("/:projectId", handlers.CreateTask)
	tasks.Patch("/:projectId/:taskId", handlers.UpdateTask)
	tasks.Delete("/:projectId/:taskId", handlers.DeleteTask)

	protected.Get("/reports/overview", handlers.GetReportOverview)

	// Notifications
	notifications := protected.Group("/notifications")
	notifications.Get("/", handlers.GetNotifications)
	notifications.Patch("/:id/read", handlers.MarkNotificationRead)
	notifications.Post("/read-all", handlers.MarkAllRead)

	// Device token for push notifications
	protected.Post("/device-token", handlers.RegisterDeviceToken)

	// File upload
	protected.Post("/upload", handlers.UploadFiles)

	// WebSocket for real-time project updates
	app.Get("/ws/projects/:id", handlers.WebSocketUpgrade(), websocket.New(handlers.HandleWebSocket))
}
