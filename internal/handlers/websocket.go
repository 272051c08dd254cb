package handlers

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/middleware"
)

// Event types sent over WebSocket
const (
	EventTaskCreated       = "task_created"
	EventTaskUpdated       = "task_updated"
	EventTaskDeleted       = "task_deleted"
	EventPhaseTransitioned = "phase_transitioned"
	EventCompletionUpdated = "completion_updated"
)

// WSEvent is the JSON message sent to connected clients
type WSEvent struct {
	Type      string      `json:"type"`
	ProjectID string      `json:"projectId"`
	UserID    string      `json:"userId"`
	Data      interface{} `json:"data,omitempty"`
}

type connection struct {
	conn   *websocket.Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (c *connection) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages WebSocket connections per project
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool
}

// Global hub instance
var WS = NewHub()

func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[*connection]bool)}
}

func (h *Hub) register(projectID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*connection]bool)
	}
	h.rooms[projectID][conn] = true
	logger.Log.Debug("ws register",
		zap.String("user_id", conn.userID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("total", len(h.rooms[projectID])),
	)
}

func (h *Hub) unregister(projectID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[projectID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, projectID)
		}
	}
}

// Listeners returns how many connections are open for a project.
func (h *Hub) Listeners(projectID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Broadcast sends an event to all connections in a project room, excluding the sender
func (h *Hub) Broadcast(projectID uuid.UUID, excludeUserID uuid.UUID, event WSEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.rooms[projectID]
	if !ok {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		logger.Log.Warn("ws broadcast marshal", zap.Error(err))
		return
	}

	for c := range conns {
		if c.userID == excludeUserID {
			continue
		}
		if err := c.write(msg); err != nil {
			logger.Log.Debug("ws write", zap.Error(err))
		}
	}
}

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Browsers cannot set headers on upgrade, so accept ?token=<jwt> too.
		tokenString := c.Query("token")
		if tokenString == "" {
			tokenString = middleware.BearerToken(c)
		}
		if tokenString == "" {
			return fail(c, fiber.StatusUnauthorized, "Missing authentication token")
		}

		claims, err := middleware.ParseAccessToken(tokenString)
		if err != nil {
			return fail(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		projectID, ok := parseID(c, "id")
		if !ok {
			return fail(c, fiber.StatusBadRequest, "Invalid project ID")
		}
		if err := requireProject(c, projectID); err != nil {
			return err
		}

		c.Locals("userId", claims.UserID)
		return c.Next()
	}
}

// HandleWebSocket handles a WebSocket connection for a specific project
func HandleWebSocket(c *websocket.Conn) {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		c.Close()
		return
	}

	userID, ok := c.Locals("userId").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	conn := &connection{conn: c, userID: userID}
	WS.register(projectID, conn)
	defer WS.unregister(projectID, conn)

	// Clients only send keepalives; reading detects the disconnect.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
