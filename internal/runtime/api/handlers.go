package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/runtime"
	"github.com/coderclaw/coderclaw/internal/security"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// defaultSessionRoles are granted to every session created over the wire.
var defaultSessionRoles = []string{"developer"}

// Handler serves the runtime wire protocol.
type Handler struct {
	runtime  *runtime.Runtime
	security *security.Service
	logger   *logger.Logger
}

// NewHandler creates a handler over the runtime facade and security service.
func NewHandler(rt *runtime.Runtime, sec *security.Service, log *logger.Logger) *Handler {
	return &Handler{
		runtime:  rt,
		security: sec,
		logger:   log.WithFields(zap.String("component", "runtime-api")),
	}
}

// CreateSession handles POST /api/runtime/sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	userID := c.Query("user_id")
	deviceID := c.Query("device_id")

	if deviceID != "" {
		h.security.VerifyDevice(deviceID)
	}

	session, err := h.security.CreateSession(userID, deviceID, defaultSessionRoles)
	if err != nil {
		_ = c.Error(err)
		return
	}

	permissions := h.security.GetEffectivePermissions(session)
	perms := make([]string, len(permissions))
	for i, p := range permissions {
		perms[i] = string(p)
	}

	c.JSON(http.StatusOK, v1.SessionResponse{
		SessionID:    session.ID,
		UserID:       session.UserID,
		CreatedAt:    session.GrantedAt.Format(timeLayout),
		LastActivity: session.GrantedAt.Format(timeLayout),
		Permissions:  perms,
	})
}

// SubmitTask handles POST /api/runtime/tasks/submit.
func (h *Handler) SubmitTask(c *gin.Context) {
	var req v1.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "BAD_REQUEST",
			"message": "invalid request body: " + err.Error(),
		}})
		return
	}

	if res, ok := h.authorize(c, req.SessionID, security.PermTaskSubmit, "task"); !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":    "PERMISSION_DENIED",
			"message": res.Reason,
		}})
		return
	}

	state, err := h.runtime.SubmitTask(c.Request.Context(), transport.TaskRequest{
		AgentRole:   req.AgentType,
		Description: req.Prompt,
		Context:     req.Context,
		SessionID:   req.SessionID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stateResponse(state))
}

// GetTaskState handles GET /api/runtime/tasks/:id/state.
func (h *Handler) GetTaskState(c *gin.Context) {
	taskID := c.Param("id")

	state, err := h.runtime.QueryTaskState(c.Request.Context(), taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code":    "NOT_FOUND",
			"message": "task not found: " + taskID,
		}})
		return
	}

	c.JSON(http.StatusOK, stateResponse(state))
}

// CancelTask handles POST /api/runtime/tasks/:id/cancel.
func (h *Handler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")

	var req v1.CancelTaskRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	cancelled, err := h.runtime.CancelTask(c.Request.Context(), taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, v1.CancelTaskResponse{Success: cancelled, TaskID: taskID})
}

// ListAgents handles GET /api/runtime/agents.
func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.runtime.ListAgents(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	result := make([]v1.AgentResponse, 0, len(agents))
	for _, a := range agents {
		result = append(result, v1.AgentResponse{
			AgentType:    a.ID,
			Name:         a.Name,
			Description:  a.Description,
			Capabilities: a.Capabilities,
		})
	}
	c.JSON(http.StatusOK, result)
}

// ListSkills handles GET /api/runtime/skills.
func (h *Handler) ListSkills(c *gin.Context) {
	skills, err := h.runtime.ListSkills(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	result := make([]v1.SkillResponse, 0, len(skills))
	for _, s := range skills {
		result = append(result, v1.SkillResponse{
			SkillID:     s.ID,
			Name:        s.Name,
			Description: s.Description,
			Dangerous:   s.Dangerous,
		})
	}
	c.JSON(http.StatusOK, result)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	status := h.runtime.GetStatus(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// authorize enforces a permission when the request names a known session.
// Requests without a session id pass through: the wire protocol treats the
// session as optional and anonymous submissions are confined to local use.
func (h *Handler) authorize(c *gin.Context, sessionID string, perm security.Permission, resource string) (security.AccessResult, bool) {
	if sessionID == "" {
		return security.AccessResult{Allowed: true}, true
	}
	session := h.security.GetSession(sessionID)
	if session == nil {
		return security.AccessResult{Allowed: true}, true
	}
	result := h.security.CheckPermission(security.AccessContext{Session: session}, perm, resource)
	return result, result.Allowed
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func stateResponse(state *transport.TaskState) v1.TaskStateResponse {
	resp := v1.TaskStateResponse{
		TaskID:        state.ID,
		ExecutionUUID: uuid.New().String(),
		State:         state.Status,
		Success:       state.Status == v1.TaskStatusCompleted,
		Result:        state.Output,
		Error:         state.Error,
	}
	if state.StartedAt != nil && state.CompletedAt != nil {
		secs := state.CompletedAt.Sub(*state.StartedAt).Seconds()
		resp.ExecutionTime = &secs
	}
	return resp
}
