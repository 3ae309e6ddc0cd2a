// Package remote implements the HTTP transport adapter. Tasks execute on an
// external node speaking the runtime wire protocol; streaming is
// polling-based with one update per observed status change.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/logger"
	"github.com/coderclaw/coderclaw/internal/transport"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

const (
	defaultPollInterval = time.Second
	defaultTimeout      = 30 * time.Second
)

// Config holds the remote node settings.
type Config struct {
	BaseURL      string
	UserID       string
	DeviceID     string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Adapter talks to a remote execution node over HTTP/JSON.
type Adapter struct {
	baseURL      string
	userID       string
	deviceID     string
	pollInterval time.Duration
	client       *http.Client
	logger       *logger.Logger

	mu        sync.Mutex
	sessionID string
}

// Ensure Adapter implements the transport contract
var _ transport.Adapter = (*Adapter)(nil)

// NewAdapter creates a remote adapter. No connection is made until the first
// call that needs a session.
func NewAdapter(cfg Config, log *logger.Logger) *Adapter {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Adapter{
		baseURL:      cfg.BaseURL,
		userID:       cfg.UserID,
		deviceID:     cfg.DeviceID,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: timeout},
		logger:       log.WithFields(zap.String("component", "remote-transport")),
	}
}

// Connect establishes a remote session. It is idempotent: a second call
// without an intervening Close is a no-op.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sessionID != "" {
		return nil
	}

	endpoint := a.baseURL + "/api/runtime/sessions"
	query := url.Values{}
	if a.userID != "" {
		query.Set("user_id", a.userID)
	}
	if a.deviceID != "" {
		query.Set("device_id", a.deviceID)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var session v1.SessionResponse
	if err := a.doJSON(ctx, http.MethodPost, endpoint, nil, &session); err != nil {
		return err
	}

	a.sessionID = session.SessionID
	a.logger.Info("connected to remote runtime",
		zap.String("base_url", a.baseURL),
		zap.String("session_id", session.SessionID))
	return nil
}

// SubmitTask auto-connects and submits the task to the remote node. The
// returned state carries the remote task id.
func (a *Adapter) SubmitTask(ctx context.Context, req transport.TaskRequest) (*transport.TaskState, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}

	body := v1.SubmitTaskRequest{
		AgentType: req.AgentRole,
		Prompt:    req.Description,
		Context:   req.Context,
		SessionID: a.currentSession(),
	}

	var resp v1.TaskStateResponse
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/api/runtime/tasks/submit", body, &resp); err != nil {
		return nil, err
	}
	return stateFromResponse(&resp), nil
}

// QueryTaskState fetches the remote state. A non-2xx response or network
// error yields nil rather than an error.
func (a *Adapter) QueryTaskState(ctx context.Context, taskID string) (*transport.TaskState, error) {
	resp, err := a.fetchState(ctx, taskID)
	if err != nil {
		return nil, nil
	}
	return stateFromResponse(resp), nil
}

// CancelTask posts a cancel request. It returns the remote success field on
// HTTP 2xx and false otherwise.
func (a *Adapter) CancelTask(ctx context.Context, taskID string) (bool, error) {
	body := v1.CancelTaskRequest{SessionID: a.currentSession()}

	var resp v1.CancelTaskResponse
	endpoint := fmt.Sprintf("%s/api/runtime/tasks/%s/cancel", a.baseURL, taskID)
	if err := a.doJSON(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return false, nil
	}
	return resp.Success, nil
}

// ListAgents lists agent roles available on the remote node.
func (a *Adapter) ListAgents(ctx context.Context) ([]transport.AgentInfo, error) {
	var agents []v1.AgentResponse
	if err := a.doJSON(ctx, http.MethodGet, a.sessionEndpoint("/api/runtime/agents"), nil, &agents); err != nil {
		return nil, err
	}
	result := make([]transport.AgentInfo, 0, len(agents))
	for _, ag := range agents {
		result = append(result, transport.AgentInfo{
			ID:           ag.AgentType,
			Name:         ag.Name,
			Description:  ag.Description,
			Capabilities: ag.Capabilities,
		})
	}
	return result, nil
}

// ListSkills lists skills available on the remote node.
func (a *Adapter) ListSkills(ctx context.Context) ([]transport.SkillInfo, error) {
	var skills []v1.SkillResponse
	if err := a.doJSON(ctx, http.MethodGet, a.sessionEndpoint("/api/runtime/skills"), nil, &skills); err != nil {
		return nil, err
	}
	result := make([]transport.SkillInfo, 0, len(skills))
	for _, sk := range skills {
		result = append(result, transport.SkillInfo{
			ID:          sk.SkillID,
			Name:        sk.Name,
			Description: sk.Description,
			Dangerous:   sk.Dangerous,
		})
	}
	return result, nil
}

// Close clears the cached session id. The remote session is not revoked;
// teardown on the node side is best-effort.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessionID = ""
	return nil
}

func (a *Adapter) currentSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *Adapter) sessionEndpoint(path string) string {
	endpoint := a.baseURL + path
	if sid := a.currentSession(); sid != "" {
		endpoint += "?session_id=" + url.QueryEscape(sid)
	}
	return endpoint
}

// fetchState GETs the task state, surfacing failures as errors.
func (a *Adapter) fetchState(ctx context.Context, taskID string) (*v1.TaskStateResponse, error) {
	var resp v1.TaskStateResponse
	endpoint := fmt.Sprintf("%s/api/runtime/tasks/%s/state", a.baseURL, taskID)
	if err := a.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doJSON performs one HTTP round trip with JSON encoding on both sides.
// Network failures, timeouts and non-2xx statuses become
// TRANSPORT_UNAVAILABLE errors.
func (a *Adapter) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.InternalError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.InternalError("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return apperrors.TransportUnavailable("remote runtime unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.TransportUnavailable(
			fmt.Sprintf("remote runtime returned %d: %s", resp.StatusCode, string(payload)), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.TransportUnavailable("failed to decode response", err)
		}
	}
	return nil
}

// stateFromResponse maps the wire response onto the adapter-level view. The
// status vocabulary is identical on both sides by design.
func stateFromResponse(resp *v1.TaskStateResponse) *transport.TaskState {
	return &transport.TaskState{
		ID:     resp.TaskID,
		Status: resp.State,
		Output: resp.Result,
		Error:  resp.Error,
	}
}
