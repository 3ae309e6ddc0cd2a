package security

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
)

const defaultSessionTTL = 24 * time.Hour

// Service owns users, devices, sessions, the role table, repo policies and
// the audit log. The role table is read-only after construction.
type Service struct {
	ids    ids.Generator
	clock  ids.Clock
	logger *logger.Logger

	sessionTTL time.Duration
	roleTable  map[string][]Permission

	mu       sync.RWMutex
	users    map[string]*UserIdentity
	devices  map[string]*Device
	policies map[string]*RepoPolicy

	// Sessions are cached with a per-entry TTL tied to their expiry; the
	// expiry check itself always runs against the session's ExpiresAt.
	sessions *gocache.Cache

	audit *AuditLog

	providers map[Provider]CredentialProvider
}

// Option configures the Service.
type Option func(*Service)

// WithSessionTTL overrides the default 24h session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithClock substitutes the timestamp source (used by tests).
func WithClock(c ids.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRoles replaces the default session role table.
func WithRoles(roles []SecurityRole) Option {
	return func(s *Service) {
		s.roleTable = make(map[string][]Permission, len(roles))
		for _, r := range roles {
			s.roleTable[r.ID] = r.Permissions
		}
	}
}

// WithCredentialProvider registers a credential provider for a provider tag.
func WithCredentialProvider(p CredentialProvider) Option {
	return func(s *Service) { s.providers[p.Provider()] = p }
}

// WithAuditLogSize bounds the in-memory audit log.
func WithAuditLogSize(n int) Option {
	return func(s *Service) { s.audit = NewAuditLog(n) }
}

// NewService creates a security service with the default role table.
func NewService(gen ids.Generator, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		ids:        gen,
		clock:      ids.NewSystemClock(),
		logger:     log.WithFields(zap.String("component", "security")),
		sessionTTL: defaultSessionTTL,
		users:      make(map[string]*UserIdentity),
		devices:    make(map[string]*Device),
		policies:   make(map[string]*RepoPolicy),
		sessions:   gocache.New(defaultSessionTTL, 10*time.Minute),
		audit:      NewAuditLog(10000),
		providers:  make(map[Provider]CredentialProvider),
	}

	s.roleTable = make(map[string][]Permission)
	for _, r := range DefaultSecurityRoles() {
		s.roleTable[r.ID] = r.Permissions
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthenticateUser resolves credentials against the registered provider for
// the given provider tag.
func (s *Service) AuthenticateUser(provider Provider, credentials map[string]string) (*UserIdentity, error) {
	if !provider.IsValid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown identity provider '%s'", provider))
	}

	cp, ok := s.providers[provider]
	if !ok {
		return nil, apperrors.Unauthorized(fmt.Sprintf("no credential provider configured for '%s'", provider))
	}

	user, err := cp.Authenticate(credentials)
	if err != nil {
		s.Audit(AuditEntry{
			Action:       "user.authenticate",
			ResourceType: ResourceConfig,
			ResourceID:   string(provider),
			Result:       AuditError,
			Reason:       err.Error(),
		})
		return nil, err
	}
	if user.ID == "" {
		user.ID = s.ids.NewID()
	}
	user.Provider = provider

	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()

	s.logger.Info("user authenticated",
		zap.String("user_id", user.ID),
		zap.String("provider", string(provider)))
	return user, nil
}

// VerifyDevice returns the known device, updating its last-seen timestamp,
// or registers a new one at the untrusted level.
func (s *Service) VerifyDevice(deviceID string) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if device, ok := s.devices[deviceID]; ok {
		device.LastSeen = now
		clone := *device
		return &clone
	}

	device := &Device{
		ID:       deviceID,
		Type:     DeviceDesktop,
		Trust:    TrustUntrusted,
		LastSeen: now,
	}
	s.devices[deviceID] = device

	s.logger.Info("device registered",
		zap.String("device_id", deviceID),
		zap.String("trust", string(TrustUntrusted)))
	clone := *device
	return &clone
}

// PromoteDevice raises a device's trust level. Trust is monotonic: a promote
// call that would lower the level is ignored.
func (s *Service) PromoteDevice(deviceID string, level TrustLevel) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	if level.rank() > device.Trust.rank() {
		device.Trust = level
	}
	clone := *device
	return &clone
}

// CreateSession grants a session for the user/device pair with the given
// role ids, valid for the configured TTL.
func (s *Service) CreateSession(userID, deviceID string, roles []string) (*Session, error) {
	now := s.clock.Now()
	session := &Session{
		ID:        s.ids.NewID(),
		UserID:    userID,
		DeviceID:  deviceID,
		Roles:     append([]string(nil), roles...),
		GrantedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	s.sessions.Set(session.ID, session, s.sessionTTL)

	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Strings("roles", roles))
	clone := *session
	return &clone, nil
}

// GetSession returns the cached session, or nil if unknown or evicted.
func (s *Service) GetSession(sessionID string) *Session {
	if v, ok := s.sessions.Get(sessionID); ok {
		clone := *(v.(*Session))
		return &clone
	}
	return nil
}

// GetEffectivePermissions returns the set-union of the permissions granted
// by the session's roles, sorted for stable output.
func (s *Service) GetEffectivePermissions(session *Session) []Permission {
	set := make(map[Permission]struct{})
	for _, role := range session.Roles {
		for _, perm := range s.roleTable[role] {
			set[perm] = struct{}{}
		}
	}

	result := make([]Permission, 0, len(set))
	for perm := range set {
		result = append(result, perm)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// CheckPermission allows when the effective set contains admin:all or the
// specific permission. Expired sessions deny with a SESSION_EXPIRED reason.
// Every decision is audited.
func (s *Service) CheckPermission(ctx AccessContext, perm Permission, resource string) AccessResult {
	result := s.evaluatePermission(ctx, perm)
	s.auditDecision(ctx, "permission.check", ResourceTask, resource, result)
	return result
}

// evaluatePermission runs the permission algorithm without auditing, for
// composition by the agent and skill checks.
func (s *Service) evaluatePermission(ctx AccessContext, perm Permission) AccessResult {
	if ctx.Session == nil {
		return AccessResult{
			Allowed:  false,
			Reason:   "no session",
			Required: []Permission{perm},
			Missing:  []Permission{perm},
		}
	}
	if ctx.Session.Expired(s.clock.Now()) {
		return AccessResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("session '%s' has expired", ctx.Session.ID),
			Required: []Permission{perm},
		}
	}

	effective := s.GetEffectivePermissions(ctx.Session)
	for _, p := range effective {
		if p == PermAdminAll || p == perm {
			return AccessResult{Allowed: true, Required: []Permission{perm}}
		}
	}

	return AccessResult{
		Allowed:  false,
		Reason:   fmt.Sprintf("missing permission '%s'", perm),
		Required: []Permission{perm},
		Missing:  []Permission{perm},
	}
}

// CheckAgentAccess authorizes invoking an agent: the agent:invoke
// permission, then the repo policy for the session's first scope entry (role
// intersection and required device trust).
func (s *Service) CheckAgentAccess(ctx AccessContext, agentID string) AccessResult {
	result := s.evaluatePermission(ctx, PermAgentInvoke)
	if !result.Allowed {
		s.auditDecision(ctx, "agent.access", ResourceAgent, agentID, result)
		return result
	}

	if policy := s.scopedPolicy(ctx.Session); policy != nil {
		if ap := policy.agentPolicy(agentID); ap != nil {
			if len(ap.AllowedRoles) > 0 && !rolesIntersect(ctx.Session.Roles, ap.AllowedRoles) {
				result = AccessResult{
					Allowed: false,
					Reason: fmt.Sprintf("agent '%s' requires one of roles [%s]",
						agentID, strings.Join(ap.AllowedRoles, ", ")),
				}
				s.auditDecision(ctx, "agent.access", ResourceAgent, agentID, result)
				return result
			}
			if ap.RequiredTrust != "" {
				trust := s.deviceTrust(ctx)
				if !trust.AtLeast(ap.RequiredTrust) {
					result = AccessResult{
						Allowed: false,
						Reason: fmt.Sprintf("agent '%s' requires device trust '%s' but device is '%s'",
							agentID, ap.RequiredTrust, trust),
					}
					s.auditDecision(ctx, "agent.access", ResourceAgent, agentID, result)
					return result
				}
			}
		}
	}

	s.auditDecision(ctx, "agent.access", ResourceAgent, agentID, result)
	return result
}

// CheckSkillAccess authorizes executing a skill: the skill:execute
// permission, the skill policy's required permissions, role intersection,
// required trust, and the dangerous-skill rule (dangerous skills never run
// from untrusted devices).
func (s *Service) CheckSkillAccess(ctx AccessContext, skillID string) AccessResult {
	result := s.evaluatePermission(ctx, PermSkillExecute)
	if !result.Allowed {
		s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, result)
		return result
	}

	if policy := s.scopedPolicy(ctx.Session); policy != nil {
		if sp := policy.skillPolicy(skillID); sp != nil {
			for _, perm := range sp.RequiredPermissions {
				if sub := s.evaluatePermission(ctx, perm); !sub.Allowed {
					s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, sub)
					return sub
				}
			}
			if len(sp.AllowedRoles) > 0 && !rolesIntersect(ctx.Session.Roles, sp.AllowedRoles) {
				result = AccessResult{
					Allowed: false,
					Reason: fmt.Sprintf("skill '%s' requires one of roles [%s]",
						skillID, strings.Join(sp.AllowedRoles, ", ")),
				}
				s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, result)
				return result
			}
			trust := s.deviceTrust(ctx)
			if sp.RequiredTrust != "" && !trust.AtLeast(sp.RequiredTrust) {
				result = AccessResult{
					Allowed: false,
					Reason: fmt.Sprintf("skill '%s' requires device trust '%s' but device is '%s'",
						skillID, sp.RequiredTrust, trust),
				}
				s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, result)
				return result
			}
			if sp.Dangerous && trust == TrustUntrusted {
				result = AccessResult{
					Allowed: false,
					Reason: fmt.Sprintf("skill '%s' is dangerous and cannot run from an untrusted device",
						skillID),
				}
				s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, result)
				return result
			}
		}
	}

	s.auditDecision(ctx, "skill.access", ResourceSkill, skillID, result)
	return result
}

// GetRepoPolicy returns the policy for a repo path, or nil.
func (s *Service) GetRepoPolicy(path string) *RepoPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[path]
	if !ok {
		return nil
	}
	clone := *policy
	return &clone
}

// SetRepoPolicy stores the policy keyed by its repo path.
func (s *Service) SetRepoPolicy(policy *RepoPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *policy
	s.policies[policy.RepoPath] = &clone
}

// Audit appends an entry to the audit log, assigning id and timestamp.
func (s *Service) Audit(entry AuditEntry) {
	if entry.ID == "" {
		entry.ID = s.ids.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	s.audit.Append(entry)
}

// GetAuditLog returns entries matching the filter, oldest first.
func (s *Service) GetAuditLog(filter AuditFilter) []AuditEntry {
	return s.audit.Query(filter)
}

// scopedPolicy looks up the repo policy for the session's first scope entry.
func (s *Service) scopedPolicy(session *Session) *RepoPolicy {
	if session == nil || len(session.Scope) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[session.Scope[0]]
}

// deviceTrust resolves the trust level for the context, preferring the
// explicit device and falling back to the session's registered device.
func (s *Service) deviceTrust(ctx AccessContext) TrustLevel {
	if ctx.Device != nil {
		return ctx.Device.Trust
	}
	if ctx.Session != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if device, ok := s.devices[ctx.Session.DeviceID]; ok {
			return device.Trust
		}
	}
	return TrustUntrusted
}

func (s *Service) auditDecision(ctx AccessContext, action string, rt ResourceType, resourceID string, result AccessResult) {
	entry := AuditEntry{
		Action:       action,
		ResourceType: rt,
		ResourceID:   resourceID,
		Reason:       result.Reason,
	}
	if result.Allowed {
		entry.Result = AuditAllowed
	} else {
		entry.Result = AuditDenied
	}
	if ctx.Session != nil {
		entry.SessionID = ctx.Session.ID
		entry.UserID = ctx.Session.UserID
		entry.DeviceID = ctx.Session.DeviceID
	}
	if ctx.Device != nil {
		entry.DeviceID = ctx.Device.ID
	}
	s.Audit(entry)
}

func rolesIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
