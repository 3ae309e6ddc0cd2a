// Package security provides the authorization layer every dispatch decision
// flows through: identity, device trust, sessions, permissions, repo
// policies and the audit log.
package security

import "time"

// Provider identifies where a user identity was issued.
type Provider string

const (
	ProviderOIDC   Provider = "oidc"
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
	ProviderLocal  Provider = "local"
)

// IsValid reports whether p belongs to the closed provider set.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOIDC, ProviderGitHub, ProviderGoogle, ProviderLocal:
		return true
	}
	return false
}

// DeviceType classifies a registered device.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceServer  DeviceType = "server"
	DeviceCI      DeviceType = "ci"
)

// TrustLevel orders device trust. Untrusted is the registration default and
// a device's level never downgrades implicitly.
type TrustLevel string

const (
	TrustUntrusted TrustLevel = "untrusted"
	TrustVerified  TrustLevel = "verified"
	TrustTrusted   TrustLevel = "trusted"
)

// rank orders trust levels for comparison.
func (t TrustLevel) rank() int {
	switch t {
	case TrustTrusted:
		return 2
	case TrustVerified:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t meets or exceeds the required level.
func (t TrustLevel) AtLeast(required TrustLevel) bool {
	return t.rank() >= required.rank()
}

// Permission is the closed permission vocabulary. PermAdminAll satisfies
// every check.
type Permission string

const (
	PermTaskSubmit   Permission = "task:submit"
	PermTaskRead     Permission = "task:read"
	PermTaskCancel   Permission = "task:cancel"
	PermAgentInvoke  Permission = "agent:invoke"
	PermSkillExecute Permission = "skill:execute"
	PermConfigRead   Permission = "config:read"
	PermConfigWrite  Permission = "config:write"
	PermAdminAll     Permission = "admin:all"
)

// UserIdentity is an authenticated user.
type UserIdentity struct {
	ID          string   `json:"id"`
	Provider    Provider `json:"provider"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Verified    bool     `json:"verified"`
}

// Device is a registered execution endpoint.
type Device struct {
	ID       string     `json:"id"`
	Type     DeviceType `json:"type"`
	Trust    TrustLevel `json:"trust"`
	LastSeen time.Time  `json:"last_seen"`
}

// Session binds a user and device to a time-bounded permission set.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Roles     []string  `json:"roles"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Scope confines the session to the listed repo paths; empty means
	// unscoped.
	Scope []string `json:"scope,omitempty"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AgentPolicy scopes which session roles may invoke an agent within a repo.
type AgentPolicy struct {
	AgentID       string     `json:"agent_id"`
	AllowedRoles  []string   `json:"allowed_roles,omitempty"`
	DeniedRoles   []string   `json:"denied_roles,omitempty"`
	RequiredTrust TrustLevel `json:"required_trust,omitempty"`
}

// SkillPolicy scopes skill execution within a repo.
type SkillPolicy struct {
	SkillID             string       `json:"skill_id"`
	RequiredPermissions []Permission `json:"required_permissions,omitempty"`
	AllowedRoles        []string     `json:"allowed_roles,omitempty"`
	RequiredTrust       TrustLevel   `json:"required_trust,omitempty"`
	Dangerous           bool         `json:"dangerous"`
}

// RepoPolicy is the authorization policy for one repository path.
type RepoPolicy struct {
	RepoPath      string        `json:"repo_path"`
	EnforceTrust  bool          `json:"enforce_trust"`
	MinTrust      TrustLevel    `json:"min_trust,omitempty"`
	AllowedRoles  []string      `json:"allowed_roles,omitempty"`
	AllowedUsers  []string      `json:"allowed_users,omitempty"`
	DeniedUsers   []string      `json:"denied_users,omitempty"`
	AgentPolicies []AgentPolicy `json:"agent_policies,omitempty"`
	SkillPolicies []SkillPolicy `json:"skill_policies,omitempty"`
}

// agentPolicy finds the policy for an agent id, or nil.
func (p *RepoPolicy) agentPolicy(agentID string) *AgentPolicy {
	for i := range p.AgentPolicies {
		if p.AgentPolicies[i].AgentID == agentID {
			return &p.AgentPolicies[i]
		}
	}
	return nil
}

// skillPolicy finds the policy for a skill id, or nil.
func (p *RepoPolicy) skillPolicy(skillID string) *SkillPolicy {
	for i := range p.SkillPolicies {
		if p.SkillPolicies[i].SkillID == skillID {
			return &p.SkillPolicies[i]
		}
	}
	return nil
}

// ResourceType classifies the target of an audited action.
type ResourceType string

const (
	ResourceTask   ResourceType = "task"
	ResourceAgent  ResourceType = "agent"
	ResourceSkill  ResourceType = "skill"
	ResourceConfig ResourceType = "config"
)

// AuditResult records the outcome of an audited action.
type AuditResult string

const (
	AuditAllowed AuditResult = "allowed"
	AuditDenied  AuditResult = "denied"
	AuditError   AuditResult = "error"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	UserID       string                 `json:"user_id,omitempty"`
	DeviceID     string                 `json:"device_id,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	ResourceType ResourceType           `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Result       AuditResult            `json:"result"`
	Reason       string                 `json:"reason,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// AuditFilter narrows an audit log query. Zero-value fields are ignored.
type AuditFilter struct {
	UserID string
	Action string
	Since  time.Time
}

// AccessContext carries the authenticated state a check runs against.
type AccessContext struct {
	Session *Session
	Device  *Device
}

// AccessResult is the outcome of an authorization check. The security
// service never raises on ordinary denial; it returns a result.
type AccessResult struct {
	Allowed  bool         `json:"allowed"`
	Reason   string       `json:"reason,omitempty"`
	Required []Permission `json:"required,omitempty"`
	Missing  []Permission `json:"missing,omitempty"`
}

// SecurityRole maps a session role id to its granted permissions. The role
// table is read-only at runtime.
type SecurityRole struct {
	ID          string       `json:"id"`
	Permissions []Permission `json:"permissions"`
}

// DefaultSecurityRoles returns the built-in session role table.
func DefaultSecurityRoles() []SecurityRole {
	return []SecurityRole{
		{ID: "admin", Permissions: []Permission{PermAdminAll}},
		{ID: "developer", Permissions: []Permission{
			PermTaskSubmit, PermTaskRead, PermTaskCancel,
			PermAgentInvoke, PermSkillExecute, PermConfigRead,
		}},
		{ID: "operator", Permissions: []Permission{
			PermTaskRead, PermTaskCancel, PermConfigRead, PermConfigWrite,
		}},
		{ID: "readonly", Permissions: []Permission{
			PermTaskRead, PermConfigRead,
		}},
	}
}
