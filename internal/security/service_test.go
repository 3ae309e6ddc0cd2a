package security

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderclaw/coderclaw/internal/common/ids"
	"github.com/coderclaw/coderclaw/internal/common/logger"
)

// settableClock lets tests move time forward.
type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *settableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewService(ids.NewUUIDGenerator(), logger.Default(), opts...)
}

func sessionWithRoles(t *testing.T, s *Service, roles ...string) *Session {
	t.Helper()
	session, err := s.CreateSession("user-1", "device-1", roles)
	require.NoError(t, err)
	return session
}

func TestEffectivePermissionsAreRoleUnion(t *testing.T) {
	s := newTestService(t)
	session := sessionWithRoles(t, s, "readonly", "operator")

	perms := s.GetEffectivePermissions(session)

	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	assert.True(t, set[PermTaskRead])
	assert.True(t, set[PermTaskCancel])
	assert.True(t, set[PermConfigRead])
	assert.True(t, set[PermConfigWrite])
	assert.False(t, set[PermTaskSubmit])
	assert.False(t, set[PermAdminAll])
}

func TestCheckPermissionDeniesReadonlySubmit(t *testing.T) {
	s := newTestService(t)
	session := sessionWithRoles(t, s, "readonly")

	result := s.CheckPermission(AccessContext{Session: session}, PermTaskSubmit, "")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "task:submit")
	assert.Contains(t, result.Missing, PermTaskSubmit)
}

func TestCheckPermissionAdminAllSatisfiesEverything(t *testing.T) {
	s := newTestService(t)
	session := sessionWithRoles(t, s, "admin")

	for _, perm := range []Permission{
		PermTaskSubmit, PermTaskRead, PermTaskCancel,
		PermAgentInvoke, PermSkillExecute, PermConfigWrite,
	} {
		result := s.CheckPermission(AccessContext{Session: session}, perm, "")
		assert.True(t, result.Allowed, "admin should hold %s", perm)
	}
}

func TestExpiredSessionDenies(t *testing.T) {
	clock := &settableClock{now: time.Now().UTC()}
	s := newTestService(t, WithClock(clock), WithSessionTTL(time.Hour))
	session := sessionWithRoles(t, s, "developer")

	result := s.CheckPermission(AccessContext{Session: session}, PermTaskSubmit, "")
	require.True(t, result.Allowed)

	clock.Advance(2 * time.Hour)

	result = s.CheckPermission(AccessContext{Session: session}, PermTaskSubmit, "")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "expired")
}

func TestSessionExpiryIsExclusiveBoundary(t *testing.T) {
	clock := &settableClock{now: time.Now().UTC()}
	s := newTestService(t, WithClock(clock), WithSessionTTL(time.Hour))
	session := sessionWithRoles(t, s, "developer")

	assert.True(t, session.ExpiresAt.After(session.GrantedAt))

	clock.Advance(time.Hour)
	assert.True(t, session.Expired(clock.Now()))
}

func TestVerifyDeviceRegistersUntrusted(t *testing.T) {
	s := newTestService(t)

	device := s.VerifyDevice("laptop-1")
	require.NotNil(t, device)
	assert.Equal(t, TrustUntrusted, device.Trust)

	// A second verification returns the same device with a refreshed
	// last-seen timestamp, not a new registration.
	again := s.VerifyDevice("laptop-1")
	assert.Equal(t, device.ID, again.ID)
	assert.False(t, again.LastSeen.Before(device.LastSeen))
}

func TestPromoteDeviceIsMonotonic(t *testing.T) {
	s := newTestService(t)
	s.VerifyDevice("laptop-1")

	promoted := s.PromoteDevice("laptop-1", TrustTrusted)
	require.NotNil(t, promoted)
	assert.Equal(t, TrustTrusted, promoted.Trust)

	// A promote to a lower level never downgrades.
	demoted := s.PromoteDevice("laptop-1", TrustVerified)
	require.NotNil(t, demoted)
	assert.Equal(t, TrustTrusted, demoted.Trust)
}

func TestAgentAccessRoleIntersection(t *testing.T) {
	s := newTestService(t)
	s.SetRepoPolicy(&RepoPolicy{
		RepoPath: "/repos/payments",
		AgentPolicies: []AgentPolicy{
			{AgentID: "code-creator", AllowedRoles: []string{"admin"}},
		},
	})

	session := sessionWithRoles(t, s, "developer")
	session.Scope = []string{"/repos/payments"}

	result := s.CheckAgentAccess(AccessContext{Session: session}, "code-creator")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "admin")

	// An agent with no specific policy passes on agent:invoke alone.
	result = s.CheckAgentAccess(AccessContext{Session: session}, "code-reviewer")
	assert.True(t, result.Allowed)
}

func TestAgentAccessRequiresDeviceTrust(t *testing.T) {
	s := newTestService(t)
	s.SetRepoPolicy(&RepoPolicy{
		RepoPath: "/repos/payments",
		AgentPolicies: []AgentPolicy{
			{AgentID: "code-creator", RequiredTrust: TrustTrusted},
		},
	})
	device := s.VerifyDevice("laptop-1")

	session := sessionWithRoles(t, s, "developer")
	session.Scope = []string{"/repos/payments"}

	result := s.CheckAgentAccess(AccessContext{Session: session, Device: device}, "code-creator")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "trust")

	s.PromoteDevice("laptop-1", TrustTrusted)
	trusted := s.VerifyDevice("laptop-1")
	result = s.CheckAgentAccess(AccessContext{Session: session, Device: trusted}, "code-creator")
	assert.True(t, result.Allowed)
}

func TestDangerousSkillDeniedOnUntrustedDevice(t *testing.T) {
	s := newTestService(t)
	s.SetRepoPolicy(&RepoPolicy{
		RepoPath: "/repos/payments",
		SkillPolicies: []SkillPolicy{
			{SkillID: "shell-exec", AllowedRoles: []string{"developer"}, Dangerous: true},
		},
	})
	device := s.VerifyDevice("laptop-1") // untrusted by default

	session := sessionWithRoles(t, s, "developer")
	session.Scope = []string{"/repos/payments"}

	result := s.CheckSkillAccess(AccessContext{Session: session, Device: device}, "shell-exec")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "dangerous")
	assert.Contains(t, result.Reason, "untrusted")

	// Verified trust is enough for a dangerous skill.
	s.PromoteDevice("laptop-1", TrustVerified)
	verified := s.VerifyDevice("laptop-1")
	result = s.CheckSkillAccess(AccessContext{Session: session, Device: verified}, "shell-exec")
	assert.True(t, result.Allowed)
}

func TestSkillAccessEnforcesRequiredPermissions(t *testing.T) {
	s := newTestService(t)
	s.SetRepoPolicy(&RepoPolicy{
		RepoPath: "/repos/payments",
		SkillPolicies: []SkillPolicy{
			{SkillID: "config-edit", RequiredPermissions: []Permission{PermConfigWrite}},
		},
	})

	session := sessionWithRoles(t, s, "developer")
	session.Scope = []string{"/repos/payments"}

	result := s.CheckSkillAccess(AccessContext{Session: session}, "config-edit")
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "config:write")
}

func TestRepoPolicyRoundTrip(t *testing.T) {
	s := newTestService(t)

	policy := &RepoPolicy{
		RepoPath:     "/repos/payments",
		EnforceTrust: true,
		MinTrust:     TrustVerified,
		AllowedRoles: []string{"developer", "admin"},
	}
	s.SetRepoPolicy(policy)

	got := s.GetRepoPolicy("/repos/payments")
	require.NotNil(t, got)
	assert.Equal(t, policy.RepoPath, got.RepoPath)
	assert.Equal(t, policy.MinTrust, got.MinTrust)
	assert.Equal(t, policy.AllowedRoles, got.AllowedRoles)

	assert.Nil(t, s.GetRepoPolicy("/repos/unknown"))
}

func TestEveryDecisionIsAudited(t *testing.T) {
	s := newTestService(t)
	session := sessionWithRoles(t, s, "readonly")
	ctx := AccessContext{Session: session}

	s.CheckPermission(ctx, PermTaskRead, "t1")   // allow
	s.CheckPermission(ctx, PermTaskSubmit, "t2") // deny

	entries := s.GetAuditLog(AuditFilter{UserID: "user-1"})
	require.Len(t, entries, 2)
	assert.Equal(t, AuditAllowed, entries[0].Result)
	assert.Equal(t, AuditDenied, entries[1].Result)
	assert.Contains(t, entries[1].Reason, "task:submit")
}

func TestAuditLogFilters(t *testing.T) {
	s := newTestService(t)
	sessionA := sessionWithRoles(t, s, "readonly")
	ctxA := AccessContext{Session: sessionA}

	s.CheckPermission(ctxA, PermTaskRead, "")
	s.CheckAgentAccess(ctxA, "code-creator")

	byAction := s.GetAuditLog(AuditFilter{Action: "agent.access"})
	require.Len(t, byAction, 1)
	assert.Equal(t, ResourceAgent, byAction[0].ResourceType)

	since := s.GetAuditLog(AuditFilter{Since: time.Now().UTC().Add(time.Hour)})
	assert.Empty(t, since)
}

func TestAuthenticateUserLocalProvider(t *testing.T) {
	s := newTestService(t, WithCredentialProvider(NewEnvProvider("CODERCLAW_TEST_")))

	user, err := s.AuthenticateUser(ProviderLocal, map[string]string{"user": "alex"})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, user.Provider)
	assert.Equal(t, "alex", user.DisplayName)
	assert.NotEmpty(t, user.ID)

	_, err = s.AuthenticateUser(ProviderGitHub, nil)
	require.Error(t, err)

	_, err = s.AuthenticateUser(Provider("bogus"), nil)
	require.Error(t, err)
}
