package security

import (
	"fmt"
	"os"
)

// CredentialProvider validates credentials for one identity provider tag.
// Issuing or verifying real tokens belongs to an external identity
// collaborator; providers here only bridge to it.
type CredentialProvider interface {
	Provider() Provider
	Authenticate(credentials map[string]string) (*UserIdentity, error)
}

// EnvProvider authenticates 'local' users from environment variables or an
// explicit user credential. Intended for CLI and test use.
type EnvProvider struct {
	prefix string // Optional env prefix (e.g. "CODERCLAW_")
}

// NewEnvProvider creates a local credential provider reading prefixed
// environment variables.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Provider returns the provider tag this provider serves.
func (p *EnvProvider) Provider() Provider {
	return ProviderLocal
}

// Authenticate resolves the user name from the 'user' credential or the
// <prefix>USER environment variable.
func (p *EnvProvider) Authenticate(credentials map[string]string) (*UserIdentity, error) {
	name := credentials["user"]
	if name == "" {
		name = os.Getenv(p.prefix + "USER")
	}
	if name == "" {
		return nil, fmt.Errorf("local credentials missing 'user'")
	}

	return &UserIdentity{
		DisplayName: name,
		Email:       credentials["email"],
		Verified:    true,
	}, nil
}
