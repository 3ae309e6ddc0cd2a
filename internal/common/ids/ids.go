// Package ids provides identifier generation and timestamping for tasks,
// workflows, sessions, users and audit entries.
package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces globally unique opaque identifiers. Identifiers carry at
// least 128 bits of entropy; collisions are treated as impossible.
type Generator interface {
	NewID() string
}

// UUIDGenerator generates random UUIDv4 identifiers.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a UUID-backed identifier generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewID returns a new random identifier.
func (g *UUIDGenerator) NewID() string {
	return uuid.New().String()
}

// Clock supplies timestamps. Injected so tests can control time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock UTC time, guarded so that consecutive calls
// never go backwards. Journal ordering depends on this.
type SystemClock struct {
	mu   sync.Mutex
	last time.Time
}

// NewSystemClock creates a monotonic-nondecreasing system clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current UTC time, never earlier than a previous result.
func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}
