package nats

import (
	"context"
	"sync"

	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/snapshot"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	snapshotEvents   []*SnapshotEvent
	intentEvents     []*IntentEvent
	publishSnapError error
	publishIntError  error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSnapshot records the event and returns any configured error.
func (m *MockPublisher) PublishSnapshot(ctx context.Context, snap *snapshot.AccountSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishSnapError != nil {
		return m.publishSnapError
	}

	m.snapshotEvents = append(m.snapshotEvents, FromSnapshot(snap))
	return nil
}

// PublishIntent records the event and returns any configured error.
func (m *MockPublisher) PublishIntent(ctx context.Context, out orchestrator.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishIntError != nil {
		return m.publishIntError
	}

	m.intentEvents = append(m.intentEvents, FromOutcome(out))
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SnapshotEvents returns all published snapshot events.
func (m *MockPublisher) SnapshotEvents() []*SnapshotEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*SnapshotEvent, len(m.snapshotEvents))
	copy(events, m.snapshotEvents)
	return events
}

// IntentEvents returns all published intent events.
func (m *MockPublisher) IntentEvents() []*IntentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*IntentEvent, len(m.intentEvents))
	copy(events, m.intentEvents)
	return events
}

// SetPublishSnapshotError configures the mock to fail snapshot publishes.
func (m *MockPublisher) SetPublishSnapshotError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishSnapError = err
}

// SetPublishIntentError configures the mock to fail intent publishes.
func (m *MockPublisher) SetPublishIntentError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishIntError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
