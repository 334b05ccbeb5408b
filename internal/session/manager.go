package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/observe"
	"github.com/mgoltzsche/sobub/internal/pipeline"
	"github.com/mgoltzsche/sobub/internal/pubsub"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

// Processor runs the pipeline for an audio chunk.
type Processor interface {
	Process(ctx context.Context, audio []byte, opts pipeline.Options) pipeline.Result
}

// Manager keeps track of the connected sessions.
type Manager struct {
	ctx      context.Context
	pipeline Processor
	engines  *trigger.Provider
	statuses *pubsub.PubSub[string, model.Notification]
	metrics  *observe.Metrics
	sessions map[string]*Session
	mutex    sync.Mutex
}

func NewManager(ctx context.Context, p Processor, engines *trigger.Provider, metrics *observe.Metrics) *Manager {
	return &Manager{
		ctx:      ctx,
		pipeline: p,
		engines:  engines,
		statuses: pubsub.New[string, model.Notification](),
		metrics:  metrics,
		sessions: map[string]*Session{},
	}
}

// NewID generates a session ID for clients that did not provide one.
func NewID() string {
	return ulid.Make().String()
}

// Open starts a session for the given client.
// An existing session of the same client is closed while the client's
// trigger engine is kept.
func (m *Manager) Open(id string) *Session {
	s := newSession(m.ctx, id, m)

	m.mutex.Lock()
	previous := m.sessions[id]
	m.sessions[id] = s
	m.mutex.Unlock()

	if previous != nil {
		slog.Info(fmt.Sprintf("client %s reconnected, closing previous session", id))
		previous.Close()
	}

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(m.ctx, 1)
	}

	slog.Info(fmt.Sprintf("client %s connected", id))

	return s
}

func (m *Manager) remove(s *Session) {
	m.mutex.Lock()
	current := m.sessions[s.ID]
	if current == s {
		delete(m.sessions, s.ID)
	}
	m.mutex.Unlock()

	if current == s && m.engines.Scope() == trigger.ScopeSession {
		m.engines.Release(s.ID)
	}

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.WithoutCancel(m.ctx), -1)
	}

	slog.Info(fmt.Sprintf("client %s disconnected", s.ID))
}

// Count returns the number of connected sessions.
func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.sessions)
}

// Status returns the trigger engine status of the given session.
func (m *Manager) Status(id string) trigger.Status {
	return m.engines.Engine(id).Status()
}

// BroadcastStatus sends the current engine status to every session.
func (m *Manager) BroadcastStatus() {
	m.mutex.Lock()
	ids := make(map[string]string, len(m.sessions))
	for id := range m.sessions {
		ids[m.engines.Key(id)] = id
	}
	m.mutex.Unlock()

	for _, id := range ids {
		m.publishStatus(id)
	}
}

func (m *Manager) publishStatus(id string) {
	m.statuses.Publish(m.engines.Key(id), m.statusNotification(id))
}

func (m *Manager) statusNotification(id string) model.Notification {
	return model.Notification{Type: model.NotificationStatus, Data: m.Status(id)}
}

// Close closes all sessions and waits for their workers to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.mutex.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}

	m.statuses.Stop()

	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("wait for sessions to close: %w", ctx.Err())
		case <-time.After(30 * time.Second):
			return fmt.Errorf("timed out waiting for session %s to close", s.ID)
		}
	}

	return nil
}
