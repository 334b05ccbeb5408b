// Package session manages the connected soundboard clients.
// Every session processes its audio chunks sequentially and emits its
// notifications in generation order through a single outbound queue.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/pipeline"
	"github.com/mgoltzsche/sobub/internal/pubsub"
)

const (
	audioQueueSize    = 8
	outboundQueueSize = 32
)

// Session represents one connected client.
type Session struct {
	ID       string
	manager  *Manager
	ctx      context.Context
	cancel   context.CancelFunc
	audio    chan []byte
	outbound chan model.Notification
	done     chan struct{}
	once     sync.Once
}

func newSession(ctx context.Context, id string, m *Manager) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:       id,
		manager:  m,
		ctx:      ctx,
		cancel:   cancel,
		audio:    make(chan []byte, audioQueueSize),
		outbound: make(chan model.Notification, outboundQueueSize),
		done:     make(chan struct{}),
	}

	statuses := m.statuses.Subscribe(ctx, m.engines.Key(id))

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		s.processAudio()
	}()

	go func() {
		defer wg.Done()
		s.forwardStatuses(statuses)
	}()

	go func() {
		wg.Wait()
		close(s.done)
	}()

	return s
}

// Outbound returns the notifications to be sent to the client.
// The channel is never closed; use Done to detect the end of the session.
func (s *Session) Outbound() <-chan model.Notification {
	return s.outbound
}

// Done is closed once the session was closed and its workers exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Context is cancelled when the session is closed.
func (s *Session) Context() context.Context {
	return s.ctx
}

// HandleAudio enqueues an audio chunk for processing.
// Chunks are dropped while the queue is full.
func (s *Session) HandleAudio(data []byte) {
	select {
	case s.audio <- data:
	case <-s.ctx.Done():
	default:
		slog.Warn(fmt.Sprintf("dropping audio chunk of client %s since processing cannot keep up", s.ID))
	}
}

// HandleControl handles a JSON control message.
// Malformed and unknown messages are logged and ignored.
func (s *Session) HandleControl(data []byte) {
	var msg model.ControlMessage

	err := json.Unmarshal(data, &msg)
	if err != nil {
		slog.Warn(fmt.Sprintf("ignoring invalid control message from client %s", s.ID), "err", err)
		return
	}

	switch msg.Type {
	case model.ControlPing:
		s.send(model.Notification{Type: model.NotificationPong})
	case model.ControlGetStatus:
		s.send(s.manager.statusNotification(s.ID))
	case model.ControlAudioEnded:
		s.manager.engines.Engine(s.ID).StartCooldown()
		slog.Info(fmt.Sprintf("audio ended for client %s, cooldown started", s.ID))
		s.manager.publishStatus(s.ID)
	default:
		slog.Warn(fmt.Sprintf("ignoring unknown control message type %q from client %s", msg.Type, s.ID))
	}
}

// Close stops the session workers. Pending audio chunks are discarded.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.manager.remove(s)
	})
}

func (s *Session) processAudio() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.audio:
			opts := pipeline.Options{SessionID: s.ID}
			result := s.manager.pipeline.Process(s.ctx, data, opts)

			for _, msg := range pipeline.BuildMessages(result) {
				if !s.send(msg) {
					return
				}
			}
		}
	}
}

func (s *Session) forwardStatuses(statuses pubsub.Subscription[model.Notification]) {
	defer statuses.Stop()

	for msg := range statuses.ResultChan() {
		if !s.send(msg) {
			return
		}
	}
}

func (s *Session) send(msg model.Notification) bool {
	select {
	case s.outbound <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}
