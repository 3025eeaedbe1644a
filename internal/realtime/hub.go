// Package realtime pushes committed task changes to connected sessions.
//
// A Hub routes events to the sessions subscribed to a task and to
// sessions whose user appears in the event audience ("my tasks"). Each
// session owns a bounded queue drained by one goroutine, so a session sees
// events in publish order and a slow session never stalls the others.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

var (
	ErrHubClosed       = errors.New("hub closed")
	ErrSessionExists   = errors.New("session already attached")
	ErrSessionNotFound = errors.New("session not found")
)

// Sink delivers events to one connected client.
type Sink interface {
	Send(ctx context.Context, event models.ChangeEvent) error
	Close()
}

type HubOptions struct {
	// QueueSize bounds the events buffered per session. A session whose
	// queue is full is detached.
	QueueSize int

	// WriteTimeout bounds a single Sink.Send.
	WriteTimeout time.Duration
}

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
)

type Hub struct {
	logger zerolog.Logger
	opts   HubOptions

	mu       sync.Mutex
	sessions map[string]*session
	byTask   map[string]map[string]*session
	closed   bool

	wg sync.WaitGroup
}

var _ services.Publisher = (*Hub)(nil)

type session struct {
	id       string
	userID   string
	sink     Sink
	queue    chan models.ChangeEvent
	done     chan struct{}
	tasks    map[string]struct{}
	ownTasks bool
}

func NewHub(logger zerolog.Logger, opts HubOptions) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*session),
		byTask:   make(map[string]map[string]*session),
	}
}

// Attach registers a session and starts its delivery goroutine. The hub
// closes sink once the session is detached.
func (h *Hub) Attach(sessionID, userID string, sink Sink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.sessions[sessionID]; ok {
		return ErrSessionExists
	}

	s := &session{
		id:     sessionID,
		userID: userID,
		sink:   sink,
		queue:  make(chan models.ChangeEvent, h.opts.QueueSize),
		done:   make(chan struct{}),
		tasks:  make(map[string]struct{}),
	}
	h.sessions[sessionID] = s

	h.wg.Add(1)
	go h.deliver(s)

	h.logger.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("attached session")
	return nil
}

// Detach drops the session and all of its subscriptions. Detaching an
// unknown session is a no-op.
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	h.detachLocked(s)
	h.logger.Debug().
		Str("session_id", sessionID).
		Msg("detached session")
}

func (h *Hub) Subscribe(sessionID, taskID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.tasks[taskID] = struct{}{}

	subscribers, ok := h.byTask[taskID]
	if !ok {
		subscribers = make(map[string]*session)
		h.byTask[taskID] = subscribers
	}
	subscribers[sessionID] = s
	return nil
}

// Unsubscribe is a no-op if the session was not subscribed to taskID.
func (h *Hub) Unsubscribe(sessionID, taskID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	h.unsubscribeLocked(s, taskID)
	return nil
}

// SubscribeOwnTasks routes every event that concerns the session's user
// to the session.
func (h *Hub) SubscribeOwnTasks(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.ownTasks = true
	return nil
}

// Publish enqueues event for every matching session and never blocks.
// Task subscribers whose user is missing from a non-empty audience are
// skipped, since they lost access to the task.
func (h *Hub) Publish(event models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	recipients := make(map[string]*session)
	for id, s := range h.byTask[event.TaskID] {
		if len(event.Audience) == 0 || event.Concerns(s.userID) {
			recipients[id] = s
		}
	}
	for id, s := range h.sessions {
		if s.ownTasks && event.Concerns(s.userID) {
			recipients[id] = s
		}
	}

	for _, s := range recipients {
		select {
		case s.queue <- event:
		default:
			h.logger.Warn().
				Str("session_id", s.id).
				Str("task_id", event.TaskID).
				Msg("session queue is full, detaching")
			h.detachLocked(s)
		}
	}

	switch event.Kind {
	case models.EventTaskDeleted:
		for _, s := range h.byTask[event.TaskID] {
			delete(s.tasks, event.TaskID)
		}
		delete(h.byTask, event.TaskID)
	case models.EventCollaboratorRemoved:
		var payload models.CollaboratorRemovedPayload
		err := json.Unmarshal(event.Payload, &payload)
		if err != nil {
			h.logger.Error().
				Err(err).
				Str("task_id", event.TaskID).
				Msg("failed to unmarshal collaborator removed payload")
			break
		}
		for _, s := range h.byTask[event.TaskID] {
			if s.userID == payload.CollaboratorID {
				h.unsubscribeLocked(s, event.TaskID)
			}
		}
	}

	h.logger.Trace().
		Str("task_id", event.TaskID).
		Str("event", string(event.Kind)).
		Int("recipients", len(recipients)).
		Msg("fanned out event")
}

// SessionCount reports the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close detaches every session and waits for the delivery goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, s := range h.sessions {
		h.detachLocked(s)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info().Msg("closed realtime hub")
}

func (h *Hub) deliver(s *session) {
	defer h.wg.Done()
	defer s.sink.Close()

	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
			err := s.sink.Send(ctx, event)
			cancel()
			if err != nil {
				h.logger.Warn().
					Err(err).
					Str("session_id", s.id).
					Msg("failed to deliver event, detaching")
				h.Detach(s.id)
				return
			}
		}
	}
}

func (h *Hub) detachLocked(s *session) {
	if h.sessions[s.id] != s {
		return
	}
	for taskID := range s.tasks {
		h.unsubscribeLocked(s, taskID)
	}
	delete(h.sessions, s.id)
	close(s.done)
}

func (h *Hub) unsubscribeLocked(s *session, taskID string) {
	delete(s.tasks, taskID)
	subscribers := h.byTask[taskID]
	delete(subscribers, s.id)
	if len(subscribers) == 0 {
		delete(h.byTask, taskID)
	}
}
