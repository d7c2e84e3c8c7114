package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// StreamManager fans turn diffs out to the SSE subscribers of a session.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- []byte]struct{} // SessionID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for sessionID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- []byte]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers reports how many streams are open for sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Publish sends diff to every subscriber of its session. Slow clients
// lose messages instead of blocking the turn.
func (sm *StreamManager) Publish(diff *domain.SessionDiff) {
	if diff == nil {
		return
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs := sm.subscribers[diff.SessionID]
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("failed to encode session diff", "session_id", diff.SessionID, "err", err)
		return
	}
	for ch := range subs {
		select {
		case ch <- payload:
		default:
			sm.logger.Warn("sse client buffer full, dropping diff", "session_id", diff.SessionID)
		}
	}
}

// subscribeSession handles GET /v1/sessions/{sessionID}/events.
func (s *Server) subscribeSession(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	watch := parseWatch(r.URL.Query().Get("watch"))

	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("sse subscriber connected", "session_id", sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse subscriber disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !matchesWatch(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "event: diff\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func parseWatch(raw string) []string {
	if raw == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// matchesWatch keeps a diff when any watched field changed.
func matchesWatch(msg []byte, watch []string) bool {
	var diff domain.SessionDiff
	if err := json.Unmarshal(msg, &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "node":
			if diff.CurrentNodeID != nil {
				return true
			}
		case "status":
			if diff.Status != nil {
				return true
			}
		case "variables":
			if len(diff.Variables) > 0 {
				return true
			}
		case "visited":
			if len(diff.Visited) > 0 {
				return true
			}
		}
	}
	return false
}
