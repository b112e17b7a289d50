package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/citmax/maxxi-live/config"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrMaxSessions is returned when the gateway is at capacity
var ErrMaxSessions = errors.New("maximum sessions reached")

const (
	sessionKeyPrefix  = "session:"
	activeSessionsKey = "active_sessions"
)

// Manager manages all client sessions
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	opts     ClientOptions
	metrics  *metrics.Metrics
}

// NewManager creates a session manager. redisClient may be nil, in which
// case sessions are only tracked in memory.
func NewManager(cfg *config.Config, redisClient *redis.Client, dialer live.Dialer, tools ToolDispatcher, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*ClientSession),
		redis:    redisClient,
		config:   cfg,
		metrics:  m,
		opts: ClientOptions{
			Dialer:        dialer,
			Tools:         tools,
			Metrics:       m,
			Voice:         cfg.GeminiVoice,
			Location:      cfg.Location,
			MaxBufferSize: cfg.MaxBufferSize,
			KeepAlive:     cfg.KeepAlivePeriod,
		},
	}
}

// CreateSession creates a new client session
func (sm *Manager) CreateSession(ctx context.Context, clientConn *websocket.Conn) (*ClientSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		sm.metrics.SessionRejected("capacity")
		return nil, ErrMaxSessions
	}

	sessionID := uuid.New().String()
	session := NewClientSession(ctx, sessionID, clientConn, sm.opts)

	sm.storeSession(ctx, sessionID, session)
	return session, nil
}

// storeSession saves a session to memory and Redis
func (sm *Manager) storeSession(ctx context.Context, sessionID string, session *ClientSession) {
	sm.sessions[sessionID] = session

	if sm.redis != nil {
		key := sessionKeyPrefix + sessionID
		pipe := sm.redis.TxPipeline()
		pipe.HSet(ctx, key, map[string]any{
			"created_at":    session.CreatedAt.Format(time.RFC3339),
			"last_activity": session.LastActivity.Format(time.RFC3339),
			"status":        "active",
		})
		pipe.SAdd(ctx, activeSessionsKey, sessionID)
		pipe.Expire(ctx, key, sm.config.SessionTimeout)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Str("session", shortID(sessionID)).Msg("⚠️ Failed to register session in Redis")
		}
	}
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession cleans up and removes a session
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if !exists {
		return nil
	}

	err := session.Close()
	sm.forget(ctx, sessionID)
	return err
}

func (sm *Manager) forget(ctx context.Context, sessionID string) {
	if sm.redis == nil {
		return
	}
	pipe := sm.redis.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+sessionID)
	pipe.SRem(ctx, activeSessionsKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("session", shortID(sessionID)).Msg("⚠️ Failed to remove session from Redis")
	}
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// GetLiveCallCount returns the number of clients with a voice session in
// progress
func (sm *Manager) GetLiveCallCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	n := 0
	for _, s := range sm.sessions {
		if s.Driver.Status().active() {
			n++
		}
	}
	return n
}

// CleanupInactiveSessions removes sessions that have been inactive
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	now := time.Now()

	sm.mu.Lock()
	var stale []*ClientSession
	for id, session := range sm.sessions {
		if now.Sub(session.IdleSince()) > sm.config.SessionTimeout {
			stale = append(stale, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range stale {
		log.Info().Str("session", shortID(session.ID)).Msg("🧹 Closing inactive session")
		_ = session.Close()
		sm.forget(ctx, session.ID)
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions
func (sm *Manager) Shutdown(ctx context.Context) {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*ClientSession)
	sm.mu.Unlock()

	for id, session := range sessions {
		_ = session.Close()
		sm.forget(ctx, id)
	}
}
