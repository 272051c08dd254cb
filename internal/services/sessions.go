package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arnold/phasetrack-api/internal/config"
	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionStore tracks live refresh-token sessions so they can be revoked.
type SessionStore interface {
	Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error)
	Lookup(ctx context.Context, sessionID string) (uuid.UUID, error)
	Revoke(ctx context.Context, sessionID string) error
}

var Sessions SessionStore = NewMemorySessions()

// InitSessions uses Redis when an address is configured and reachable,
// otherwise sessions live in process memory.
func InitSessions(ctx context.Context, cfg *config.Config) {
	if cfg.RedisAddr == "" {
		logger.Log.Info("sessions: no redis configured, using memory store")
		Sessions = NewMemorySessions()
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Warn("sessions: redis unreachable, using memory store", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		Sessions = NewMemorySessions()
		return
	}
	Sessions = NewRedisSessions(rdb)
	logger.Log.Info("sessions: using redis", zap.String("addr", cfg.RedisAddr))
}

type RedisSessions struct {
	rdb *redis.Client
}

func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisSessions) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionKey(id), userID.String(), ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisSessions) Lookup(ctx context.Context, sessionID string) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

func (s *RedisSessions) Revoke(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

type memorySession struct {
	userID  uuid.UUID
	expires time.Time
}

type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memorySession), now: time.Now}
}

func (s *MemorySessions) Create(_ context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.sessions[id] = memorySession{userID: userID, expires: s.now().Add(ttl)}
	return id, nil
}

func (s *MemorySessions) Lookup(_ context.Context, sessionID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}
	if s.now().After(sess.expires) {
		delete(s.sessions, sessionID)
		return uuid.Nil, ErrSessionNotFound
	}
	return sess.userID, nil
}

func (s *MemorySessions) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
