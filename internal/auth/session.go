package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	sessionKeyPrefix = "fitassess-session||"
	tokensSetKey     = "fitassess-sessions"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// RedisSessionStore persists sessions as JSON under a per-token key with the session TTL,
// and keeps an index set of all issued tokens.
type RedisSessionStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisSessionStore(redisClient *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	sessionJson, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.redisClient.Set(ctx, sessionKeyPrefix+session.Token, string(sessionJson), s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if err := s.redisClient.SAdd(ctx, tokensSetKey, session.Token).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}

	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, token string) (*Session, error) {
	cmd := s.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(cmd.Val()), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	cmdDel := s.redisClient.Del(ctx, sessionKeyPrefix+token)
	if err := cmdDel.Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}

	if cmdDel.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ScanAndClean drops tokens whose session key already expired from the index set.
func (s *RedisSessionStore) ScanAndClean(ctx context.Context) int {
	cmd := s.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("session store, scan and clean, get sessions: %s", err)
		return 0
	}

	tokens := cmd.Val()
	if len(tokens) == 0 {
		log.Debugln("session store, scan and clean abort, no sessions")
		return 0
	}

	log.Debugf("session store, scan and clean [%d sessions] start ...", len(tokens))
	removed := 0
	for _, token := range tokens {
		exists, err := s.redisClient.Exists(ctx, sessionKeyPrefix+token).Result()
		if err != nil {
			log.Errorf("session store, scan and clean token %s: %s", token, err)
			continue
		}
		if exists > 0 {
			continue
		}

		if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("session store, clean token %s: %s", token, err)
			continue
		}
		removed++
	}

	return removed
}
