package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"carecompanion/pkg"
)

// RedisSessionStore keeps sessions in Redis so multiple instances of the
// service share routing state. Each session is one JSON blob under
// session:<subject>, expiring after the idle TTL; reads and writes both
// refresh the TTL, so Sweep is a no-op here.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore connects using a redis URL
// (redis://[user:pass@]host:port/db) and verifies the connection.
func NewRedisSessionStore(ctx context.Context, url string, ttl time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = SessionIdleTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func (r *RedisSessionStore) key(subjectID string) string {
	return sessionKeySpace + subjectID
}

func (r *RedisSessionStore) Get(ctx context.Context, subjectID string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(subjectID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var s Session
	if err := sonic.UnmarshalString(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	r.client.Expire(ctx, r.key(subjectID), r.ttl)
	return &s, nil
}

func (r *RedisSessionStore) SetActive(ctx context.Context, subjectID string, label pkg.RouteLabel) error {
	return r.update(ctx, subjectID, func(s *Session) {
		s.Active = label
	})
}

func (r *RedisSessionStore) ClearActive(ctx context.Context, subjectID string) error {
	return r.update(ctx, subjectID, func(s *Session) {
		s.Active = pkg.RouteUnset
	})
}

func (r *RedisSessionStore) AddTurn(ctx context.Context, subjectID string, turn SessionTurn) error {
	return r.update(ctx, subjectID, func(s *Session) {
		if turn.Timestamp.IsZero() {
			turn.Timestamp = time.Now()
		}
		s.RecentTurns = append(s.RecentTurns, turn)
		if len(s.RecentTurns) > MaxRecentTurns {
			s.RecentTurns = s.RecentTurns[len(s.RecentTurns)-MaxRecentTurns:]
		}
	})
}

func (r *RedisSessionStore) Touch(ctx context.Context, subjectID string) error {
	err := r.client.Expire(ctx, r.key(subjectID), r.ttl).Err()
	if err != nil {
		return fmt.Errorf("refreshing session ttl: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, subjectID string) error {
	if err := r.client.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis key expiry owns eviction.
func (r *RedisSessionStore) Sweep(time.Time) int {
	return 0
}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}

// update applies a read-modify-write on the session blob. Last write wins
// across concurrent requests for the same subject, which the routing
// domain tolerates.
func (r *RedisSessionStore) update(ctx context.Context, subjectID string, mutate func(*Session)) error {
	s, err := r.Get(ctx, subjectID)
	if errors.Is(err, ErrSessionNotFound) {
		s = &Session{SubjectID: subjectID}
	} else if err != nil {
		return err
	}

	mutate(s)
	s.LastActivity = time.Now()

	data, err := sonic.MarshalString(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(subjectID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
