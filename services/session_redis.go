package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"docrag-platform/models"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps sessions in redis for multi-instance deployments.
// Expiry rides on key TTL, refreshed on every append, so no sweep job is
// needed. Append uses an optimistic WATCH transaction to keep the
// append-then-cap step atomic across processes.
type RedisSessionStore struct {
	client     *redis.Client
	ttl        time.Duration
	historyCap int
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration, historyCap int) *RedisSessionStore {
	return &RedisSessionStore{
		client:     client,
		ttl:        ttl,
		historyCap: historyCap,
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (s *RedisSessionStore) Create(ctx context.Context) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
		Messages:       []models.Message{},
	}
	if err := s.write(ctx, s.client, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, id string, msg models.Message) error {
	key := sessionKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}

		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}

		session.Messages = append(session.Messages, msg)
		if overflow := len(session.Messages) - s.historyCap; overflow > 0 {
			session.Messages = session.Messages[overflow:]
		}
		session.LastActivityAt = time.Now()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, &session)
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("session append contention on %s", id)
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) write(ctx context.Context, c redis.Cmdable, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}
