package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/infra/memory"
)

// SessionRegistry decorates the in-memory registry with Redis liveness
// markers. Live session state stays in-process (the per-PIN mutexes are the
// serialization point); Redis records which PINs exist and for which quiz, so
// operators and sibling instances can observe active games.
type SessionRegistry struct {
	*memory.SessionRegistry
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRegistry(client *redis.Client, factory memory.SessionFactory, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		SessionRegistry: memory.NewSessionRegistry(factory),
		client:          client,
		ttl:             ttl,
	}
}

func (r *SessionRegistry) Create(quizID string) (*app.Session, error) {
	session, err := r.SessionRegistry.Create(quizID)
	if err != nil {
		return nil, err
	}
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(session.Pin()), quizID, r.ttl).Err()
	return session, nil
}

func (r *SessionRegistry) Delete(pin string) {
	r.SessionRegistry.Delete(pin)
	_ = r.client.Del(context.Background(), r.key(pin)).Err()
}

func (r *SessionRegistry) key(pin string) string {
	return "pool:session:" + pin
}
