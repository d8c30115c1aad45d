package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps session records as JSON strings with a sliding TTL.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "pgi:session:"
	}
	return prefix + id
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * time.Minute
	}
	return s.TTL
}

func (s RedisStore) Load(ctx context.Context, id string) (Record, bool, error) {
	if s.Client == nil {
		return Record{}, false, errors.New("session: redis client not configured")
	}
	raw, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("session: decode record: %w", err)
	}
	return rec, true, nil
}

func (s RedisStore) Save(ctx context.Context, id string, rec Record) error {
	if s.Client == nil {
		return errors.New("session: redis client not configured")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(id), raw, s.ttl()).Err()
}

func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.Client == nil {
		return errors.New("session: redis client not configured")
	}
	return s.Client.Del(ctx, s.key(id)).Err()
}

func (s RedisStore) Move(ctx context.Context, from, to string) error {
	if s.Client == nil {
		return errors.New("session: redis client not configured")
	}
	err := s.Client.Rename(ctx, s.key(from), s.key(to)).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "no such key") {
		return nil
	}
	return err
}
