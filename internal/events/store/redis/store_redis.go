package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"nymreg/internal/events"
	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/sentinel"
)

const (
	// Per-account event list and a global recency list.
	accountKeyPrefix = "evt:acct:"
	recentKey        = "evt:recent"
)

// Store is the Redis-backed event store for multi-instance deployments that
// need a shared recent-notifications view without a full database.
type Store struct {
	client    *redis.Client
	maxRecent int64
}

type Option func(*Store)

// WithMaxRecent bounds the shared recency list. Default 1024.
func WithMaxRecent(n int64) Option {
	return func(s *Store) {
		s.maxRecent = n
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, maxRecent: 1024}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Append(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, accountKeyPrefix+event.Account.Hex(), payload)
	pipe.LPush(ctx, recentKey, payload)
	pipe.LTrim(ctx, recentKey, 0, s.maxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, account id.Account) ([]events.Event, error) {
	raw, err := s.client.LRange(ctx, accountKeyPrefix+account.Hex(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", sentinel.ErrUnavailable)
	}
	return decodeAll(raw)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]events.Event, error) {
	raw, err := s.client.LRange(ctx, recentKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", sentinel.ErrUnavailable)
	}
	// recentKey is newest-first; return oldest-first like the other stores.
	out, err := decodeAll(raw)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func decodeAll(raw []string) ([]events.Event, error) {
	out := make([]events.Event, 0, len(raw))
	for _, r := range raw {
		var e events.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
