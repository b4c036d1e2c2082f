// Package store is the shared mutable configuration store backing the bot's
// remote control surface. It keeps the enable switches, the active model
// name, and the tracked-sender set in Redis, one value per key, relying on
// nothing beyond Redis's native per-key atomicity.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	KeyEnabled = "enabled"
	KeyMy      = "my"
	KeyFriend  = "friend"
	KeyModel   = "model"
	KeyTracked = "tracked_users"
)

type Store struct {
	rdb    *redis.Client
	logger *log.Logger
}

func New(addr string, logger *log.Logger) *Store {
	return &Store{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Seed fills in defaults for any key missing from the store. Existing values
// are left alone, so restarts keep the operator's current settings.
func (s *Store) Seed(ctx context.Context, defaultModel string, defaultTracked int64) error {
	defaults := []struct{ key, value string }{
		{KeyEnabled, "1"},
		{KeyMy, "1"},
		{KeyFriend, "1"},
		{KeyModel, defaultModel},
	}
	for _, d := range defaults {
		if err := s.rdb.SetNX(ctx, d.key, d.value, 0).Err(); err != nil {
			return fmt.Errorf("seed %s: %w", d.key, err)
		}
	}

	initial := []int64{}
	if defaultTracked != 0 {
		initial = append(initial, defaultTracked)
	}
	raw, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("marshal tracked users: %w", err)
	}
	if err := s.rdb.SetNX(ctx, KeyTracked, string(raw), 0).Err(); err != nil {
		return fmt.Errorf("seed %s: %w", KeyTracked, err)
	}
	return nil
}

func (s *Store) flag(ctx context.Context, key string) bool {
	v, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error("read flag", "key", key, "error", err)
		}
		return false
	}
	return v == "1"
}

func (s *Store) setFlag(ctx context.Context, key string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	if err := s.rdb.Set(ctx, key, v, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Enabled(ctx context.Context) bool { return s.flag(ctx, KeyEnabled) }
func (s *Store) My(ctx context.Context) bool      { return s.flag(ctx, KeyMy) }
func (s *Store) Friend(ctx context.Context) bool  { return s.flag(ctx, KeyFriend) }

func (s *Store) SetEnabled(ctx context.Context, on bool) error {
	return s.setFlag(ctx, KeyEnabled, on)
}

func (s *Store) SetMy(ctx context.Context, on bool) error {
	return s.setFlag(ctx, KeyMy, on)
}

func (s *Store) SetFriend(ctx context.Context, on bool) error {
	return s.setFlag(ctx, KeyFriend, on)
}

func (s *Store) Model(ctx context.Context) string {
	v, err := s.rdb.Get(ctx, KeyModel).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error("read model", "error", err)
		}
		return ""
	}
	return v
}

func (s *Store) SetModel(ctx context.Context, name string) error {
	if err := s.rdb.Set(ctx, KeyModel, name, 0).Err(); err != nil {
		return fmt.Errorf("set model: %w", err)
	}
	return nil
}

// TrackedUsers returns the current tracked-sender snapshot. A missing or
// malformed value yields an empty list rather than an error so that display
// paths never fail on a cosmetic read.
func (s *Store) TrackedUsers(ctx context.Context) []int64 {
	raw, err := s.rdb.Get(ctx, KeyTracked).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error("read tracked users", "error", err)
		}
		return nil
	}
	var users []int64
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		s.logger.Error("decode tracked users", "error", err)
		return nil
	}
	return users
}

func (s *Store) saveTracked(ctx context.Context, users []int64) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal tracked users: %w", err)
	}
	if err := s.rdb.Set(ctx, KeyTracked, string(raw), 0).Err(); err != nil {
		return fmt.Errorf("save tracked users: %w", err)
	}
	return nil
}

// AddTracked inserts id into the tracked-sender set. It reports false when
// the id was already present. Read-modify-write without a transaction: the
// controlling account is the only writer.
func (s *Store) AddTracked(ctx context.Context, id int64) (bool, error) {
	users := s.TrackedUsers(ctx)
	for _, u := range users {
		if u == id {
			return false, nil
		}
	}
	if err := s.saveTracked(ctx, append(users, id)); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveTracked deletes id from the tracked-sender set, reporting false when
// it was absent.
func (s *Store) RemoveTracked(ctx context.Context, id int64) (bool, error) {
	users := s.TrackedUsers(ctx)
	for i, u := range users {
		if u == id {
			if err := s.saveTracked(ctx, append(users[:i], users[i+1:]...)); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
