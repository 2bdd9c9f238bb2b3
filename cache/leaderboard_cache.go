package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

const standingsKey = "minigame:leaderboard:live"

// LeaderboardCache keeps the ranked live standings as one JSON blob in redis.
// Entries are stored already ranked, so the creation time used for ordering is not kept.
// Writers invalidate; the next reader recomputes and fills it again.
type LeaderboardCache struct {
	log *logger.Logger
	rdb *goredis.Client
	key string
	ttl time.Duration
}

// New returns nil, nil when addr is empty so callers can run without redis.
func New(addr, password string, ttl time.Duration, log *logger.Logger) (*LeaderboardCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, nil
	}
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &LeaderboardCache{
		log: log.With("service", "LeaderboardCache"),
		rdb: rdb,
		key: standingsKey,
		ttl: ttl,
	}, nil
}

// Get reports ok=false on a miss. An undecodable blob is dropped and treated as a miss.
func (c *LeaderboardCache) Get(ctx context.Context) ([]models.LeaderboardEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn("dropping undecodable standings blob", "error", err)
		_ = c.rdb.Del(ctx, c.key).Err()
		return nil, false, nil
	}
	return entries, true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, entries []models.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key, raw, c.ttl).Err()
}

func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}

func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *LeaderboardCache) Close() error {
	return c.rdb.Close()
}
