package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	redisx "github.com/hdtickets/scout/internal/redis"
	"github.com/redis/go-redis/v9"
)

// Lua script updating the per-platform reliability EWMA in one round trip.
// KEYS[1] = reliability key
// ARGV[1] = sample (0 or 100)
// ARGV[2] = alpha
const luaReliability = `
local cur = tonumber(redis.call('GET', KEYS[1]))
local sample = tonumber(ARGV[1])
local alpha = tonumber(ARGV[2])
if cur == nil then cur = 100 end
local new = alpha * sample + (1 - alpha) * cur
redis.call('SET', KEYS[1], new)
return tostring(new)
`

// PlatformHealthStore keeps the exponentially-weighted fetch success rate
// and raw outcome counters per platform.
type PlatformHealthStore struct {
	rdb    *redis.Client
	alpha  float64
	script *redis.Script
}

func NewPlatformHealthStore(rdb *redis.Client, alpha float64) *PlatformHealthStore {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &PlatformHealthStore{
		rdb:    rdb,
		alpha:  alpha,
		script: redis.NewScript(luaReliability),
	}
}

// RecordFetch folds one fetch outcome into the platform's reliability and
// returns the updated value in [0,100].
func (s *PlatformHealthStore) RecordFetch(
	ctx context.Context,
	platform domain.Platform,
	outcome domain.FetchOutcome,
	latency time.Duration,
) (float64, error) {
	sample := 0
	field := "failures"
	if outcome == domain.FetchSuccess {
		sample = 100
		field = "successes"
	}

	res, err := s.script.Run(
		ctx,
		s.rdb,
		[]string{redisx.KeyPlatformReliability(string(platform))},
		sample, s.alpha,
	).Text()
	if err != nil {
		return 0, err
	}

	reliability, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, err
	}

	healthKey := redisx.KeyPlatformHealth(string(platform))
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, healthKey, field, 1)
	pipe.HSet(ctx, healthKey,
		"last_fetch", time.Now().UTC().Format(time.RFC3339),
		"last_latency_ms", latency.Milliseconds(),
	)
	_, _ = pipe.Exec(ctx)

	return reliability, nil
}

// Reliability reads the current EWMA without recording anything. Platforms
// never fetched report full reliability.
func (s *PlatformHealthStore) Reliability(ctx context.Context, platform domain.Platform) (float64, error) {
	v, err := s.rdb.Get(ctx, redisx.KeyPlatformReliability(string(platform))).Result()
	if err == redis.Nil {
		return 100, nil
	}
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(v, 64)
}

// Health returns the counters snapshot for one platform.
func (s *PlatformHealthStore) Health(ctx context.Context, platform domain.Platform) (*domain.PlatformHealth, error) {
	reliability, err := s.Reliability(ctx, platform)
	if err != nil {
		return nil, err
	}

	m, err := s.rdb.HGetAll(ctx, redisx.KeyPlatformHealth(string(platform))).Result()
	if err != nil {
		return nil, err
	}

	h := &domain.PlatformHealth{
		Platform:    platform,
		Reliability: reliability,
	}
	h.Successes, _ = strconv.ParseInt(m["successes"], 10, 64)
	h.Failures, _ = strconv.ParseInt(m["failures"], 10, 64)
	if t, err := time.Parse(time.RFC3339, m["last_fetch"]); err == nil {
		h.LastFetch = t
	}

	return h, nil
}
