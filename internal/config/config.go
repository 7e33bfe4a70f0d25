package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Scrape   ScrapeConfig
	Rotation RotationConfig
	Ingest   IngestConfig
	Scoring  ScoringConfig
	Queue    QueueConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	RateLimit  int
	RateWindow time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// ScrapeConfig drives the orchestrator: how often a cycle runs, how wide it
// fans out and how it backs off per platform.
type ScrapeConfig struct {
	CycleCron        string
	CycleDeadline    time.Duration
	FetchTimeout     time.Duration
	Workers          int
	MaxRetries       int
	RetryBackoffBase time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Keywords         []string

	StubHubURL      string
	TicketmasterURL string
	ViagogoURL      string
	TickPickURL     string
	FunZoneURL      string
}

type RotationConfig struct {
	BanThreshold int
	CooldownBase time.Duration
	CooldownCap  time.Duration
}

type IngestConfig struct {
	// GraceMissedCycles is how many consecutive cycles a listing may be
	// absent from a batch before it is marked unavailable.
	GraceMissedCycles int
	StalenessWindow   time.Duration
	RetentionWindow   time.Duration
}

// ScoringConfig holds every weight and threshold of the recommendation
// formula so the rule is swappable without touching the pipeline.
type ScoringConfig struct {
	TrendWindow       int
	SlopeEpsilon      float64
	WeightPrice       float64
	WeightTrend       float64
	WeightUrgency     float64
	WeightReliability float64
	UrgencyCapDays    int
	ReliabilityAlpha  float64
}

type QueueConfig struct {
	ReservationTTL time.Duration
	ExpireCron     string
}

type NotifyConfig struct {
	Concurrency int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:       envString("SERVER_HOST", "localhost"),
			Port:       serverPort,
			RateLimit:  envIntDefault("SERVER_RATE_LIMIT", 120),
			RateWindow: envDuration("SERVER_RATE_WINDOW", time.Minute),
		},
		Postgres: PostgresConfig{
			User:     postgresUser,
			Password: postgresPassword,
			Name:     postgresDB,
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     postgresPort,
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Scrape: ScrapeConfig{
			CycleCron:        envString("SCRAPE_CYCLE_CRON", "0 */5 * * * *"),
			CycleDeadline:    envDuration("SCRAPE_CYCLE_DEADLINE", 4*time.Minute),
			FetchTimeout:     envDuration("SCRAPE_FETCH_TIMEOUT", 30*time.Second),
			Workers:          envIntDefault("SCRAPE_WORKERS", 8),
			MaxRetries:       envIntDefault("SCRAPE_MAX_RETRIES", 3),
			RetryBackoffBase: envDuration("SCRAPE_RETRY_BACKOFF", 2*time.Second),
			BreakerThreshold: envIntDefault("SCRAPE_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  envDuration("SCRAPE_BREAKER_COOLDOWN", 10*time.Minute),
			Keywords:         envList("SCRAPE_KEYWORDS", "Manchester United,Old Trafford,Premier League,Champions League"),

			// empty means the adapter's built-in endpoint
			StubHubURL:      envString("STUBHUB_BASE_URL", ""),
			TicketmasterURL: envString("TICKETMASTER_BASE_URL", ""),
			ViagogoURL:      envString("VIAGOGO_BASE_URL", ""),
			TickPickURL:     envString("TICKPICK_BASE_URL", ""),
			FunZoneURL:      envString("FUNZONE_BASE_URL", ""),
		},
		Rotation: RotationConfig{
			BanThreshold: envIntDefault("ROTATION_BAN_THRESHOLD", 5),
			CooldownBase: envDuration("ROTATION_COOLDOWN_BASE", 30*time.Second),
			CooldownCap:  envDuration("ROTATION_COOLDOWN_CAP", 30*time.Minute),
		},
		Ingest: IngestConfig{
			GraceMissedCycles: envIntDefault("INGEST_GRACE_CYCLES", 2),
			StalenessWindow:   envDuration("INGEST_STALENESS_WINDOW", 48*time.Hour),
			RetentionWindow:   envDuration("INGEST_RETENTION_WINDOW", 30*24*time.Hour),
		},
		Scoring: ScoringConfig{
			TrendWindow:       envIntDefault("SCORING_TREND_WINDOW", 5),
			SlopeEpsilon:      envFloat("SCORING_SLOPE_EPSILON", 0.01),
			WeightPrice:       envFloat("SCORING_WEIGHT_PRICE", 0.4),
			WeightTrend:       envFloat("SCORING_WEIGHT_TREND", 0.2),
			WeightUrgency:     envFloat("SCORING_WEIGHT_URGENCY", 0.2),
			WeightReliability: envFloat("SCORING_WEIGHT_RELIABILITY", 0.2),
			UrgencyCapDays:    envIntDefault("SCORING_URGENCY_CAP_DAYS", 30),
			ReliabilityAlpha:  envFloat("SCORING_RELIABILITY_ALPHA", 0.2),
		},
		Queue: QueueConfig{
			ReservationTTL: envDuration("QUEUE_RESERVATION_TTL", 10*time.Minute),
			ExpireCron:     envString("QUEUE_EXPIRE_CRON", "30 * * * * *"),
		},
		Notify: NotifyConfig{
			Concurrency: envIntDefault("NOTIFY_CONCURRENCY", 4),
		},
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

// envIntDefault is envInt for tunables where a malformed value should fall
// back instead of failing startup.
func envIntDefault(key string, def int) int {
	n, err := envInt(key, def)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}

	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}

	return d
}

func envList(key, def string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
