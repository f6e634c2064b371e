package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Heavy-stats watermark policies.
const (
	HeavyStatsBestEffort = "best-effort"
	HeavyStatsStrict     = "strict"
)

type Config struct {
	Port              string
	LogLevel          string
	DatabaseURL       string
	QueryTimeout      time.Duration
	RegionsConfigPath string

	// Upstream API
	ClientID           string
	ClientSecret       string
	TokenURL           string
	ConnectTimeout     time.Duration
	IOTimeout          time.Duration
	RetryMax           int
	RetryMinBackoff    time.Duration
	RetryMaxBackoff    time.Duration
	RequestsPerSecond  int
	BreakerMaxFailures int
	BreakerReset       time.Duration
	FirstSeason        int
	LadderConcurrency  int
	MatchConcurrency   int

	// Scheduling frames
	UpdateTick            time.Duration
	MinCycleGap           time.Duration
	MatchUpdateFrame      time.Duration
	ForcedScanFrame       time.Duration
	MaintenanceFrequent   time.Duration
	MaintenanceInfrequent time.Duration
	HeavyStatsFrame       time.Duration
	HeavyStatsPolicy      string
	SharedUpstream        bool
	StaleAfter            time.Duration
	WorkerExtra           int
	WriteQueueSize        int
	MatchLookback         time.Duration
	MatchBatchLimit       int
	MatchRetention        time.Duration
	TeamStateRetention    time.Duration
	ArchiveRetention      time.Duration
}

func Load() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       getEnvRequired("DATABASE_URL"),
		QueryTimeout:      getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
		RegionsConfigPath: getEnv("REGIONS_CONFIG_PATH", ""),

		ClientID:           getEnv("BLIZZARD_CLIENT_ID", ""),
		ClientSecret:       getEnv("BLIZZARD_CLIENT_SECRET", ""),
		TokenURL:           getEnv("BLIZZARD_TOKEN_URL", "https://oauth.battle.net/token"),
		ConnectTimeout:     getEnvDuration("API_CONNECT_TIMEOUT", 10*time.Second),
		IOTimeout:          getEnvDuration("API_IO_TIMEOUT", 10*time.Second),
		RetryMax:           getEnvInt("API_RETRY_MAX", 3),
		RetryMinBackoff:    getEnvDuration("API_RETRY_MIN_BACKOFF", 300*time.Millisecond),
		RetryMaxBackoff:    getEnvDuration("API_RETRY_MAX_BACKOFF", time.Second),
		RequestsPerSecond:  getEnvInt("API_REQUESTS_PER_SECOND", 100),
		BreakerMaxFailures: getEnvInt("API_BREAKER_MAX_FAILURES", 20),
		BreakerReset:       getEnvDuration("API_BREAKER_RESET", time.Minute),
		FirstSeason:        getEnvInt("FIRST_SEASON", 28),
		LadderConcurrency:  getEnvInt("LADDER_CONCURRENCY", 10),
		MatchConcurrency:   getEnvInt("MATCH_CONCURRENCY", 100),

		UpdateTick:            getEnvDuration("UPDATE_TICK", 30*time.Second),
		MinCycleGap:           getEnvDuration("MIN_CYCLE_GAP", 210*time.Second),
		MatchUpdateFrame:      getEnvDuration("MATCH_UPDATE_FRAME", 50*time.Minute),
		ForcedScanFrame:       getEnvDuration("FORCED_SCAN_FRAME", 2*time.Hour),
		MaintenanceFrequent:   getEnvDuration("MAINTENANCE_FREQUENT_FRAME", 48*time.Hour),
		MaintenanceInfrequent: getEnvDuration("MAINTENANCE_INFREQUENT_FRAME", 240*time.Hour),
		HeavyStatsFrame:       getEnvDuration("HEAVY_STATS_FRAME", 24*time.Hour),
		HeavyStatsPolicy:      getEnvOneOf("HEAVY_STATS_POLICY", HeavyStatsBestEffort, HeavyStatsStrict),
		SharedUpstream:        getEnvBool("SHARED_UPSTREAM", false),
		StaleAfter:            getEnvDuration("STALE_AFTER", 15*time.Minute),
		WorkerExtra:           getEnvInt("WORKER_EXTRA", 2),
		WriteQueueSize:        getEnvInt("WRITE_QUEUE_SIZE", 16),
		MatchLookback:         getEnvDuration("MATCH_LOOKBACK", 24*time.Hour),
		MatchBatchLimit:       getEnvInt("MATCH_BATCH_LIMIT", 5000),
		MatchRetention:        getEnvDuration("MATCH_RETENTION", 30*24*time.Hour),
		TeamStateRetention:    getEnvDuration("TEAM_STATE_RETENTION", 90*24*time.Hour),
		ArchiveRetention:      getEnvDuration("ARCHIVE_RETENTION", 365*24*time.Hour),
	}
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvOneOf returns the env value if it is one of allowed, else allowed[0].
func getEnvOneOf(key string, allowed ...string) string {
	v := os.Getenv(key)
	if v == "" {
		return allowed[0]
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	slog.Warn("unsupported env var value, using default", "key", key, "value", v, "allowed", allowed)
	return allowed[0]
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
