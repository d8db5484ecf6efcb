package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	UpstreamURL     string
	UpstreamTimeout time.Duration

	RedisAddr      string
	CacheOpTimeout time.Duration

	LocalCapacity   int
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	FallbackTTL     time.Duration

	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration

	CoalesceGrace time.Duration

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	ttlDefault := getduration("CACHE_TTL_DEFAULT", 5*time.Minute)

	// Slow-moving datasets hold longer than near-real-time ones.
	ttlOvr := map[string]time.Duration{
		"emissions":   5 * time.Minute,
		"forecast":    30 * time.Minute,
		"consumption": 5 * time.Minute,
		"gridmix":     time.Hour,
		"production":  time.Hour,
	}
	for k, v := range parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")) {
		ttlOvr[k] = v
	}

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		UpstreamURL:     getenv("UPSTREAM_URL", "https://api.energidataservice.dk/dataset"),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 10*time.Second),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		LocalCapacity:   getint("CACHE_LOCAL_CAPACITY", 100),
		CacheTTLDefault: ttlDefault,
		CacheTTLOvr:     ttlOvr,
		FallbackTTL:     getduration("CACHE_TTL_FALLBACK", 2*time.Hour),

		RetryMaxAttempts: getint("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff: getduration("RETRY_BASE_BACKOFF", time.Second),
		RetryMaxBackoff:  getduration("RETRY_MAX_BACKOFF", 10*time.Second),

		CoalesceGrace: getduration("COALESCE_GRACE", 100*time.Millisecond),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "energy-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "energy-cache-invalidator"),
		},
	}
}

// TTLFor resolves the local/shared cache TTL for a resource.
func (c Config) TTLFor(resource string) time.Duration {
	if d, ok := c.CacheTTLOvr[resource]; ok {
		return d
	}
	return c.CacheTTLDefault
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "emissions=10m,gridmix=2h" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
