package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Database drivers understood by the store factory.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string

	SourceDir      string
	SourceManifest string

	HTTPAddr           string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration

	// Mapbox geocoding configuration. The token has no default; address-based
	// categories are not ingested without one.
	MapboxToken       string
	MapboxTimeout     time.Duration
	MapboxCacheSize   int
	MapboxRateLimit   float64
	MapboxMaxAttempts int
	MapboxCountry     string
	MapboxProximity   string

	// GeocodeTimeout bounds one resolution including retries.
	GeocodeTimeout time.Duration

	// Optional change feed of ingested records.
	KafkaBrokers []string
	KafkaTopic   string
}

// GeocodingEnabled reports whether a Mapbox credential was supplied.
func (c *Config) GeocodingEnabled() bool { return c.MapboxToken != "" }

// KafkaEnabled reports whether ingested records should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 && c.KafkaTopic != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parsePositiveDuration("GEOCODE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAPBOX_RATE_LIMIT", "10"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid MAPBOX_RATE_LIMIT")
	}

	maxAttempts, err := strconv.Atoi(sharedcfg.EnvOrDefault("MAPBOX_MAX_ATTEMPTS", "3"))
	if err != nil || maxAttempts < 1 || maxAttempts > 10 {
		return nil, errors.New("invalid MAPBOX_MAX_ATTEMPTS: must be between 1 and 10")
	}

	cfg := &Config{
		DatabaseDriver: strings.ToLower(sharedcfg.EnvOrDefault("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    sharedcfg.EnvOrDefault("DATABASE_URL", "file:poimap.db"),
		SourceDir:      sharedcfg.EnvOrDefault("SOURCE_DIR", "data"),
		SourceManifest: os.Getenv("SOURCE_MANIFEST"),

		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,

		MapboxToken:       os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:     mapboxTimeout,
		MapboxCacheSize:   parseMapboxCacheSize(),
		MapboxRateLimit:   rateLimit,
		MapboxMaxAttempts: maxAttempts,
		MapboxCountry:     sharedcfg.EnvOrDefault("MAPBOX_COUNTRY", "us"),
		MapboxProximity:   os.Getenv("MAPBOX_PROXIMITY"),
		GeocodeTimeout:    geocodeTimeout,

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.New("invalid DATABASE_DRIVER: must be sqlite or postgres")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.MapboxProximity != "" && !validProximity(cfg.MapboxProximity) {
		return nil, errors.New("invalid MAPBOX_PROXIMITY: expected \"lng,lat\"")
	}
	if cfg.KafkaTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_TOPIC is set but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func validProximity(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return false
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	return err1 == nil && err2 == nil && lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}
