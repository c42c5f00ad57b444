// Package config loads the service configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/sun"
)

// Config is the complete service configuration.
type Config struct {
	HTTPAddr string
	// CORSOrigins are the dashboard origins allowed by the API.
	CORSOrigins []string
	LogLevel    string
	LogFormat   string
	Provider    ProviderConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Sentry      SentryConfig
	// AreaWorkers bounds the per-entity fan-out of an area analysis.
	AreaWorkers int
	Sun         sun.Location
	AreasFile   string
}

// ProviderConfig holds the QuantumLeap connection settings.
type ProviderConfig struct {
	Address        string
	FiwareService  string
	ServicePaths   map[model.Service]string
	APIKey         string
	Timeout        time.Duration
	MaxConcurrency int
}

type DatabaseConfig struct {
	URL string
}

// KafkaConfig enables the day report publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := getEnvDurationOrDefault("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", ":8080"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "json"),
		Provider: ProviderConfig{
			Address:       strings.TrimRight(os.Getenv("QUANTUMLEAP_ADDRESS"), "/"),
			FiwareService: os.Getenv("FIWARE_SERVICE"),
			ServicePaths: map[model.Service]string{
				model.ServiceTampere:  os.Getenv("FIWARE_SERVICE_PATH_TAMPERE"),
				model.ServiceViinikka: os.Getenv("FIWARE_SERVICE_PATH_VIINIKKA"),
			},
			APIKey:         os.Getenv("FIWARE_APIKEY"),
			Timeout:        timeout,
			MaxConcurrency: getEnvIntOrDefault("PROVIDER_MAX_CONCURRENCY", 4),
		},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "streetlight.day-reports"),
		},
		Sentry: SentryConfig{
			DSN:         os.Getenv("SENTRY_DSN"),
			Environment: getEnvOrDefault("SENTRY_ENVIRONMENT", "development"),
			Release:     os.Getenv("SENTRY_RELEASE"),
		},
		AreaWorkers: getEnvIntOrDefault("AREA_WORKERS", 8),
		Sun: sun.Location{
			Latitude:  getEnvFloatOrDefault("SUN_LATITUDE", sun.DefaultLatitude),
			Longitude: getEnvFloatOrDefault("SUN_LONGITUDE", sun.DefaultLongitude),
		},
		AreasFile: os.Getenv("AREAS_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Provider.MaxConcurrency <= 0 {
		return apperr.ConfigInvalid("PROVIDER_MAX_CONCURRENCY must be positive, got %d", c.Provider.MaxConcurrency)
	}
	if c.AreaWorkers <= 0 {
		return apperr.ConfigInvalid("AREA_WORKERS must be positive, got %d", c.AreaWorkers)
	}
	if c.Provider.Timeout <= 0 {
		return apperr.ConfigInvalid("PROVIDER_TIMEOUT must be positive")
	}
	if c.Sun.Latitude < -90 || c.Sun.Latitude > 90 {
		return apperr.ConfigInvalid("SUN_LATITUDE out of range: %v", c.Sun.Latitude)
	}
	if c.Sun.Longitude < -180 || c.Sun.Longitude > 180 {
		return apperr.ConfigInvalid("SUN_LONGITUDE out of range: %v", c.Sun.Longitude)
	}
	return nil
}

// LoadAreas reads the area catalog from a JSON file holding a list of
// areas. An empty path returns the built-in default areas.
func LoadAreas(path string) ([]model.Area, error) {
	if path == "" {
		return DefaultAreas(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ConfigInvalid("reading areas file: %v", err)
	}
	var areas []model.Area
	if err := json.Unmarshal(data, &areas); err != nil {
		return nil, apperr.ConfigInvalid("parsing areas file %s: %v", path, err)
	}
	for i, a := range areas {
		if a.Name == "" {
			return nil, apperr.ConfigInvalid("area %d has no name", i)
		}
		if !a.Service.Valid() {
			return nil, apperr.ConfigInvalid("area %s: unknown service %q", a.Name, a.Service)
		}
		if a.IlluminanceDevice == "" {
			areas[i].IlluminanceDevice = a.Service.Info().DefaultIlluminanceDevice
		}
	}
	return areas, nil
}

// DefaultAreas returns one empty area per service.
func DefaultAreas() []model.Area {
	return []model.Area{
		{
			Name:              "tampere",
			Service:           model.ServiceTampere,
			EntityType:        "Streetlight",
			IlluminanceDevice: model.ServiceTampere.Info().DefaultIlluminanceDevice,
		},
		{
			Name:              "viinikka",
			Service:           model.ServiceViinikka,
			EntityType:        "Streetlight",
			IlluminanceDevice: model.ServiceViinikka.Info().DefaultIlluminanceDevice,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, apperr.ConfigInvalid("%s: %v", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String hides secrets.
func (c *Config) String() string {
	return fmt.Sprintf("addr=%s provider=%s db=%t kafka=%d sentry=%t workers=%d",
		c.HTTPAddr, c.Provider.Address, c.Database.URL != "", len(c.Kafka.Brokers), c.Sentry.DSN != "", c.AreaWorkers)
}
