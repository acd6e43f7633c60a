// Package config loads the service configuration from a YAML file and
// APICACHE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/cache"
	"github.com/illmade-knight/go-apicache/pkg/coordinator"
	"github.com/illmade-knight/go-apicache/pkg/microservice"
	"github.com/illmade-knight/go-apicache/pkg/telemetry"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "APICACHE_"

// CacheConfig combines the storage backend with the caching policy.
type CacheConfig struct {
	Store  cache.Config       `yaml:",inline"`
	Policy coordinator.Config `yaml:",inline"`
}

// Config is the complete service configuration.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`

	Upstream upstream.Config  `yaml:"upstream"`
	Cache    CacheConfig      `yaml:"cache"`
	Auth     auth.Config      `yaml:"auth"`
	Metrics  telemetry.Config `yaml:"metrics"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			HTTPPort:    ":8080",
			ServiceName: "apicache",
		},
		Upstream: upstream.DefaultConfig(),
		Cache: CacheConfig{
			Store: cache.Config{
				Backend:        cache.BackendFile,
				StaleRetention: cache.KeepForever,
				File:           cache.FileConfig{Dir: ".apicache"},
				Firestore:      cache.FirestoreConfig{CollectionName: "apicache"},
				GCS:            cache.GCSConfig{ObjectPrefix: "apicache"},
			},
			Policy: coordinator.DefaultConfig(),
		},
		Auth:    auth.DefaultConfig(),
		Metrics: telemetry.Config{Enabled: true, Exporter: telemetry.ExporterPrometheus},
	}
}

// Load reads the YAML file at path (if path is not empty) over the defaults,
// applies environment overrides and validates the result.
func Load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if err := cfg.applyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if cfg.Cache.Store.Firestore.ProjectID == "" {
		cfg.Cache.Store.Firestore.ProjectID = cfg.ProjectID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookupEnv(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookupEnv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookupEnv(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("HTTP_PORT", &c.HTTPPort)
	str("PROJECT_ID", &c.ProjectID)
	str("CREDENTIALS_FILE", &c.CredentialsFile)

	str("UPSTREAM_ENDPOINT", &c.Upstream.Endpoint)
	dur("UPSTREAM_TIMEOUT", &c.Upstream.Timeout)

	str("CACHE_BACKEND", &c.Cache.Store.Backend)
	str("CACHE_KEY_PREFIX", &c.Cache.Policy.KeyPrefix)
	dur("CACHE_TTL", &c.Cache.Policy.TTL)
	dur("CACHE_FLAG_TTL", &c.Cache.Policy.FlagTTL)
	dur("CACHE_STALE_RETENTION", &c.Cache.Store.StaleRetention)
	boolean("CACHE_SINGLE_FLIGHT", &c.Cache.Policy.SingleFlight)
	str("CACHE_DIR", &c.Cache.Store.File.Dir)
	str("REDIS_ADDR", &c.Cache.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Store.Redis.Password)
	integer("REDIS_DB", &c.Cache.Store.Redis.DB)
	str("FIRESTORE_COLLECTION", &c.Cache.Store.Firestore.CollectionName)
	str("GCS_BUCKET", &c.Cache.Store.GCS.BucketName)
	str("GCS_PREFIX", &c.Cache.Store.GCS.ObjectPrefix)

	str("AUTH_SIGNING_KEY", &c.Auth.SigningKey)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("AUTH_ADMIN_ROLE", &c.Auth.AdminRole)
	dur("AUTH_NONCE_TTL", &c.Auth.NonceTTL)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_EXPORTER", &c.Metrics.Exporter)

	return errors.Join(errs...)
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Upstream.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.endpoint must be an http(s) URL, got %q", c.Upstream.Endpoint))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if c.Cache.Policy.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.Policy.FlagTTL <= 0 {
		errs = append(errs, errors.New("cache.flag_ttl must be positive"))
	}
	if c.Cache.Store.StaleRetention < 0 {
		errs = append(errs, errors.New("cache.stale_retention cannot be negative"))
	}
	if err := cache.ValidateKey(c.Cache.Policy.KeyPrefix); c.Cache.Policy.KeyPrefix != "" && err != nil {
		errs = append(errs, fmt.Errorf("cache.key_prefix %q: %w", c.Cache.Policy.KeyPrefix, err))
	}

	switch c.Cache.Store.Backend {
	case cache.BackendMemory:
	case cache.BackendFile:
		if c.Cache.Store.File.Dir == "" {
			errs = append(errs, errors.New("cache.file.dir is required for the file backend"))
		}
	case cache.BackendRedis:
		if c.Cache.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis backend"))
		}
	case cache.BackendFirestore:
		if c.Cache.Store.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("project_id is required for the firestore backend"))
		}
	case cache.BackendGCS:
		if c.Cache.Store.GCS.BucketName == "" {
			errs = append(errs, errors.New("cache.gcs.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Store.Backend))
	}

	if c.Auth.SigningKey != "" && len(c.Auth.SigningKey) < 32 {
		errs = append(errs, errors.New("auth.signing_key must be at least 32 bytes"))
	}

	return errors.Join(errs...)
}
