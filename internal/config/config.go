// Package config loads service configuration from environment variables,
// falling back to a YAML file selected by CONFIG_FILE or CONFIG_PHASE.
//
// YAML keys are flattened to UPPER_SNAKE names, so
//
//	server:
//	  http_addr: ":8080"
//
// supplies SERVER_HTTP_ADDR. Environment variables always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	Level    string // debug|info|warn|error
	Format   string // text|json
	Output   string // console|file|both
	FilePath string
}

// ServerConfig configures cmd/server. An empty DSN or address disables that backend.
type ServerConfig struct {
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string

	PostgresDSN   string // empty selects the in-memory store
	ClickhouseDSN string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	KafkaBrokers  []string
	KafkaTopic    string

	// KafkaBatchTimeout bounds the producer's batching delay on each ledger write.
	KafkaBatchTimeout time.Duration

	JWTSecret string // empty disables write authentication

	RevalueInterval time.Duration // zero disables the periodic job
	PriceFile       string
	RevalueBatch    int

	Log LogConfig
}

// RevalueConfig configures cmd/revalue.
type RevalueConfig struct {
	PostgresDSN   string
	ClickhouseDSN string
	PriceFile     string
	BatchSize     int
	Log           LogConfig
}

// LoadServerConfig reads ServerConfig.
func LoadServerConfig() (ServerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ServerConfig{}, err
	}

	readTimeout, err := envDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	writeTimeout, err := envDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	idleTimeout, err := envDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	cacheTTL, err := envDuration("REDIS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	redisDB, err := envNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return ServerConfig{}, err
	}
	kafkaBatchTimeout, err := envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond)
	if err != nil {
		return ServerConfig{}, err
	}
	revalueInterval, err := envOptionalDuration("REVALUE_INTERVAL")
	if err != nil {
		return ServerConfig{}, err
	}
	revalueBatch, err := envInt("REVALUE_BATCH_SIZE", 500)
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		HTTPAddr:          envOrDefault("SERVER_HTTP_ADDR", ":8080"),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		AllowedOrigins:    parseCSVEnv(envOrDefault("SERVER_ALLOWED_ORIGINS", "*"), []string{"*"}),
		PostgresDSN:       envOrDefault("POSTGRES_DSN", ""),
		ClickhouseDSN:     envOrDefault("CLICKHOUSE_DSN", ""),
		RedisAddr:         envOrDefault("REDIS_ADDR", ""),
		RedisPassword:     envOrDefault("REDIS_PASSWORD", ""),
		RedisDB:           redisDB,
		CacheTTL:          cacheTTL,
		KafkaBrokers:      parseCSVEnv(envOrDefault("KAFKA_BROKERS", ""), nil),
		KafkaTopic:        envOrDefault("KAFKA_TOPIC", "swap-ledger.events"),
		KafkaBatchTimeout: kafkaBatchTimeout,
		JWTSecret:         envOrDefault("JWT_SECRET", ""),
		RevalueInterval:   revalueInterval,
		PriceFile:         envOrDefault("REVALUE_PRICE_FILE", ""),
		RevalueBatch:      revalueBatch,
		Log:               buildLogConfig("SERVER", "server"),
	}
	if cfg.RevalueInterval > 0 && cfg.PriceFile == "" {
		return ServerConfig{}, fmt.Errorf("invalid REVALUE_INTERVAL: REVALUE_PRICE_FILE is required")
	}
	return cfg, nil
}

// LoadRevalueConfig reads RevalueConfig.
func LoadRevalueConfig() (RevalueConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return RevalueConfig{}, err
	}

	batch, err := envInt("REVALUE_BATCH_SIZE", 500)
	if err != nil {
		return RevalueConfig{}, err
	}

	return RevalueConfig{
		PostgresDSN:   envOrDefault("POSTGRES_DSN", ""),
		ClickhouseDSN: envOrDefault("CLICKHOUSE_DSN", ""),
		PriceFile:     envOrDefault("REVALUE_PRICE_FILE", ""),
		BatchSize:     batch,
		Log:           buildLogConfig("REVALUE", "revalue"),
	}, nil
}

// ConfigSource describes where file-based values came from.
type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

// CurrentConfigSource reports the config file in use.
func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix, serviceName string) LogConfig {
	return LogConfig{
		Level:    envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info")),
		Format:   envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text")),
		Output:   envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console")),
		FilePath: envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join("logs", serviceName+".log"))),
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

// envOptionalDuration returns 0 when key is unset or "0".
func envOptionalDuration(key string) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return envDuration(key, 0)
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func envNonNegativeInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must be >= 0", key)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}
	return strings.TrimSpace(runtimeConfigValues[key])
}
