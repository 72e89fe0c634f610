// Package config loads the triage configuration from defaults, an optional
// config file, a .env file and TRIAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opensource-health/triage/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. TRIAGE_SERVER_PORT.
const EnvPrefix = "TRIAGE"

// Load builds the configuration. path names an optional YAML, JSON or TOML
// file; when empty, ./triage.yaml is used if present. Precedence from
// lowest to highest: tier defaults, config file, .env, environment.
func Load(path string) (*domain.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("triage")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Tier = domain.Tier(strings.ToLower(string(cfg.Tier)))
	cfg.Lexicon.Mode = domain.MatchMode(strings.ToLower(string(cfg.Lexicon.Mode)))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late at startup.
func Validate(cfg *domain.Config) error {
	if cfg.Tier != domain.TierCommunity && cfg.Tier != domain.TierPro {
		return fmt.Errorf("%w: tier must be %q or %q, got %q",
			domain.ErrInvalidInput, domain.TierCommunity, domain.TierPro, cfg.Tier)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", domain.ErrInvalidInput, cfg.Server.Port)
	}
	switch cfg.Lexicon.Mode {
	case domain.MatchSubstring, domain.MatchWord:
	default:
		return fmt.Errorf("%w: lexicon.mode must be %q or %q, got %q",
			domain.ErrInvalidInput, domain.MatchSubstring, domain.MatchWord, cfg.Lexicon.Mode)
	}
	if cfg.Lexicon.Watch && cfg.Lexicon.Path == "" {
		return fmt.Errorf("%w: lexicon.watch requires lexicon.path", domain.ErrInvalidInput)
	}
	if cfg.Velocity.MaxSubmissions < 0 {
		return fmt.Errorf("%w: velocity.max_submissions must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)

	v.SetDefault("lexicon.path", c.Lexicon.Path)
	v.SetDefault("lexicon.mode", string(c.Lexicon.Mode))
	v.SetDefault("lexicon.watch", c.Lexicon.Watch)
	v.SetDefault("lexicon.no_match_text", c.Lexicon.NoMatchText)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_url", c.Repository.PostgresURL)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", c.Cache.EnableTwoPhase)
	v.SetDefault("cache.detection_ttl", c.Cache.DetectionTTL)

	v.SetDefault("eventbus.type", c.EventBus.Type)
	v.SetDefault("eventbus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("eventbus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("eventbus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventbus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)

	v.SetDefault("velocity.max_submissions", c.Velocity.MaxSubmissions)
	v.SetDefault("velocity.window_secs", c.Velocity.WindowSecs)

	v.SetDefault("worker.enabled", c.Worker.Enabled)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
}

// loadDotEnv exports TRIAGE_* entries from a .env file into the process
// environment. Variables already set in the environment win. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	prefix := strings.ToLower(EnvPrefix) + "_"
	for _, key := range v.AllKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}
