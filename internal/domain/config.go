package domain

import "time"

// Config holds the complete triage configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines feature availability
	Tier Tier `mapstructure:"tier"`

	// Component configurations
	Lexicon    LexiconConfig    `mapstructure:"lexicon"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`
	Velocity   VelocityConfig   `mapstructure:"velocity"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
}

// MatchMode selects how lexicon keywords are located in the input.
type MatchMode string

const (
	// MatchSubstring matches a keyword anywhere in the text, including inside
	// longer words. Compatible with historical detections.
	MatchSubstring MatchMode = "substring"

	// MatchWord requires keywords to start and end on token boundaries.
	MatchWord MatchMode = "word"
)

// LexiconConfig holds symptom lexicon settings.
type LexiconConfig struct {
	// Path to a JSON lexicon file. Empty uses the built-in lexicon.
	Path string `mapstructure:"path"`

	Mode MatchMode `mapstructure:"mode"`

	// Watch reloads the lexicon when Path changes on disk.
	Watch bool `mapstructure:"watch"`

	// NoMatchText is shown when no disease was detected.
	NoMatchText string `mapstructure:"no_match_text"`
}

// VelocityConfig limits how many texts one client may submit per window.
type VelocityConfig struct {
	MaxSubmissions int `mapstructure:"max_submissions"` // 0 disables the limit
	WindowSecs     int `mapstructure:"window_secs"`
}

// WorkerConfig controls the live tally worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Lexicon: LexiconConfig{
			Mode:        MatchSubstring,
			NoMatchText: "No disease detected",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./triage.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			DetectionTTL: 10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Velocity: VelocityConfig{
			MaxSubmissions: 30,
			WindowSecs:     60,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "triage",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "triage",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		DetectionTTL:   10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
