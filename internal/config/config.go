package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

// Config represents the application configuration
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Parser  ParserConfig  `toml:"parser"`
	Trace   TraceConfig   `toml:"trace"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // json, console
	Output     string `toml:"output"` // stdout, stderr
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// ParserConfig represents the parse pipeline configuration
type ParserConfig struct {
	EnableHybrid bool          `toml:"enable_hybrid"`
	Policy       parser.Policy `toml:"policy"`
}

// TraceConfig represents the JSONL trace sink configuration
type TraceConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// StorageConfig represents the SQLite record store configuration
type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host                string   `toml:"host"`
	Port                int      `toml:"port"`
	CORSOrigins         []string `toml:"cors_origins"`
	MaxSessions         int      `toml:"max_sessions"`
	SessionTTLMinutes   int      `toml:"session_ttl_minutes"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

// Default returns a configuration that works without a file
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: logger.OutputStdout,
		},
		Parser: ParserConfig{
			EnableHybrid: true,
			Policy:       parser.DefaultPolicy(),
		},
		Trace: TraceConfig{
			Path:       "data/trace/parse_trace.jsonl",
			MaxSizeMB:  64,
			MaxBackups: 5,
		},
		Storage: StorageConfig{
			Path: "data/atlas.db",
		},
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8080,
			CORSOrigins:         []string{"*"},
			MaxSessions:         1024,
			SessionTTLMinutes:   60,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
// Keys the file sets that no field accepts are reported as errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the components cannot use
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}
	switch c.Logging.Output {
	case logger.OutputStdout, logger.OutputStderr:
	default:
		return fmt.Errorf("invalid logging.output: %q", c.Logging.Output)
	}

	if err := validatePolicy(c.Parser.Policy); err != nil {
		return err
	}

	if c.Trace.Enabled && c.Trace.Path == "" {
		return fmt.Errorf("trace.path is required when trace is enabled")
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be positive, got %d", c.Server.MaxSessions)
	}
	if c.Server.SessionTTLMinutes < 0 {
		return fmt.Errorf("server.session_ttl_minutes must not be negative, got %d", c.Server.SessionTTLMinutes)
	}

	return nil
}

func validatePolicy(p parser.Policy) error {
	fields := map[string]float64{
		"base_score":           p.BaseScore,
		"per_instruction":      p.PerInstruction,
		"instruction_cap":      p.InstructionCap,
		"callsign_bonus":       p.CallsignBonus,
		"max_confidence":       p.MaxConfidence,
		"high_tier":            p.HighTier,
		"medium_tier":          p.MediumTier,
		"operational_minimum":  p.OperationalMinimum,
		"conflict_confidence":  p.ConflictConfidence,
		"history_conflict_cap": p.HistoryConflictCap,
	}
	for name, v := range fields {
		if v < 0 || v > 1 {
			return fmt.Errorf("parser.policy.%s must be within [0, 1], got %v", name, v)
		}
	}
	if p.MediumTier > p.HighTier {
		return fmt.Errorf("parser.policy.medium_tier (%v) exceeds high_tier (%v)", p.MediumTier, p.HighTier)
	}
	if p.InstructionCap > p.MaxConfidence {
		return fmt.Errorf("parser.policy.instruction_cap (%v) exceeds max_confidence (%v)", p.InstructionCap, p.MaxConfidence)
	}
	return nil
}

// LoggerConfig converts the logging section for pkg/logger
func (c LoggingConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// PipelineConfig converts the parser section; the sink is wired by the caller
func (c ParserConfig) PipelineConfig() parser.Config {
	return parser.Config{
		EnableHybrid: c.EnableHybrid,
		Policy:       c.Policy,
	}
}

// SinkConfig converts the trace section for the JSONL sink
func (c TraceConfig) SinkConfig() tracelog.Config {
	return tracelog.Config{
		Path:       c.Path,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// SessionTTL returns how long an idle session is kept; zero disables expiry
func (c ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
