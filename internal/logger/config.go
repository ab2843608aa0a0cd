package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvPrefix prefixes every logging environment variable.
const EnvPrefix = "STREAMSESSION_LOG_"

// LogConfig is the serializable form of Config.
type LogConfig struct {
	Level      string          `json:"level"`
	Format     string          `json:"format"`
	Output     string          `json:"output"`
	Components map[string]bool `json:"components"`
	Timestamp  bool            `json:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty"`
}

// DefaultLogConfig mirrors DefaultConfig.
func DefaultLogConfig() *LogConfig {
	def := DefaultConfig()
	components := make(map[string]bool, len(def.Components))
	for c, on := range def.Components {
		components[string(c)] = on
	}
	return &LogConfig{
		Level:      "INFO",
		Format:     "text",
		Output:     "stderr",
		Components: components,
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(filename string) (*LogConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	config := DefaultLogConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// SaveConfigToFile saves configuration to a JSON file
func (c *LogConfig) SaveConfigToFile(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ToLoggerConfig converts LogConfig to Config, opening file outputs.
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	output, err := openOutput(c.Output, c.Rotation)
	if err != nil {
		return nil, err
	}
	components := make(map[Component]bool, len(c.Components))
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}
	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		Timestamp:  c.Timestamp,
	}, nil
}

// Validate checks every field without opening file outputs.
func (c *LogConfig) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	switch out := strings.ToLower(c.Output); {
	case out == "stdout", out == "stderr", out == "null", out == "none":
	case strings.HasPrefix(c.Output, "file:") && len(c.Output) > len("file:"):
	default:
		return fmt.Errorf("invalid output: %q", c.Output)
	}
	if c.Rotation != nil {
		if !strings.HasPrefix(c.Output, "file:") {
			return fmt.Errorf("rotation requires a file: output")
		}
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation: %w", err)
		}
	}
	return nil
}

// ParseLevel parses a level name, accepting WARNING as WARN.
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// openOutput resolves an output name. file: outputs rotate when rotation is set.
func openOutput(outputStr string, rotation *RotationConfig) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	if path, ok := strings.CutPrefix(outputStr, "file:"); ok && path != "" {
		if rotation != nil {
			rw, err := NewRotatingWriterFromConfig(path, rotation)
			if err != nil {
				return nil, err
			}
			return rw, nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown output: %s", outputStr)
}

// CreateLoggerFromConfig creates a logger from LogConfig
func CreateLoggerFromConfig(config *LogConfig) (*Logger, error) {
	cfg, err := config.ToLoggerConfig()
	if err != nil {
		return nil, fmt.Errorf("convert config: %w", err)
	}
	return New(cfg), nil
}

// EnvironmentConfig overlays STREAMSESSION_LOG_* variables on the defaults.
func EnvironmentConfig() *LogConfig {
	return environmentConfig(os.Getenv)
}

func environmentConfig(getenv func(string) string) *LogConfig {
	config := DefaultLogConfig()

	if v := getenv(EnvPrefix + "LEVEL"); v != "" {
		config.Level = v
	}
	if v := getenv(EnvPrefix + "FORMAT"); v != "" {
		config.Format = v
	}
	if v := getenv(EnvPrefix + "OUTPUT"); v != "" {
		config.Output = v
	}
	if v := getenv(EnvPrefix + "TIMESTAMP"); v != "" {
		config.Timestamp = v == "true" || v == "1"
	}
	if v := getenv(EnvPrefix + "COMPONENTS"); v != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(v, ",") {
			comp = strings.TrimSpace(comp)
			if comp == "all" {
				for _, c := range AllComponents {
					config.Components[string(c)] = true
				}
				continue
			}
			if comp != "" {
				config.Components[comp] = true
			}
		}
	}
	return config
}
