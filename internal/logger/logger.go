package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// MarshalJSON renders the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Component represents the logging component
type Component string

const (
	ComponentApp        Component = "app"
	ComponentSession    Component = "session"
	ComponentIdentity   Component = "identity"
	ComponentCredential Component = "credential"
	ComponentSigner     Component = "signer"
	ComponentStream     Component = "stream"
	ComponentClient     Component = "client"
	ComponentStore      Component = "store"
	ComponentProvider   Component = "provider"
)

// AllComponents lists every component known to the module.
var AllComponents = []Component{
	ComponentApp,
	ComponentSession,
	ComponentIdentity,
	ComponentCredential,
	ComponentSigner,
	ComponentStream,
	ComponentClient,
	ComponentStore,
	ComponentProvider,
}

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	Timestamp  bool
}

// DefaultConfig logs app and session events at INFO to stderr. Stdout is left
// to command output.
func DefaultConfig() *Config {
	components := make(map[Component]bool, len(AllComponents))
	for _, c := range AllComponents {
		components[c] = false
	}
	components[ComponentApp] = true
	components[ComponentSession] = true
	components[ComponentStream] = true
	return &Config{
		Level:      INFO,
		Format:     FormatText,
		Output:     os.Stderr,
		Components: components,
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component Component              `json:"component"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	config *Config
	mu     sync.RWMutex
	now    func() time.Time
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Components == nil {
		config.Components = map[Component]bool{}
	}
	return &Logger{config: config, now: time.Now}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Enabled reports whether an entry at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	if !l.Enabled(level, component) {
		return
	}

	entry := Entry{
		Timestamp: l.now(),
		Level:     level,
		Component: component,
		Message:   message,
		Fields:    fields,
	}

	// Writes are serialized so concurrent entries never interleave.
	l.mu.Lock()
	defer l.mu.Unlock()

	var line string
	switch l.config.Format {
	case FormatJSON:
		line = l.formatJSON(entry)
	case FormatColor:
		line = l.formatColor(entry)
	default:
		line = l.formatText(entry)
	}
	fmt.Fprintln(l.config.Output, line)
}

func (l *Logger) formatText(entry Entry) string {
	var parts []string
	if l.config.Timestamp {
		parts = append(parts, entry.Timestamp.Format("2006-01-02 15:04:05"))
	}
	parts = append(parts, "["+entry.Level.String()+"]", "["+string(entry.Component)+"]", entry.Message)
	for _, k := range sortedKeys(entry.Fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
	}
	return strings.Join(parts, " ")
}

func (l *Logger) formatJSON(entry Entry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"component":%q,"message":%q}`, entry.Level, entry.Component, entry.Message)
	}
	return string(data)
}

func (l *Logger) formatColor(entry Entry) string {
	var parts []string
	if l.config.Timestamp {
		parts = append(parts, "\033[90m"+entry.Timestamp.Format("2006-01-02 15:04:05")+"\033[0m")
	}
	parts = append(parts,
		levelColor(entry.Level)+"["+entry.Level.String()+"]\033[0m",
		"\033[36m["+string(entry.Component)+"]\033[0m",
		entry.Message,
	)
	for _, k := range sortedKeys(entry.Fields) {
		parts = append(parts, fmt.Sprintf("\033[33m%s\033[0m=\033[32m%v\033[0m", k, entry.Fields[k]))
	}
	return strings.Join(parts, " ")
}

func levelColor(level Level) string {
	switch level {
	case TRACE:
		return "\033[37m"
	case DEBUG:
		return "\033[94m"
	case INFO:
		return "\033[92m"
	case WARN:
		return "\033[93m"
	case ERROR:
		return "\033[91m"
	default:
		return "\033[0m"
	}
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
	fields    map[string]interface{}
}

// With returns a logger that attaches fields to every entry.
func (cl *ComponentLogger) With(fields map[string]interface{}) *ComponentLogger {
	merged := make(map[string]interface{}, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ComponentLogger{logger: cl.logger, component: cl.component, fields: merged}
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	var merged map[string]interface{}
	switch {
	case len(fields) == 0 || len(fields[0]) == 0:
		merged = cl.fields
	case len(cl.fields) == 0:
		merged = fields[0]
	default:
		merged = make(map[string]interface{}, len(cl.fields)+len(fields[0]))
		for k, v := range cl.fields {
			merged[k] = v
		}
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	cl.logger.log(level, cl.component, message, merged)
}

// Mask hides all but the first five characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	const visible = 5
	if len(secret) <= visible {
		return strings.Repeat("x", len(secret))
	}
	return secret[:visible] + strings.Repeat("x", len(secret)-visible)
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
