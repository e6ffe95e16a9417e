package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Logger defines common logging interface for all services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// levelColors tints the level tag in console output.
var levelColors = [...]*color.Color{
	color.New(color.FgHiBlack),
	color.New(color.FgCyan),
	color.New(color.FgYellow),
	color.New(color.FgRed, color.Bold),
}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a LOG_LEVEL value to a LogLevel, defaulting to INFO.
func ParseLogLevel(value string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(value, name) {
			return LogLevel(i)
		}
	}
	return LogLevelInfo
}

// lineFormat renders one log record.
type lineFormat func(at time.Time, level LogLevel, service, msg string, kv []interface{}) string

// ServiceLogger writes leveled records for one service, as JSON lines or as console text.
type ServiceLogger struct {
	out     *log.Logger
	min     LogLevel
	service string
	format  lineFormat
}

// NewServiceLogger writes to w. JSON output is meant for log collectors, text output for a terminal.
func NewServiceLogger(w io.Writer, service string, min LogLevel, jsonLines bool) *ServiceLogger {
	format := consoleLine
	if jsonLines {
		format = jsonLine
	}
	return &ServiceLogger{
		out:     log.New(w, "", 0),
		min:     min,
		service: service,
		format:  format,
	}
}

func (s *ServiceLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.write(LogLevelDebug, msg, keysAndValues)
}

func (s *ServiceLogger) Info(msg string, keysAndValues ...interface{}) {
	s.write(LogLevelInfo, msg, keysAndValues)
}

func (s *ServiceLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.write(LogLevelWarn, msg, keysAndValues)
}

func (s *ServiceLogger) Error(msg string, keysAndValues ...interface{}) {
	s.write(LogLevelError, msg, keysAndValues)
}

func (s *ServiceLogger) write(level LogLevel, msg string, kv []interface{}) {
	if level < s.min {
		return
	}
	s.out.Println(s.format(time.Now().UTC(), level, s.service, msg, kv))
}

func jsonLine(at time.Time, level LogLevel, service, msg string, kv []interface{}) string {
	record := map[string]interface{}{
		"timestamp": at.Format(time.RFC3339),
		"level":     level.String(),
		"service":   service,
		"message":   msg,
	}

	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		// errors marshal to {} otherwise
		if err, isErr := kv[i+1].(error); isErr && err != nil {
			fields[key] = err.Error()
			continue
		}
		fields[key] = kv[i+1]
	}
	if len(fields) > 0 {
		record["fields"] = fields
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"service":%q,"message":%q,"log_error":%q}`, level.String(), service, msg, err.Error())
	}
	return string(line)
}

func consoleLine(at time.Time, level LogLevel, service, msg string, kv []interface{}) string {
	var b strings.Builder
	tag := level.String()
	if level >= LogLevelDebug && level <= LogLevelError {
		tag = levelColors[level].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s %-5s %s: %s", at.Format("15:04:05"), tag, service, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, ...interface{})  {}
func (NoOpLogger) Error(string, ...interface{}) {}
func (NoOpLogger) Debug(string, ...interface{}) {}
func (NoOpLogger) Warn(string, ...interface{})  {}

// NewLogger picks the logger for an environment: silent under "test", JSON lines in
// "production" and colored console text anywhere else.
func NewLogger(service, env, logLevel string) Logger {
	switch strings.ToLower(env) {
	case "test":
		return NoOpLogger{}
	case "production":
		return NewServiceLogger(os.Stdout, service, ParseLogLevel(logLevel), true)
	default:
		return NewServiceLogger(os.Stdout, service, ParseLogLevel(logLevel), false)
	}
}
