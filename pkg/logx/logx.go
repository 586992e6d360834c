// Package logx is the process-wide structured logger. Output is colored
// console lines for development or one JSON object per line for log
// shippers, chosen from the environment at startup.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelOff
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL", "OFF"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	case "OFF", "NONE":
		return LevelOff
	default:
		return LevelInfo
	}
}

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Fields are the structured key/values attached to a line.
type Fields map[string]interface{}

type Config struct {
	Level   Level
	Format  Format
	Colors  bool
	Caller  bool
	Service string
	Output  io.Writer
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_COLOR, LOG_CALLER and
// LOG_SERVICE.
func ConfigFromEnv() Config {
	cfg := Config{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Format:  FormatConsole,
		Colors:  true,
		Service: os.Getenv("LOG_SERVICE"),
		Output:  os.Stdout,
	}
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json", "cloudwatch":
		cfg.Format = FormatJSON
	}
	if v, ok := os.LookupEnv("LOG_COLOR"); ok {
		cfg.Colors = truthy(v)
	}
	cfg.Caller = truthy(os.Getenv("LOG_CALLER"))
	return cfg
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}

// Logger writes formatted lines to its output. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	exitFn func(int)
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Format == "" {
		cfg.Format = FormatConsole
	}
	return &Logger{cfg: cfg, now: time.Now, exitFn: os.Exit}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.cfg.Level = level
	l.mu.Unlock()
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.cfg.Output = w
	l.mu.Unlock()
}

func (l *Logger) entry() *Entry {
	return &Entry{logger: l}
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return l.entry().WithField(key, value)
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return l.entry().WithFields(fields)
}

func (l *Logger) WithError(err error) *Entry {
	return l.entry().WithError(err)
}

// line is one rendered log record.
type line struct {
	time    time.Time
	level   Level
	msg     string
	fields  Fields
	err     error
	caller  string
	service string
}

func (l *Logger) write(level Level, msg string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.cfg.Level || l.cfg.Level == LevelOff {
		return
	}

	rec := line{
		time:    l.now(),
		level:   level,
		msg:     msg,
		fields:  fields,
		err:     err,
		service: l.cfg.Service,
	}
	if l.cfg.Caller {
		rec.caller = caller(4)
	}

	var out []byte
	if l.cfg.Format == FormatJSON {
		out = formatJSON(rec)
	} else {
		out = formatConsole(rec, l.cfg.Colors)
	}
	if _, werr := l.cfg.Output.Write(out); werr != nil {
		fmt.Fprintf(os.Stderr, "logx: write failed: %v\n", werr)
	}
}

func caller(skip int) string {
	_, file, no, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), no)
}
