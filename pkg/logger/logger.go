package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"fansync/pkg/config"
)

// Logger is the structured logger handed to every component
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})

	GetZerolog() *zerolog.Logger
}

type zlogger struct {
	zl zerolog.Logger
}

var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
}

// New builds a Logger from the logging section of the configuration.
// Console output goes to stderr; JSON lines replace it when cfg.JSON is set.
// A log file always receives JSON lines.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var sinks []io.Writer
	if cfg.JSON {
		sinks = append(sinks, os.Stderr)
	} else {
		sinks = append(sinks, consoleWriter(os.Stderr, !cfg.NoColor))
	}
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		if cfg.JSON {
			sinks = sinks[:0]
		}
		sinks = append(sinks, f)
	}

	var out io.Writer = sinks[0]
	if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}
	return NewWithWriter(out, level), nil
}

// NewWithWriter builds a logger writing to w at the given level
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("app", "fansync").Logger()
	return &zlogger{zl: zl}
}

var levelTags = map[string]struct{ short, color string }{
	"debug": {"DEBG", "37"},
	"info":  {"INFO", "32"},
	"warn":  {"WARN", "33"},
	"error": {"ERRO", "31"},
	"fatal": {"FATL", "35"},
}

func consoleWriter(out io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !color,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			name, _ := i.(string)
			tag, ok := levelTags[name]
			if !ok {
				return fmt.Sprintf("%-4s", strings.ToUpper(name))
			}
			if !color {
				return tag.short
			}
			return "\033[" + tag.color + "m" + tag.short + "\033[0m"
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
	}
}

func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("unknown log level: %q", level)
}

func (l *zlogger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zlogger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *zlogger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *zlogger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *zlogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *zlogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *zlogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

func (l *zlogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.zl.Error().Fields(fields).Msg(msg)
}

func (l *zlogger) WithField(key string, value interface{}) Logger {
	return &zlogger{zl: l.zl.With().Fields(map[string]interface{}{key: value}).Logger()}
}

// WithFields returns a child logger; the receiver is left untouched.
func (l *zlogger) WithFields(fields map[string]interface{}) Logger {
	return &zlogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *zlogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zlogger{zl: l.zl.With().Err(err).Logger()}
}

func (l *zlogger) GetZerolog() *zerolog.Logger {
	return &l.zl
}
