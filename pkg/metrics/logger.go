package metrics

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is a minimum log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent // nothing is logged
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "SILENT"}

// String returns the upper-case level name.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a --log-level value to a Level. Unknown names give
// LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "silent", "off", "none":
		return LevelSilent
	default:
		return LevelInfo
	}
}

// logrusLevel maps l onto logrus. Silent maps to PanicLevel, which nothing
// here logs at.
func (l Level) logrusLevel() logrus.Level {
	return [...]logrus.Level{
		LevelDebug:  logrus.DebugLevel,
		LevelInfo:   logrus.InfoLevel,
		LevelWarn:   logrus.WarnLevel,
		LevelError:  logrus.ErrorLevel,
		LevelSilent: logrus.PanicLevel,
	}[min(max(l, LevelDebug), LevelSilent)]
}

// Fields are structured log fields.
type Fields map[string]any

// Format is the log line encoding.
type Format int

const (
	FormatText Format = iota // logfmt-style key=value
	FormatJSON
)

// ParseFormat maps a --log-format value to a Format. Anything but "json"
// selects text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}

func (f Format) formatter() logrus.Formatter {
	if f == FormatJSON {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	return &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	}
}

// Logger is a leveled structured logger backed by logrus. Loggers derived
// with With or Named share their parent's output and level.
type Logger struct {
	entry *logrus.Entry
	name  string
}

type loggerOptions struct {
	out    io.Writer
	level  Level
	format Format
	fields Fields
	name   string
	now    func() time.Time
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerOptions)

// WithOutput sets the destination. The default is stdout.
func WithOutput(w io.Writer) LoggerOption {
	return func(o *loggerOptions) { o.out = w }
}

// WithLevel sets the minimum level. The default is LevelInfo.
func WithLevel(level Level) LoggerOption {
	return func(o *loggerOptions) { o.level = level }
}

// WithFormat sets the encoding. The default is FormatText.
func WithFormat(format Format) LoggerOption {
	return func(o *loggerOptions) { o.format = format }
}

// WithFields attaches fields to every entry.
func WithFields(fields Fields) LoggerOption {
	return func(o *loggerOptions) { o.fields = fields }
}

// WithName sets the "logger" field.
func WithName(name string) LoggerOption {
	return func(o *loggerOptions) { o.name = name }
}

// withClock pins entry timestamps. Tests only.
func withClock(now func() time.Time) LoggerOption {
	return func(o *loggerOptions) { o.now = now }
}

type clockHook func() time.Time

func (clockHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h clockHook) Fire(e *logrus.Entry) error {
	e.Time = h()
	return nil
}

// NewLogger builds a logger from opts.
func NewLogger(opts ...LoggerOption) *Logger {
	o := loggerOptions{out: os.Stdout, level: LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}

	base := logrus.New()
	base.SetOutput(o.out)
	base.SetLevel(o.level.logrusLevel())
	base.SetFormatter(o.format.formatter())
	if o.now != nil {
		base.AddHook(clockHook(o.now))
	}

	l := &Logger{entry: logrus.NewEntry(base).WithFields(logrus.Fields(o.fields))}
	if o.name != "" {
		l = l.rename(o.name)
	}
	return l
}

func (l *Logger) rename(name string) *Logger {
	return &Logger{entry: l.entry.WithField("logger", name), name: name}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), name: l.name}
}

// Named returns a child logger whose name is appended to the parent's with
// a dot.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return l.rename(name)
}

// SetLevel changes the level for this logger and every logger sharing its
// output.
func (l *Logger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(level.logrusLevel())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Fields) { l.log(logrus.DebugLevel, msg, fields) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Fields) { l.log(logrus.InfoLevel, msg, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Fields) { l.log(logrus.WarnLevel, msg, fields) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Fields) { l.log(logrus.ErrorLevel, msg, fields) }

func (l *Logger) log(level logrus.Level, msg string, extra []Fields) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	e := l.entry
	for _, f := range extra {
		e = e.WithFields(logrus.Fields(f))
	}
	e.Log(level, msg)
}

var globalLogger atomic.Pointer[Logger]

func init() {
	globalLogger.Store(NewLogger(WithOutput(os.Stderr)))
}

// SetLogger replaces the process-wide logger. nil is ignored.
func SetLogger(l *Logger) {
	if l != nil {
		globalLogger.Store(l)
	}
}

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	return globalLogger.Load()
}

// NullLogger discards everything.
func NullLogger() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(LevelSilent))
}

// TestLogger logs text at debug level to w.
func TestLogger(w io.Writer) *Logger {
	return NewLogger(WithOutput(w), WithLevel(LevelDebug))
}
