package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AbdelilahOu/dbroute/internal/config"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var slogLevels = map[LogLevel]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

type Logger struct {
	slogger  *slog.Logger
	logLevel LogLevel
	logFile  *os.File
}

func ParseLogLevel(level string) LogLevel {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

func LogLevelString(level LogLevel) string {
	if name, exists := levelNames[level]; exists {
		return name
	}
	return "INFO"
}

func ConfigFromLoggingConfig(logCfg config.LoggingConfig) Config {
	return Config{
		Level:      ParseLogLevel(logCfg.Level),
		OutputFile: logCfg.OutputFile,
		MaxSize:    logCfg.MaxSizeMB,
		Console:    logCfg.Console,
	}
}

type Config struct {
	Level      LogLevel
	OutputFile string
	MaxSize    int64
	Console    bool
	// Writer, when set, receives log output in addition to console and file.
	Writer io.Writer
}

var globalLogger *Logger

func Initialize(cfg Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	globalLogger = logger
	return nil
}

func NewLogger(cfg Config) (*Logger, error) {
	logger := &Logger{
		logLevel: cfg.Level,
	}

	var writers []io.Writer

	if cfg.Console {
		// stdout belongs to the MCP stdio transport
		writers = append(writers, os.Stderr)
	}

	if cfg.Writer != nil {
		writers = append(writers, cfg.Writer)
	}

	if cfg.OutputFile != "" {
		dir := filepath.Dir(cfg.OutputFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}

		if cfg.MaxSize > 0 {
			if err := rotateLogIfNeeded(cfg.OutputFile, cfg.MaxSize*1024*1024); err != nil {
				return nil, fmt.Errorf("failed to rotate log: %w", err)
			}
		}

		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.logFile = file
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{
		Level: slogLevels[cfg.Level],
	}
	logger.slogger = slog.New(slog.NewTextHandler(writer, opts))

	return logger, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{
		slogger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		logLevel: ERROR + 1,
	}
}

func rotateLogIfNeeded(filename string, maxSize int64) error {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Size() >= maxSize {
		timestamp := time.Now().Format("20060102-150405")
		backupName := fmt.Sprintf("%s.%s", filename, timestamp)
		if err := os.Rename(filename, backupName); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	return nil
}

func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.logLevel
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if l == nil || !l.shouldLog(level) {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}

	l.slogger.LogAttrs(context.Background(), slogLevels[level], msg, attrs...)
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DEBUG, msg, firstFields(fields))
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(INFO, msg, firstFields(fields))
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WARN, msg, firstFields(fields))
}

func (l *Logger) Error(msg string, err error, fields ...map[string]interface{}) {
	fieldMap := firstFields(fields)
	if err != nil {
		fieldMap["error"] = err.Error()
	}
	l.log(ERROR, msg, fieldMap)
}

// LogDatabaseOperation logs a finished query, truncating long SQL.
func (l *Logger) LogDatabaseOperation(connection, method, query string, duration time.Duration, err error) {
	sanitizedQuery := query
	if len(sanitizedQuery) > 100 {
		sanitizedQuery = sanitizedQuery[:100] + "..."
	}

	fields := map[string]interface{}{
		"connection": connection,
		"method":     method,
		"sql":        sanitizedQuery,
		"duration":   duration,
	}
	if err != nil {
		l.Error("query failed", err, fields)
		return
	}
	l.Debug("query completed", fields)
}

// LogConnectionEvent logs a lifecycle transition of a named connection.
func (l *Logger) LogConnectionEvent(event, connectionName, client string, err error) {
	fields := map[string]interface{}{
		"event":      event,
		"connection": connectionName,
		"client":     client,
	}
	if err != nil {
		l.Error("connection event failed", err, fields)
		return
	}
	l.Info("connection event completed", fields)
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	fieldMap := make(map[string]interface{})
	if len(fields) > 0 {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}
	return fieldMap
}

func Debug(msg string, fields ...map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(msg, fields...)
	}
}

func Info(msg string, fields ...map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.Info(msg, fields...)
	}
}

func Warn(msg string, fields ...map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(msg, fields...)
	}
}

func Error(msg string, err error, fields ...map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.Error(msg, err, fields...)
	}
}

func LogToolCall(toolName string, err error) {
	if err != nil {
		Error(fmt.Sprintf("Tool call failed: %s", toolName), err)
	} else {
		Info(fmt.Sprintf("Tool call completed: %s", toolName))
	}
}

// GetGlobalLogger returns the process logger, or a nop logger before
// Initialize is called.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		return NewNopLogger()
	}
	return globalLogger
}

func Shutdown() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}
