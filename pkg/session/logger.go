package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel уровни логирования
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var logLevelNames = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Field представляет поле лога
type Field struct {
	Key   string
	Value interface{}
}

// Helpers для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Int64(key string, value int64) Field            { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value.String()} }
func Err(err error) Field                            { return Field{"error", err} }

// StructuredLogger интерфейс для структурированного логирования сессии
type StructuredLogger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// LogError логирует ошибку; для SessionError добавляет код и категорию
	LogError(err error, msg string, fields ...Field)

	WithComponent(component string) StructuredLogger
	WithFields(fields ...Field) StructuredLogger

	SetLevel(level LogLevel)
	IsEnabled(level LogLevel) bool
}

// logEntry структура записи лога
type logEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	ErrorCat  string                 `json:"error_category,omitempty"`
}

// DefaultLogger реализация StructuredLogger с JSON выводом
type DefaultLogger struct {
	mu        sync.RWMutex
	level     LogLevel
	output    io.Writer
	component string
	fields    map[string]interface{}
	json      bool
}

var _ StructuredLogger = (*DefaultLogger)(nil)

// NewDefaultLogger создает logger с настройками по умолчанию
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		level:  LogLevelInfo,
		output: os.Stdout,
		fields: make(map[string]interface{}),
		json:   true,
	}
}

// SetLevel устанавливает минимальный уровень логирования
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// IsEnabled проверяет, включен ли уровень логирования
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

// WithComponent создает logger с указанным компонентом
func (l *DefaultLogger) WithComponent(component string) StructuredLogger {
	return &DefaultLogger{
		level:     l.level,
		output:    l.output,
		component: component,
		fields:    copyFields(l.fields),
		json:      l.json,
	}
}

// WithFields создает logger с дополнительными полями
func (l *DefaultLogger) WithFields(fields ...Field) StructuredLogger {
	newFields := copyFields(l.fields)
	for _, f := range fields {
		newFields[f.Key] = f.Value
	}
	return &DefaultLogger{
		level:     l.level,
		output:    l.output,
		component: l.component,
		fields:    newFields,
		json:      l.json,
	}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.log(LogLevelDebug, msg, nil, fields) }
func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.log(LogLevelInfo, msg, nil, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.log(LogLevelWarn, msg, nil, fields) }
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.log(LogLevelError, msg, nil, fields) }

// LogError логирует ошибку с дополнительной информацией
func (l *DefaultLogger) LogError(err error, msg string, fields ...Field) {
	if err == nil {
		l.Error(msg, fields...)
		return
	}
	l.log(LogLevelError, msg, err, append(fields, Err(err)))
}

func (l *DefaultLogger) log(level LogLevel, msg string, err error, fields []Field) {
	if !l.IsEnabled(level) {
		return
	}

	entry := logEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
		Component: l.component,
		Fields:    copyFields(l.fields),
	}
	for _, f := range fields {
		entry.Fields[f.Key] = f.Value
	}
	if err != nil {
		entry.Error = err.Error()
		if se, ok := err.(*SessionError); ok {
			entry.ErrorCode = se.Code
			entry.ErrorCat = string(se.Category)
		}
	}

	l.writeEntry(&entry)
}

func (l *DefaultLogger) writeEntry(entry *logEntry) {
	l.mu.RLock()
	output := l.output
	jsonOutput := l.json
	l.mu.RUnlock()

	var line string
	if jsonOutput {
		if data, err := json.Marshal(entry); err == nil {
			line = string(data) + "\n"
		} else {
			line = formatSimple(entry)
		}
	} else {
		line = formatSimple(entry)
	}
	_, _ = output.Write([]byte(line))
}

// formatSimple форматирует запись в простом читаемом формате
func formatSimple(entry *logEntry) string {
	parts := []string{
		entry.Timestamp.Format("2006-01-02 15:04:05.000"),
		fmt.Sprintf("[%-5s]", entry.Level),
	}
	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Component))
	}
	parts = append(parts, entry.Message)
	if entry.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%s", entry.Error))
	}
	return strings.Join(parts, " ") + "\n"
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// NoOpLogger логгер-заглушка для тестов
type NoOpLogger struct{}

var _ StructuredLogger = NoOpLogger{}

func (NoOpLogger) Debug(msg string, fields ...Field)               {}
func (NoOpLogger) Info(msg string, fields ...Field)                {}
func (NoOpLogger) Warn(msg string, fields ...Field)                {}
func (NoOpLogger) Error(msg string, fields ...Field)               {}
func (NoOpLogger) LogError(err error, msg string, fields ...Field) {}
func (NoOpLogger) WithComponent(component string) StructuredLogger { return NoOpLogger{} }
func (NoOpLogger) WithFields(fields ...Field) StructuredLogger     { return NoOpLogger{} }
func (NoOpLogger) SetLevel(level LogLevel)                         {}
func (NoOpLogger) IsEnabled(level LogLevel) bool                   { return false }
