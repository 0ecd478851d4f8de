package monitoring

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Logger
}

type Fields = logrus.Fields

// LoggerOptions параметры логгера
type LoggerOptions struct {
	Level      string
	File       string // пустая строка - только stdout
	Production bool
}

// NewLogger создает логгер: JSON в продакшене, текст при разработке
func NewLogger(opts LoggerOptions) *Logger {
	logger := logrus.New()

	if opts.Production {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logger.SetLevel(parseLevel(opts.Level))

	if opts.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // мегабайты
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}))
	}

	return &Logger{logger}
}

// NewNopLogger логгер для тестов
func NewNopLogger() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Logger{logger}
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithContext запись лога с trace_id текущего span
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	// Добавляем trace_id если есть
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		entry = entry.WithField("trace_id", sc.TraceID().String())
	}

	return entry
}

func (l *Logger) WithUser(userID int64) *logrus.Entry {
	return l.Logger.WithField("user_id", userID)
}

func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}
