package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates a new logger instance
func New(serviceName string, environment string) *Logger {
	var output io.Writer = os.Stdout

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return NewWithWriter(serviceName, output)
}

// NewWithWriter creates a logger writing JSON lines to w. Tests use it to capture output.
func NewWithWriter(serviceName string, w io.Writer) *Logger {
	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithUserID returns a logger with the user ID attached
func (l *Logger) WithUserID(userID string) *Logger {
	return l.with("user_id", userID)
}

// WithComponent returns a logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithStockIn returns a logger scoped to one stock-in request and submission run
func (l *Logger) WithStockIn(stockInID, runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("stock_in_id", stockInID).Str("run_id", runID).Logger(),
	}
}

// WithSession returns a logger with the draft session ID attached
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.with("session_id", sessionID)
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str(key, value).Logger(),
	}
}
