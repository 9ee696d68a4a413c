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

	return newWithWriter(output, serviceName)
}

// NewWithWriter creates a logger writing JSON lines to w.
// Tests use it to capture and assert on log output.
func NewWithWriter(w io.Writer, serviceName string) *Logger {
	return newWithWriter(w, serviceName)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func newWithWriter(w io.Writer, serviceName string) *Logger {
	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: logger}
}

// WithComponent returns a logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}
