package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a console zerolog.Logger tagged with the service and environment.
func New(level, service, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return build(output, level, service, environment)
}

// NewFile creates a JSON zerolog.Logger appending to <log dir>/<name>.log.
// The returned closer releases the file.
func NewFile(name, level, service, environment string) (zerolog.Logger, io.Closer, error) {
	logDir, err := getLogDir()
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to get log directory: %w", err)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("%s.log", name))
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return build(file, level, service, environment), file, nil
}

func build(out io.Writer, level, service, environment string) zerolog.Logger {
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Str("environment", environment).
		Logger().
		Level(parseLevel(level))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	var logDir string
	switch runtime.GOOS {
	case "windows":
		logDir = filepath.Join(homeDir, "AppData", "Local", "eta", "logs")
	case "darwin":
		logDir = filepath.Join(homeDir, "Library", "Logs", "eta")
	default: // linux and others
		logDir = filepath.Join(homeDir, ".local", "share", "eta", "logs")
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			logDir = filepath.Join(xdgData, "eta", "logs")
		}
	}

	return logDir, nil
}
