// Package utils provides logging and small shared helpers.
package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the level of logging verbosity
type LogLevel int

const (
	// LevelQuiet suppresses all output except errors
	LevelQuiet LogLevel = iota
	// LevelNormal shows standard progress
	LevelNormal
	// LevelVerbose shows detailed information about each upload
	LevelVerbose
	// LevelDebug shows all debugging information
	LevelDebug
)

var (
	logMu sync.Mutex

	// currentLogLevel is the global log level setting
	currentLogLevel = LevelNormal

	// logFile mirrors every emitted line when set via SetLogFile
	logFile *os.File
)

// SetLogLevel sets the global logging level
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()
	currentLogLevel = level
}

// LogLevelFromString converts a string level name to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "quiet", "q":
		return LevelQuiet
	case "normal", "n":
		return LevelNormal
	case "verbose", "v":
		return LevelVerbose
	case "debug", "d":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// SetLogFile mirrors all log output (uncolored, timestamped) to the given
// file, appending if it exists. Pass an empty path to disable mirroring.
func SetLogFile(path string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
		logFile = nil
	}
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f
	return nil
}

// CloseLogFile closes the mirror file, if any.
func CloseLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
		logFile = nil
	}
}

func emit(min LogLevel, color, tag, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()

	if currentLogLevel < min {
		return
	}

	msg := fmt.Sprintf(format, args...)
	out := os.Stdout
	if tag == "ERROR" {
		out = os.Stderr
	}
	fmt.Fprintf(out, "%s%s%s\n", color, msg, ResetColor)

	if logFile != nil {
		line := fmt.Sprintf("%s [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), tag, msg)
		if _, err := logFile.WriteString(line); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write log file: %v\n", err)
		}
	}
}

// LogError logs an error message (always shown)
func LogError(format string, args ...interface{}) {
	emit(LevelQuiet, RedColor, "ERROR", format, args...)
}

// LogWarning logs a warning message at Normal+ level
func LogWarning(format string, args ...interface{}) {
	emit(LevelNormal, YellowColor, "WARN", format, args...)
}

// LogInfo logs an informational message at Normal+ level
func LogInfo(format string, args ...interface{}) {
	emit(LevelNormal, BlueColor, "INFO", format, args...)
}

// LogSuccess logs a success message at Normal+ level
func LogSuccess(format string, args ...interface{}) {
	emit(LevelNormal, GreenColor, "OK", format, args...)
}

// LogVerbose logs a message at Verbose+ level
func LogVerbose(format string, args ...interface{}) {
	emit(LevelVerbose, BlueColor, "INFO", "\t"+format, args...)
}

// LogDebug logs a debug message at Debug level
func LogDebug(format string, args ...interface{}) {
	emit(LevelDebug, CyanColor, "DEBUG", "\t"+format, args...)
}
