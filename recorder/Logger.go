package recorder

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LogFile is the name of the file that a Logger writes to when logging
// to a directory
const LogFile = "sac.log"

// Logger is a Recorder which writes each summary as a single line to
// a log.
type Logger struct {
	logger *log.Logger
	file   *os.File
}

// NewLogger returns a new Logger which writes to w
func NewLogger(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "sac: ", log.LstdFlags)}
}

// NewFileLogger returns a new Logger which writes to LogFile in dir.
// The file is appended to if it already exists.
func NewFileLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newFileLogger: could not create log "+
			"directory: %v", err)
	}

	path := filepath.Join(dir, LogFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("newFileLogger: could not open log file: %v",
			err)
	}

	logger := NewLogger(file)
	logger.file = file
	return logger, nil
}

// Printf logs a formatted message
func (l *Logger) Printf(format string, v ...interface{}) {
	l.logger.Printf(format, v...)
}

// Record logs the summary on a single line, with tags in sorted order
func (l *Logger) Record(step int, s Summary) error {
	var b strings.Builder
	for i, tag := range s.Tags() {
		if i > 0 {
			b.WriteString("  |  ")
		}
		fmt.Fprintf(&b, "%s: %.5f", tag, s[tag])
	}
	l.logger.Printf("step %d  |  %s", step, b.String())
	return nil
}

// Close closes the log file if the Logger writes to one
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
