package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLogger appends timestamped log lines to a file. It is safe for
// concurrent use and doubles as a sink for the library's registered
// logger callback (see Sink).
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFileLogger opens (or creates) the file at path for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{file: file}, nil
}

// Log appends one formatted, timestamped line.
func (l *FileLogger) Log(format string, args ...interface{}) {
	l.write(fmt.Sprintf(format, args...))
}

// LogLevel appends one line tagged with a numeric debug level, the
// shape the library's logger callback delivers.
func (l *FileLogger) LogLevel(level int, msg string) {
	l.write(fmt.Sprintf("[%d] %s", level, msg))
}

func (l *FileLogger) write(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s %s\n", stamp, msg)
}

// Sink adapts the logger into the callback form the control-plane
// logger registration expects.
func (l *FileLogger) Sink() func(level int, msg string) {
	return l.LogLevel
}

// Close flushes and closes the file. Further Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
