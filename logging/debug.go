// Package logging provides the protocol debug logger: level- and
// protocol-filtered trace output with hex dumps of TX/RX frames,
// written to a dedicated file so wire-level troubleshooting does not
// mix into application output.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// Protocol names accepted by the filter, one per wire/runtime layer.
var knownProtocols = []string{
	"eip", "eip/discovery", "cip", "pccc", "session", "packer", "tag",
	"frag", "abserver", "debug",
}

// KnownProtocols lists the filterable protocol names.
func KnownProtocols() []string {
	return append([]string(nil), knownProtocols...)
}

// DebugLogger writes protocol trace lines and frame dumps to a file.
// A filter restricts output to chosen protocol layers; an empty filter
// logs everything.
type DebugLogger struct {
	mu      sync.Mutex
	file    *os.File
	closed  bool
	filters map[string]bool
}

// Global instance used by the package-level Debug* helpers.
var (
	globalMu     sync.RWMutex
	globalLogger *DebugLogger
)

// SetGlobalDebugLogger installs the logger the Debug* helpers write to.
func SetGlobalDebugLogger(l *DebugLogger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalDebugLogger returns the installed global logger, or nil.
func GetGlobalDebugLogger() *DebugLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewDebugLogger creates a logger writing to path, truncating any
// previous session's log.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}
	l := &DebugLogger{file: file, filters: make(map[string]bool)}
	l.Log("debug", "debug logging started - %s", time.Now().Format(time.RFC3339))
	return l, nil
}

// SetFilter restricts logging to a comma-separated protocol list; the
// empty string logs all protocols. A filter on an upper layer implies
// the layers that carry it, so "session" also traces cip and eip.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	if filter == "" {
		return
	}
	for _, p := range strings.Split(filter, ",") {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		l.filters[p] = true
		switch p {
		case "cip", "pccc":
			l.filters["eip"] = true
		case "session", "packer", "frag", "tag":
			l.filters["eip"] = true
			l.filters["cip"] = true
		case "eip":
			l.filters["eip/discovery"] = true
		}
	}
}

// shouldLog reports whether protocol passes the filter. Caller holds
// l.mu. The "debug" pseudo-protocol always passes so session header
// and footer lines survive any filter.
func (l *DebugLogger) shouldLog(protocol string) bool {
	if len(l.filters) == 0 {
		return true
	}
	p := strings.ToLower(protocol)
	return l.filters[p] || p == "debug"
}

func (l *DebugLogger) writeLine(protocol, msg string) {
	if l.closed || !l.shouldLog(protocol) {
		return
	}
	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s [%s] %s\n", stamp, protocol, msg)
}

// Log writes one formatted line tagged with its protocol layer.
func (l *DebugLogger) Log(protocol, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine(protocol, fmt.Sprintf(format, args...))
}

// LogTX dumps a transmitted frame.
func (l *DebugLogger) LogTX(protocol string, data []byte) { l.logPacket(protocol, "TX", data) }

// LogRX dumps a received frame.
func (l *DebugLogger) LogRX(protocol string, data []byte) { l.logPacket(protocol, "RX", data) }

func (l *DebugLogger) logPacket(protocol, dir string, data []byte) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.shouldLog(protocol) {
		return
	}
	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s [%s] %s (%d bytes):\n%s", stamp, protocol, dir, len(data), buffer.HexDump(data))
}

// LogConnect records a connection attempt.
func (l *DebugLogger) LogConnect(protocol, address string) {
	l.Log(protocol, "CONNECT to %s", address)
}

// LogConnectSuccess records an established connection.
func (l *DebugLogger) LogConnectSuccess(protocol, address, details string) {
	l.Log(protocol, "CONNECTED to %s - %s", address, details)
}

// LogConnectError records a failed connection attempt.
func (l *DebugLogger) LogConnectError(protocol, address string, err error) {
	l.Log(protocol, "CONNECT FAILED to %s: %v", address, err)
}

// LogDisconnect records a teardown.
func (l *DebugLogger) LogDisconnect(protocol, address, reason string) {
	l.Log(protocol, "DISCONNECT from %s: %s", address, reason)
}

// LogError records an error with its context.
func (l *DebugLogger) LogError(protocol, context string, err error) {
	l.Log(protocol, "ERROR in %s: %v", context, err)
}

// Close writes the session footer and closes the file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.writeLine("debug", "debug logging ended")
	l.closed = true
	return l.file.Close()
}

// An optional callback sink receives the same messages the debug file
// gets, tagged with a coarse level (1 errors, 2 connection events,
// 3 trace lines, 4 frame dumps). The control-plane logger registration
// installs it.

var (
	cbMu sync.RWMutex
	cbFn func(level int, msg string)
)

// SetCallbackLogger installs (or, with nil, clears) the callback sink.
func SetCallbackLogger(fn func(level int, msg string)) {
	cbMu.Lock()
	cbFn = fn
	cbMu.Unlock()
}

func emit(level int, protocol, format string, args ...interface{}) {
	cbMu.RLock()
	fn := cbFn
	cbMu.RUnlock()
	if fn != nil {
		fn(level, "["+protocol+"] "+fmt.Sprintf(format, args...))
	}
}

// Package-level helpers routing to the global logger and the callback
// sink; all are no-ops when neither is installed, so protocol code
// calls them unconditionally.

func DebugLog(protocol, format string, args ...interface{}) {
	GetGlobalDebugLogger().Log(protocol, format, args...)
	emit(3, protocol, format, args...)
}

func DebugTX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogTX(protocol, data)
	emit(4, protocol, "TX %d bytes", len(data))
}

func DebugRX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogRX(protocol, data)
	emit(4, protocol, "RX %d bytes", len(data))
}

func DebugConnect(protocol, address string) {
	GetGlobalDebugLogger().LogConnect(protocol, address)
	emit(2, protocol, "CONNECT to %s", address)
}

func DebugConnectSuccess(protocol, address, details string) {
	GetGlobalDebugLogger().LogConnectSuccess(protocol, address, details)
	emit(2, protocol, "CONNECTED to %s - %s", address, details)
}

func DebugConnectError(protocol, address string, err error) {
	GetGlobalDebugLogger().LogConnectError(protocol, address, err)
	emit(1, protocol, "CONNECT FAILED to %s: %v", address, err)
}

func DebugDisconnect(protocol, address, reason string) {
	GetGlobalDebugLogger().LogDisconnect(protocol, address, reason)
	emit(2, protocol, "DISCONNECT from %s: %s", address, reason)
}

func DebugError(protocol, context string, err error) {
	GetGlobalDebugLogger().LogError(protocol, context, err)
	emit(1, protocol, "ERROR in %s: %v", context, err)
}
