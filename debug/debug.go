// Package debug implements channel-scoped logging with parent/child
// filtering: enabling "flac" enables "flac:frame" and "flac:crc", but
// enabling only "flac:frame" suppresses bare "flac" messages. Output goes
// to stdout or an append-mode log file, timestamped with microsecond
// precision.
package debug

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	mu              sync.Mutex
	enabledChannels = map[string]bool{}
	logFile         *os.File
	logToFile       bool
)

// Init resets the logger state: it clears previously enabled channels,
// closes any open log file, and optionally opens logPath in append mode.
// channels lists the enabled channel names; "all" enables everything.
func Init(logPath string, channels []string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	logToFile = false
	enabledChannels = make(map[string]bool, len(channels))

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		logToFile = true
	}
	for _, c := range channels {
		enabledChannels[c] = true
	}
	return nil
}

// Shutdown closes any open log file and clears enabled channels.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	enabledChannels = map[string]bool{}
	logToFile = false
}

// Enabled reports whether channel would currently produce output.
func Enabled(channel string) bool {
	mu.Lock()
	defer mu.Unlock()
	return isEnabledLocked(channel)
}

func isEnabledLocked(channel string) bool {
	if enabledChannels["all"] {
		return true
	}
	if enabledChannels[channel] {
		return true
	}

	if parent, _, ok := strings.Cut(channel, ":"); ok {
		// Sub-channel like "flac:frame": the parent enables it.
		return enabledChannels[parent]
	}

	// Parent channel like "flac": if specific sub-channels are enabled
	// but not the parent itself, suppress bare parent messages.
	prefix := channel + ":"
	for enabled := range enabledChannels {
		if strings.HasPrefix(enabled, prefix) {
			return false
		}
	}
	return false
}

// Log writes a formatted message to channel if it is enabled.
func Log(channel, format string, args ...any) {
	mu.Lock()
	enabled := isEnabledLocked(channel)
	mu.Unlock()
	if !enabled {
		return
	}
	write(channel, fmt.Sprintf(format, args...))
}

func write(channel, message string) {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	line := fmt.Sprintf("%s.%06d [%s]: %s",
		now.Format("15:04:05"), now.Nanosecond()/1000, channel, message)

	if logToFile && logFile != nil {
		fmt.Fprintln(logFile, line)
		return
	}
	fmt.Println(line)
}
