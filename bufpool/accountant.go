// Package bufpool implements the central memory accountant and the
// sample-buffer pools that ask it for sizing, grounded on
// original_source/include/EnhancedAudioBufferPool.h (pool sizing,
// size-class buckets, pressure-aware shrinkage) and
// original_source/include/BoundedQueue.h (the bounded, memory-limited
// queue shape reused here for compressed-chunk staging).
package bufpool

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Level is a memory pressure classification derived from process RSS over
// total system RAM, per spec §4.9's thresholds.
type Level int

const (
	Normal Level = iota
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

const (
	highThreshold     = 0.70
	criticalThreshold = 0.85
)

// Accountant tracks byte allocations tagged by component name and
// classifies memory pressure from /proc/self/status VmRSS over
// /proc/meminfo MemTotal. A singleflight.Group dedups concurrent pressure
// recomputation so a burst of callers under load triggers one /proc read
// instead of one per caller.
type Accountant struct {
	mu          sync.Mutex
	byComponent map[string]int64

	group        singleflight.Group
	cachedLevel  atomic.Int32
	everComputed atomic.Bool
}

// NewAccountant returns an Accountant with no tracked allocations and a
// pressure level that reads as Normal until the first Pressure() call.
func NewAccountant() *Accountant {
	return &Accountant{byComponent: make(map[string]int64)}
}

// Track adjusts the byte count attributed to component by delta, which
// may be negative when a buffer is released. Components are created
// lazily on first use.
func (a *Accountant) Track(component string, delta int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byComponent[component] += delta
	if a.byComponent[component] < 0 {
		a.byComponent[component] = 0
	}
}

// Usage returns the bytes currently attributed to component.
func (a *Accountant) Usage(component string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byComponent[component]
}

// TotalUsage returns the sum of every tracked component's bytes.
func (a *Accountant) TotalUsage() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, v := range a.byComponent {
		total += v
	}
	return total
}

// Pressure reads current process RSS and total system RAM and classifies
// the ratio into Normal/High/Critical. Concurrent callers collapse onto a
// single /proc read via singleflight; the result is cached for
// CachedPressure() to read without blocking on /proc I/O.
func (a *Accountant) Pressure() (Level, error) {
	v, err, _ := a.group.Do("pressure", func() (interface{}, error) {
		rss, err := readProcRSSBytes()
		if err != nil {
			return Normal, err
		}
		total, err := readProcTotalRAMBytes()
		if err != nil || total == 0 {
			return Normal, err
		}
		ratio := float64(rss) / float64(total)
		level := classify(ratio)
		a.cachedLevel.Store(int32(level))
		a.everComputed.Store(true)
		return level, nil
	})
	if err != nil {
		return Normal, err
	}
	return v.(Level), nil
}

// CachedPressure returns the most recently computed pressure level
// without touching /proc, defaulting to Normal before the first Pressure()
// call — used by allocation hot paths that must never block on I/O.
func (a *Accountant) CachedPressure() Level {
	if !a.everComputed.Load() {
		return Normal
	}
	return Level(a.cachedLevel.Load())
}

func classify(ratio float64) Level {
	switch {
	case ratio >= criticalThreshold:
		return Critical
	case ratio >= highThreshold:
		return High
	default:
		return Normal
	}
}

func readProcRSSBytes() (int64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			return parseKBLine(line)
		}
	}
	return 0, scanner.Err()
}

func readProcTotalRAMBytes() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			return parseKBLine(line)
		}
	}
	return 0, scanner.Err()
}

// parseKBLine parses a "Label: <n> kB" /proc line into bytes.
func parseKBLine(line string) (int64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, nil
	}
	kb, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return kb * 1024, nil
}
