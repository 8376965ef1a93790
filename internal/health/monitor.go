package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrorMonitor is a zerolog hook counting error level events in a sliding
// window. Reaching the threshold sends one alert per window.
type ErrorMonitor struct {
	threshold int
	window    time.Duration

	mu        sync.Mutex
	seen      []time.Time
	total     int
	lastMsg   string
	lastAlert time.Time
	alert     func(text string) error

	now func() time.Time
}

// NewErrorMonitor creates a monitor; a zero threshold counts without alerting
func NewErrorMonitor(threshold int, window time.Duration) *ErrorMonitor {
	return &ErrorMonitor{
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

// SetAlert sets the alert sink. It is called from its own goroutine.
func (m *ErrorMonitor) SetAlert(fn func(text string) error) {
	m.mu.Lock()
	m.alert = fn
	m.mu.Unlock()
}

// Run implements zerolog.Hook
func (m *ErrorMonitor) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.ErrorLevel || level > zerolog.PanicLevel {
		return
	}

	m.mu.Lock()
	now := m.now()
	m.prune(now)
	m.seen = append(m.seen, now)
	m.total++
	m.lastMsg = msg

	var send func(string) error
	var text string
	if m.threshold > 0 && len(m.seen) >= m.threshold && m.alert != nil &&
		(m.lastAlert.IsZero() || now.Sub(m.lastAlert) >= m.window) {
		m.lastAlert = now
		send = m.alert
		text = fmt.Sprintf("🚨 %d errors in the last %s\nLast: %s", len(m.seen), m.window, msg)
	}
	m.mu.Unlock()

	if send != nil {
		go func() { _ = send(text) }()
	}
}

// prune drops events older than the window; callers hold mu
func (m *ErrorMonitor) prune(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.seen) && !m.seen[i].After(cutoff) {
		i++
	}
	m.seen = m.seen[i:]
}

// Count returns the number of errors within the window
func (m *ErrorMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(m.now())
	return len(m.seen)
}

// Total returns the number of errors since start
func (m *ErrorMonitor) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// LastMessage returns the message of the latest error
func (m *ErrorMonitor) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMsg
}

// Exceeded reports whether the window count has reached the threshold
func (m *ErrorMonitor) Exceeded() bool {
	return m.threshold > 0 && m.Count() >= m.threshold
}

// Window returns the counting window
func (m *ErrorMonitor) Window() time.Duration { return m.window }
