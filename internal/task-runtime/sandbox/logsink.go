package sandbox

import (
	"log"
	"sync"
	"time"
)

// LogEntry is one timestamped line emitted by task code.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// LogSink buffers a single invocation's log output and mirrors each entry to
// the process log for observability. Safe for concurrent use; one sink is
// owned by exactly one invocation.
type LogSink struct {
	mu      sync.Mutex
	tenant  string
	taskID  string
	entries []LogEntry
}

func NewLogSink(tenant, taskID string) *LogSink {
	return &LogSink{tenant: tenant, taskID: taskID}
}

func (l *LogSink) Log(msg string)   { l.append("log", msg) }
func (l *LogSink) Warn(msg string)  { l.append("warn", msg) }
func (l *LogSink) Error(msg string) { l.append("error", msg) }

func (l *LogSink) append(level, msg string) {
	entry := LogEntry{Level: level, Message: msg, At: time.Now().UTC()}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	log.Printf("[task %s/%s] %s: %s", l.tenant, l.taskID, level, msg)
}

// Entries returns a copy of the buffered entries.
func (l *LogSink) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
