package manager

import (
	"sync"
	"time"

	"QQFarmBot/models"
)

// LogBuffer is a fixed-capacity ring of log entries. The oldest entry is
// evicted when the buffer is full. Only the owning session appends; readers
// get copies.
type LogBuffer struct {
	mu      sync.Mutex
	entries []models.LogEntry
	head    int // index of the oldest entry
	size    int
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LogBuffer{entries: make([]models.LogEntry, capacity)}
}

func (b *LogBuffer) Append(level models.LogLevel, message string) models.LogEntry {
	entry := models.LogEntry{Time: time.Now(), Level: level, Message: message}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.entries) {
		b.entries[(b.head+b.size)%len(b.entries)] = entry
		b.size++
	} else {
		b.entries[b.head] = entry
		b.head = (b.head + 1) % len(b.entries)
	}
	return entry
}

// Tail returns up to limit of the most recent entries in append order.
// A non-positive or oversized limit is clamped to the buffer size.
func (b *LogBuffer) Tail(limit int) []models.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	out := make([]models.LogEntry, 0, limit)
	start := b.size - limit
	for i := start; i < b.size; i++ {
		out = append(out, b.entries[(b.head+i)%len(b.entries)])
	}
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
