package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry records one raw SQL execution.
type HistoryEntry struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	ExecutionTime float64   `json:"executionTime"`
	RowCount      int       `json:"rowCount"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ExecutedAt    time.Time `json:"executedAt"`
}

// History is the append-only execution log collaborator. Implementations cap
// retained entries themselves.
type History interface {
	Append(HistoryEntry)
	Entries() []HistoryEntry
}

// MemoryHistory keeps the most recent entries in memory, newest first.
type MemoryHistory struct {
	mu      sync.Mutex
	limit   int
	entries []HistoryEntry
}

// NewMemoryHistory returns a history retaining at most limit entries.
func NewMemoryHistory(limit int) *MemoryHistory {
	return &MemoryHistory{limit: limit}
}

func (h *MemoryHistory) Append(entry HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]HistoryEntry{entry}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
}

func (h *MemoryHistory) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
