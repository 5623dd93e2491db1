package alerts

import (
	"sync"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

const DefaultHistorySize = 100

// History keeps the most recent alert records. The oldest record is dropped on overflow.
type History struct {
	mu       sync.RWMutex
	records  []models.AlertRecord
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		records:  make([]models.AlertRecord, 0, capacity),
		capacity: capacity,
	}
}

func (h *History) Add(rec models.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) >= h.capacity {
		h.records = h.records[1:]
	}
	h.records = append(h.records, rec)
}

// Recent returns up to limit records, newest first. A non-positive limit returns everything.
func (h *History) Recent(limit int) []models.AlertRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	out := make([]models.AlertRecord, 0, limit)
	for i := len(h.records) - 1; i >= len(h.records)-limit; i-- {
		out = append(out, h.records[i])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
