package canvas

import (
	"sync"

	"idcard/internal/card"
)

// DefaultHistoryCapacity bounds the number of snapshots kept by a History.
const DefaultHistoryCapacity = 100

// History is a linear undo/redo stack of full design snapshots.
type History struct {
	mu       sync.Mutex
	capacity int
	entries  []card.TemplateDesign
	cursor   int
}

// NewHistory returns a History seeded with initial. A capacity below 2 uses DefaultHistoryCapacity.
func NewHistory(initial card.TemplateDesign, capacity int) *History {
	if capacity < 2 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		entries:  []card.TemplateDesign{initial.Clone()},
	}
}

// Current returns the design at the cursor.
func (h *History) Current() card.TemplateDesign {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.cursor].Clone()
}

// Push records d as the newest state and discards the redo tail.
// The oldest snapshot is dropped once capacity is reached.
func (h *History) Push(d card.TemplateDesign) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.cursor+1], d.Clone())
	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append([]card.TemplateDesign(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Undo steps back and returns the restored design.
func (h *History) Undo() (card.TemplateDesign, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == 0 {
		return card.TemplateDesign{}, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

// Redo steps forward and returns the restored design.
func (h *History) Redo() (card.TemplateDesign, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == len(h.entries)-1 {
		return card.TemplateDesign{}, false
	}
	h.cursor++
	return h.entries[h.cursor].Clone(), true
}

// CanUndo reports whether Undo would succeed.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo reports whether Redo would succeed.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)-1
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
