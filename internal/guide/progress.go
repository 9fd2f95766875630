package guide

import (
	"fmt"
	"sync"

	"github.com/xkilldash9x/stepwise/internal/dom"
)

// Progress is the ordered set of step indices that completed or were skipped. It only
// feeds progress rendering and is reset when a new sequence begins.
type Progress struct {
	mu    sync.Mutex
	order []int
	seen  map[int]bool
}

// NewProgress returns an empty progress set.
func NewProgress() *Progress {
	return &Progress{seen: make(map[int]bool)}
}

// Add records index and reports whether it was new.
func (p *Progress) Add(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[index] {
		return false
	}
	p.seen[index] = true
	p.order = append(p.order, index)
	return true
}

func (p *Progress) Contains(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[index]
}

// Indices returns the recorded indices in the order they were added.
func (p *Progress) Indices() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.order...)
}

func (p *Progress) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = nil
	p.seen = make(map[int]bool)
}

// Checklist renders one row per step, marking finished steps and the current one.
// Missing labels fall back to "Step n".
func (p *Progress) Checklist(labels []string, total, current int) []dom.ChecklistItem {
	if len(labels) > total {
		total = len(labels)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]dom.ChecklistItem, total)
	for i := range items {
		label := fmt.Sprintf("Step %d", i+1)
		if i < len(labels) && labels[i] != "" {
			label = labels[i]
		}
		items[i] = dom.ChecklistItem{Label: label, Done: p.seen[i], Current: i == current}
	}
	return items
}
