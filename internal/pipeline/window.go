package pipeline

import (
	"container/list"
	"time"
)

// DedupWindow is a bounded, time-ordered record of previously seen
// normalized titles. Entries expire by age or by window size, whichever is
// reached first; the structure never grows without bound.
type DedupWindow struct {
	maxSize int
	maxAge  time.Duration
	order   *list.List // oldest at front; values are windowEntry
	index   map[string]*list.Element
}

type windowEntry struct {
	titleNorm string
	seenAt    time.Time
}

func NewDedupWindow(maxSize int, maxAge time.Duration) *DedupWindow {
	if maxSize <= 0 {
		maxSize = 5000
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &DedupWindow{
		maxSize: maxSize,
		maxAge:  maxAge,
		order:   list.New(),
		index:   make(map[string]*list.Element, maxSize),
	}
}

// Contains reports whether titleNorm is in the window as of now.
func (w *DedupWindow) Contains(titleNorm string, now time.Time) bool {
	w.evict(now)
	_, ok := w.index[titleNorm]
	return ok
}

// Add records titleNorm at the window's newest position. Re-adding an
// existing title refreshes its timestamp.
func (w *DedupWindow) Add(titleNorm string, now time.Time) {
	if titleNorm == "" {
		return
	}
	if elem, ok := w.index[titleNorm]; ok {
		w.order.Remove(elem)
		delete(w.index, titleNorm)
	}
	w.index[titleNorm] = w.order.PushBack(windowEntry{titleNorm: titleNorm, seenAt: now})
	w.evict(now)
}

// Len returns the current entry count.
func (w *DedupWindow) Len() int {
	return w.order.Len()
}

func (w *DedupWindow) evict(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	for w.order.Len() > 0 {
		front := w.order.Front()
		entry := front.Value.(windowEntry)
		if w.order.Len() <= w.maxSize && !entry.seenAt.Before(cutoff) {
			return
		}
		w.order.Remove(front)
		delete(w.index, entry.titleNorm)
	}
}
