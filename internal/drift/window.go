package drift

import "github.com/alejandrodnm/updown/internal/domain"

// ImbalanceWindow is a fixed-capacity FIFO of the most recent imbalance
// samples. The oldest sample is evicted once the window is full.
type ImbalanceWindow struct {
	buf  []float64
	next int
	size int
}

// NewImbalanceWindow creates a window holding up to capacity samples.
func NewImbalanceWindow(capacity int) *ImbalanceWindow {
	return &ImbalanceWindow{buf: make([]float64, max(capacity, 1))}
}

// Push appends a sample, evicting the oldest when full.
func (w *ImbalanceWindow) Push(v float64) {
	if w.size < len(w.buf) {
		w.size++
	}
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
}

// Len returns the number of samples held.
func (w *ImbalanceWindow) Len() int { return w.size }

// Mean returns the average of the held samples, or the neutral imbalance
// when empty.
func (w *ImbalanceWindow) Mean() float64 {
	if w.size == 0 {
		return domain.NeutralImbalance
	}
	var s float64
	for i := 0; i < w.size; i++ {
		s += w.buf[i]
	}
	return s / float64(w.size)
}
