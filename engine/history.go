package engine

// HistorySize is the capacity of every per-metric series (one minute at 1s).
const HistorySize = 60

// Ring is a fixed-capacity FIFO of samples. When full, Push evicts the oldest
// sample before storing the newest. Ring is not safe for concurrent use; the
// Sampler guards its rings with its own lock and hands out copies.
type Ring struct {
	buf  []float64
	head int // next write position
	size int
}

// NewRing creates a ring with the given capacity (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample if the ring is full.
func (r *Ring) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of samples stored.
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Values returns a copy of all samples, oldest first.
func (r *Ring) Values() []float64 {
	return r.Last(r.size)
}

// Last returns a copy of the newest min(n, Len) samples, oldest first.
func (r *Ring) Last(n int) []float64 {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Latest returns the newest sample.
func (r *Ring) Latest() (float64, bool) {
	if r.size == 0 {
		return 0, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}

// Reset drops all samples.
func (r *Ring) Reset() {
	r.head, r.size = 0, 0
}
