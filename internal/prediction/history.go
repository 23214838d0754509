package prediction

import "LightSpeedArena/internal/game"

// Record is one locally applied input together with the state it was
// applied to.
type Record struct {
	Input          game.ControlInput
	Before         game.EntityState
	BeforeMomentum game.Momentum
}

// History is a fixed-capacity ring of Records in ascending sequence order.
// When full the oldest record is overwritten. It is not safe for concurrent
// use; Engine serializes access.
type History struct {
	buf   []Record
	head  int // index of the next write
	size  int
	limit int
}

// HistoryCapacity sizes a ring to hold seconds worth of inputs at hz.
func HistoryCapacity(seconds, hz float64) int {
	n := int(seconds*hz + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Record, capacity), limit: capacity}
}

func (h *History) Len() int { return h.size }
func (h *History) Cap() int { return h.limit }

// Push appends r, dropping the oldest record when the ring is full.
func (h *History) Push(r Record) {
	h.buf[h.head] = r
	h.head = (h.head + 1) % h.limit
	if h.size < h.limit {
		h.size++
	}
}

// at returns the i-th oldest record.
func (h *History) at(i int) Record {
	return h.buf[(h.head-h.size+i+h.limit)%h.limit]
}

// FirstAfter returns the index of the oldest record with Seq > seq.
func (h *History) FirstAfter(seq uint32) (int, bool) {
	for i := 0; i < h.size; i++ {
		if h.at(i).Input.Seq > seq {
			return i, true
		}
	}
	return 0, false
}

// TrimThrough drops every record with Seq <= seq.
func (h *History) TrimThrough(seq uint32) {
	for h.size > 0 && h.at(0).Input.Seq <= seq {
		h.size--
	}
}

// From copies the records starting at index i, oldest first.
func (h *History) From(i int) []Record {
	if i >= h.size {
		return nil
	}
	out := make([]Record, 0, h.size-i)
	for ; i < h.size; i++ {
		out = append(out, h.at(i))
	}
	return out
}

// Sequences lists the buffered sequence numbers, oldest first.
func (h *History) Sequences() []uint32 {
	out := make([]uint32, h.size)
	for i := range out {
		out[i] = h.at(i).Input.Seq
	}
	return out
}

func (h *History) Clear() {
	h.head = 0
	h.size = 0
}
