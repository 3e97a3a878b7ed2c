package session

// SequenceFilter admits server events at most once, in increasing
// server_seq order. Gaps are allowed; anything at or below the highest
// admitted value is a duplicate or stale retransmit.
type SequenceFilter struct {
	last int64
}

// Admit reports whether an event with seq should be delivered and advances
// the high-water mark when it is.
func (f *SequenceFilter) Admit(seq int64) bool {
	if seq <= f.last {
		return false
	}
	f.last = seq
	return true
}

// Last returns the highest admitted server_seq, 0 if none.
func (f *SequenceFilter) Last() int64 {
	return f.last
}

// ClientSequence numbers client-originated events from 1. It is never reset
// for the lifetime of a channel, reconnects included.
type ClientSequence struct {
	last int64
}

func (s *ClientSequence) Next() int64 {
	s.last++
	return s.last
}

func (s *ClientSequence) Last() int64 {
	return s.last
}
