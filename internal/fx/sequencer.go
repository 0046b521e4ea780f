package fx

import "sync/atomic"

// Sequencer orders rate lookups issued for one document. Each lookup takes a ticket when
// it starts; only the holder of the newest ticket may apply its result, so a late answer
// to an earlier request never overwrites a later one.
type Sequencer struct {
	latest atomic.Uint64
}

// Next issues a ticket for a new lookup.
func (s *Sequencer) Next() uint64 {
	return s.latest.Add(1)
}

// IsLatest reports whether ticket belongs to the most recently started lookup.
func (s *Sequencer) IsLatest(ticket uint64) bool {
	return s.latest.Load() == ticket
}
