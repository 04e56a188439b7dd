package thread

import "github.com/tribalmingle/mobileapp-sub000/internal/model"

// InsertPending adds an optimistic message.
func (s *Session) InsertPending(msg model.Message) {
	msg.Pending = true
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.msgs = merge(s.msgs, []model.Message{msg})
	s.mu.Unlock()
	s.signal()
}

// ConfirmPending swaps the pending message localID for its server copy. If a
// poll already brought the server copy in, the pending entry is just dropped.
// A poll requested before the confirmation keeps the confirmed copy even when
// its page omits it.
func (s *Session) ConfirmPending(localID string, confirmed model.Message) {
	confirmed.Pending = false
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	out := s.msgs[:0:0]
	for _, m := range s.msgs {
		if m.ID == localID {
			continue
		}
		out = append(out, m)
	}
	s.seq++
	if confirmed.ID != "" {
		s.local[confirmed.ID] = s.seq
	}
	s.msgs = merge(out, []model.Message{confirmed})
	s.mu.Unlock()
	s.signal()
}

// RemovePending drops the pending message localID.
func (s *Session) RemovePending(localID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	out := s.msgs[:0:0]
	for _, m := range s.msgs {
		if m.ID != localID {
			out = append(out, m)
		}
	}
	s.msgs = out
	s.mu.Unlock()
	s.signal()
}
