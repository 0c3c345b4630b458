package signaling

// PathForTest returns the relay path the session connects to.
func (s *Signaling) PathForTest() string {
	return s.pathHex
}

// PeerTheirsForTest returns the last sequence number accepted from the
// chosen peer.
func (s *Signaling) PeerTheirsForTest() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return 0, false
	}
	return s.peer.CSN().Theirs()
}
