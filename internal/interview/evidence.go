package interview

// EvidenceStore keeps at most one Evidence per symptom id, in first-insertion order.
type EvidenceStore struct {
	items []Evidence
	index map[string]int
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{index: make(map[string]int)}
}

// Upsert records choice for symptomID, replacing any earlier entry in place.
func (s *EvidenceStore) Upsert(symptomID string, choice Choice, source Source) {
	ev := Evidence{SymptomID: symptomID, Choice: choice, Source: source}
	if i, ok := s.index[symptomID]; ok {
		s.items[i] = ev
		return
	}
	s.index[symptomID] = len(s.items)
	s.items = append(s.items, ev)
}

// Remove deletes the entry for symptomID and reports whether one existed.
func (s *EvidenceStore) Remove(symptomID string) bool {
	i, ok := s.index[symptomID]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, symptomID)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].SymptomID] = j
	}
	return true
}

func (s *EvidenceStore) Get(symptomID string) (Evidence, bool) {
	i, ok := s.index[symptomID]
	if !ok {
		return Evidence{}, false
	}
	return s.items[i], true
}

func (s *EvidenceStore) Len() int {
	return len(s.items)
}

// Snapshot returns a copy of the stored evidence.
func (s *EvidenceStore) Snapshot() []Evidence {
	out := make([]Evidence, len(s.items))
	copy(out, s.items)
	return out
}

// Restore replaces the contents with a previous snapshot.
func (s *EvidenceStore) Restore(snapshot []Evidence) {
	s.Clear()
	for _, ev := range snapshot {
		s.Upsert(ev.SymptomID, ev.Choice, ev.Source)
	}
}

func (s *EvidenceStore) Clear() {
	s.items = nil
	s.index = make(map[string]int)
}
