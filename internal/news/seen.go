package news

// seenSet remembers the most recent ids, forgetting the oldest past capacity.
type seenSet struct {
	order []string
	next  int
	ids   map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		order: make([]string, 0, capacity),
		ids:   make(map[string]struct{}, capacity),
	}
}

// add reports whether id was new.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) < cap(s.order) {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % len(s.order)
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *seenSet) len() int { return len(s.ids) }
