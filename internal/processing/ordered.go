package processing

// orderedSet keeps first-occurrence order of unique strings.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: make([]string, 0)}
}

// Add inserts s and reports whether it was new.
func (s *orderedSet) Add(v string) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet) Values() []string {
	return s.items
}

func dedupe(values []string) []string {
	set := newOrderedSet()
	for _, v := range values {
		set.Add(v)
	}
	return set.Values()
}
