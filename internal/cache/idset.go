package cache

// IDSet is an ordered set of ids, the cached shape of toggle-style collections
// such as saved jobs.
type IDSet []string

func (s IDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Toggle returns a copy with id removed if present, appended otherwise.
func (s IDSet) Toggle(id string) (IDSet, bool) {
	out := make(IDSet, 0, len(s)+1)
	removed := false
	for _, v := range s {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if removed {
		return out, false
	}
	return append(out, id), true
}
