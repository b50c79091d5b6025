package services

// Caller identifies the authenticated user and the device slot whose cached
// view is being served. Slot falls back to the user id.
type Caller struct {
	UserID string
	Email  string
	Slot   string
}

func (c Caller) slot() string {
	if c.Slot != "" {
		return c.Slot
	}
	return c.UserID
}

// Tally is a set of per-category counts with their derived total.
type Tally struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// NewTally derives Total from counts; a Tally is never built any other way.
func NewTally(counts map[string]int64) Tally {
	t := Tally{Counts: make(map[string]int64, len(counts))}
	for k, v := range counts {
		t.Counts[k] = v
		t.Total += v
	}
	return t
}
