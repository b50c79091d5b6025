package cache

import (
	"encoding/json"
	"time"
)

// Entry is the envelope written for every cached value. Owner is the user the
// data was fetched for; an entry read back by anyone else is discarded.
type Entry struct {
	Owner    string          `json:"owner"`
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

func jsonUnmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(raw, &e)
	return e, err
}

func encodeEntry(owner string, at time.Time, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Entry{Owner: owner, StoredAt: at, Data: data})
}
