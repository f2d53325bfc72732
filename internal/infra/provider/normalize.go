package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// flexNumber decodes a JSON number whether or not it arrives quoted.
// The feed has emitted the crash value both ways over time.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*n = flexNumber(s)
	return nil
}

func (n flexNumber) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// rawEntry covers both historical feed shapes for a single round.
type rawEntry struct {
	GameID      flexNumber `json:"gameId"`
	Hash        string     `json:"hash"`
	Crash       flexNumber `json:"crash"`
	PrepareTime int64      `json:"prepareTime"`
	BeginTime   int64      `json:"beginTime"`
	EndTime     int64      `json:"endTime"`
}

// Normalize decodes a raw feed payload into the single internal Page shape.
//
// Two historical payload shapes are accepted:
//
//	{"data": [ {...}, ... ]}
//	{"data": {"list": [ {...}, ... ]}} or {"data": {"items": [ ... ]}}
//
// Anything else is ErrMalformed. Downstream code never branches on shape.
func Normalize(raw []byte) (*Page, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data field", ErrMalformed)
	}

	var entries []rawEntry

	// Shape 1: flat array under "data".
	if err := json.Unmarshal(envelope.Data, &entries); err != nil {
		// Shape 2: object wrapping the array under "list" or "items".
		var wrapped struct {
			List  []rawEntry `json:"list"`
			Items []rawEntry `json:"items"`
		}
		if err := json.Unmarshal(envelope.Data, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: unrecognized data shape: %v", ErrMalformed, err)
		}
		entries = wrapped.List
		if len(entries) == 0 {
			entries = wrapped.Items
		}
	}

	page := &Page{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		entry, err := e.normalize()
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}

func (e rawEntry) normalize() (Entry, error) {
	id := string(e.GameID)
	if id == "" {
		return Entry{}, fmt.Errorf("%w: entry missing gameId", ErrMalformed)
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return Entry{}, fmt.Errorf("%w: non-numeric gameId %q", ErrMalformed, id)
	}
	if e.Hash == "" {
		return Entry{}, fmt.Errorf("%w: entry %s missing hash", ErrMalformed, id)
	}

	outcome, err := e.Crash.Float64()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: entry %s bad crash value %q", ErrMalformed, id, string(e.Crash))
	}

	return Entry{
		ID:         id,
		SeedHash:   e.Hash,
		Outcome:    outcome,
		PreparedAt: msToTime(e.PrepareTime),
		StartedAt:  msToTime(e.BeginTime),
		EndedAt:    msToTime(e.EndTime),
	}, nil
}

// msToTime converts a millisecond epoch to *time.Time, nil for zero.
func msToTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
