package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	TableRestaurants = "restaurants"
	TableReviews     = "reviews"

	KindInsert = "insert"
	KindUpdate = "update"
	// KindBackfill marks events replayed for rows that already existed.
	KindBackfill = "backfill"
)

// ChangeEvent announces that a row needs attention. It carries only the key;
// consumers load the row themselves.
type ChangeEvent struct {
	Table string `json:"table"`
	Kind  string `json:"kind"`
	ID    uint64 `json:"id"`
}

func Encode(ev ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode change event: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if ev.ID == 0 {
		return ChangeEvent{}, fmt.Errorf("decode change event: missing id")
	}
	return ev, nil
}
