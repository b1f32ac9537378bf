package postgres

import (
	"github.com/goccy/go-json"

	"github.com/fastygo/soup/domain"
)

func marshalEvents(events []domain.TimestampWeight) ([]byte, error) {
	if events == nil {
		events = []domain.TimestampWeight{}
	}
	return json.Marshal(events)
}

func unmarshalEvents(data []byte) ([]domain.TimestampWeight, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var events []domain.TimestampWeight
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// maxPageRows caps how many rows one table query may return.
const maxPageRows = 500

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageRows {
		return maxPageRows
	}
	return limit
}
