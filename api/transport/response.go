package transport

import "github.com/goccy/go-json"

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// TrackResponse reports a tracked interaction. Score and EventCount are
// omitted when the event was buffered for later.
type TrackResponse struct {
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Buffered   bool     `json:"buffered"`
	EventCount int64    `json:"event_count,omitempty"`
	Score      *float64 `json:"frecency_score,omitempty"`
}
