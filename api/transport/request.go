package transport

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// SoupQuery holds the raw query parameters of GET /api/v1/soup.
type SoupQuery struct {
	Cursor  string `validate:"omitempty,max=2048"`
	Sort    string `validate:"omitempty,max=32"`
	// Limit has no upper bound here; the soup usecase clamps it.
	Limit   int    `validate:"min=0"`
	Exclude string `validate:"omitempty,max=64"`
	Expand  bool
}

// TrackRequest is the body of POST /api/v1/track.
type TrackRequest struct {
	EntityType string `json:"entity_type" validate:"required,oneof=document chat project channel thread"`
	EntityID   string `json:"entity_id" validate:"required,max=128"`
	Action     string `json:"action" validate:"required,oneof=open view edit send share"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks v against its validate tags.
func Validate(v interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}
