package monitor

import "time"

// Status is the last observed state of the service dependencies.
type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	Buffer     bool      `json:"buffer"`
	BufferSize int       `json:"buffer_size"`
	LastCheck  time.Time `json:"last_check"`
	// Latency holds how long the last ping of each remote dependency took.
	Latency map[string]time.Duration `json:"-"`
}

// Healthy reports whether tracking events can reach the frecency store.
// Redis only caches rankings, so it does not count.
func (s Status) Healthy() bool {
	return s.PostgreSQL
}
