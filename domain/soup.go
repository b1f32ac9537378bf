package domain

import (
	"fmt"
	"strings"
	"time"
)

// SoupItem is one entry of a user's soup. Unexpanded queries yield *ItemBase,
// expanded ones the per-type projections below.
type SoupItem interface {
	Base() *ItemBase
}

// ItemBase holds the columns shared by every item table.
type ItemBase struct {
	ID            string     `json:"id"`
	Type          EntityType `json:"type"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ViewedAt      *time.Time `json:"viewed_at,omitempty"`
	FrecencyScore *float64   `json:"frecency_score,omitempty"`
}

func (b *ItemBase) Base() *ItemBase { return b }

func (b *ItemBase) Entity() Entity {
	return Entity{Type: b.Type, ID: b.ID}
}

type DocumentItem struct {
	ItemBase
	FileType  string  `json:"file_type,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

type ChatItem struct {
	ItemBase
	Model     string  `json:"model,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

type ProjectItem struct {
	ItemBase
	ParentID *string `json:"parent_id,omitempty"`
}

type ChannelItem struct {
	ItemBase
	ChannelType string `json:"channel_type"`
}

type ThreadItem struct {
	ItemBase
	ChannelID    string `json:"channel_id"`
	MessageCount int64  `json:"message_count"`
}

// SoupExclude is a set of flags narrowing what a soup query returns.
type SoupExclude uint8

const (
	// ExcludeFrecency skips the frecency scorer: frecency requests are served
	// by the unweighted updated_at ordering.
	ExcludeFrecency SoupExclude = 1 << iota
	// ExcludeFallback drops unscored items from frecency requests. Without the
	// fallback, a scorer outage is reported instead of degraded around.
	ExcludeFallback
	// ExcludeTracked omits items the user has a frecency aggregate for.
	ExcludeTracked
)

var excludeNames = []struct {
	flag SoupExclude
	name string
}{
	{ExcludeFrecency, "frecency"},
	{ExcludeFallback, "fallback"},
	{ExcludeTracked, "tracked"},
}

func (e SoupExclude) Has(flag SoupExclude) bool { return e&flag != 0 }

func (e SoupExclude) String() string {
	var names []string
	for _, n := range excludeNames {
		if e.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseSoupExclude reads a comma separated list of exclude flags.
func ParseSoupExclude(raw string) (SoupExclude, error) {
	var out SoupExclude
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, n := range excludeNames {
			if n.name == part {
				out |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, NewError(ErrCodeInvalid, fmt.Sprintf("unsupported exclude flag %q", part))
		}
	}
	return out, nil
}
