package domain

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// Cursor is the decoded form of an opaque pagination token. It names the
// last row of the previous page and the sort it was produced under.
type Cursor struct {
	ID    string    `json:"id"`
	Limit uint32    `json:"limit"`
	Val   CursorVal `json:"val"`
}

// CursorVal is the sort key of the last row. Exactly one of Time and Score is set.
type CursorVal struct {
	SortType string
	Time     *time.Time
	Score    *float64
}

type cursorValWire struct {
	SortType string          `json:"sort_type"`
	LastVal  json.RawMessage `json:"last_val"`
}

func (v CursorVal) MarshalJSON() ([]byte, error) {
	var last any
	switch {
	case v.Time != nil:
		last = v.Time.UTC().Format(time.RFC3339Nano)
	case v.Score != nil:
		last = *v.Score
	default:
		return nil, errors.New("cursor value has no last_val")
	}
	raw, err := json.Marshal(last)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cursorValWire{SortType: v.SortType, LastVal: raw})
}

func (v *CursorVal) UnmarshalJSON(data []byte) error {
	var wire cursorValWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.SortType == "" {
		return errors.New("missing sort_type")
	}
	raw := bytes.TrimSpace(wire.LastVal)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New("missing last_val")
	}

	out := CursorVal{SortType: wire.SortType}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("last_val is not an RFC3339 timestamp: %w", err)
		}
		out.Time = &ts
	} else {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("last_val is neither a timestamp nor a number: %w", err)
		}
		out.Score = &f
	}
	*v = out
	return nil
}

// NewTimeCursor builds a cursor positioned after a row whose sort key is ts.
func NewTimeCursor(id string, limit int, sortType string, ts time.Time) Cursor {
	return Cursor{ID: id, Limit: uint32(limit), Val: CursorVal{SortType: sortType, Time: &ts}}
}

// NewScoreCursor builds a cursor positioned after a row ranked by score.
func NewScoreCursor(id string, limit int, sortType string, score float64) Cursor {
	return Cursor{ID: id, Limit: uint32(limit), Val: CursorVal{SortType: sortType, Score: &score}}
}

// EncodeCursor renders the token handed to clients.
func EncodeCursor(c Cursor) (string, error) {
	if c.Val.Score != nil && (math.IsNaN(*c.Val.Score) || math.IsInf(*c.Val.Score, 0)) {
		return "", errors.New("cursor score is not finite")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a client token. Every failure is a CursorDecodeError.
func DecodeCursor(token string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		var stdErr error
		data, stdErr = base64.StdEncoding.DecodeString(token)
		if stdErr != nil {
			return nil, CursorDecodeError(fmt.Errorf("invalid base64 encoding: %w", err))
		}
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, CursorDecodeError(fmt.Errorf("invalid cursor JSON: %w", err))
	}
	if c.ID == "" {
		return nil, CursorDecodeError(errors.New("missing id"))
	}
	if c.Val.SortType == "" {
		return nil, CursorDecodeError(errors.New("missing val"))
	}
	return &c, nil
}

// TimeKeyset positions a page strictly after the row (LastVal, ID).
type TimeKeyset struct {
	ID      string
	LastVal time.Time
}

// SimpleCursor is the decoded position of a simple-sort page. A nil After
// starts at the head of the list.
type SimpleCursor struct {
	Sort  SimpleSortMethod
	After *TimeKeyset
}

// ScoreKeyset positions a page of aggregates strictly after (RankKey, ID).
type ScoreKeyset struct {
	ID      string
	RankKey float64
}

// SimpleKeyset interprets the cursor under a simple sort method.
func (c *Cursor) SimpleKeyset(method SimpleSortMethod) (*TimeKeyset, error) {
	if c == nil {
		return nil, nil
	}
	if c.Val.SortType != string(method) {
		return nil, CursorDecodeError(fmt.Errorf("cursor sort_type %q does not match sort %q", c.Val.SortType, method))
	}
	if c.Val.Time == nil {
		return nil, CursorDecodeError(fmt.Errorf("sort %q needs a timestamp last_val", method))
	}
	return &TimeKeyset{ID: c.ID, LastVal: *c.Val.Time}, nil
}

// RankPosition interprets the cursor under an advanced sort method. A numeric
// last_val resumes inside the scored section, a timestamp inside the fallback.
func (c *Cursor) RankPosition(method AdvancedSortMethod) (*RankPosition, error) {
	if c == nil {
		return nil, nil
	}
	if c.Val.SortType != string(method) {
		return nil, CursorDecodeError(fmt.Errorf("cursor sort_type %q does not match sort %q", c.Val.SortType, method))
	}
	switch {
	case c.Val.Score != nil:
		return &RankPosition{ID: c.ID, Value: FrecencyScoreValue(*c.Val.Score)}, nil
	case c.Val.Time != nil:
		return &RankPosition{ID: c.ID, Value: UpdatedAtValue(*c.Val.Time)}, nil
	}
	return nil, CursorDecodeError(errors.New("missing last_val"))
}
