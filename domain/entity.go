package domain

import (
	"fmt"
	"time"
)

// EntityType names one of the item kinds that can appear in a soup.
type EntityType string

const (
	EntityDocument EntityType = "document"
	EntityChat     EntityType = "chat"
	EntityProject  EntityType = "project"
	EntityChannel  EntityType = "channel"
	EntityThread   EntityType = "thread"
)

// EntityTypes lists every trackable item kind in a stable order.
var EntityTypes = []EntityType{EntityDocument, EntityChat, EntityProject, EntityChannel, EntityThread}

func (t EntityType) Valid() bool {
	switch t {
	case EntityDocument, EntityChat, EntityProject, EntityChannel, EntityThread:
		return true
	}
	return false
}

// Entity identifies a trackable item. It is a plain value and safe to copy.
type Entity struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// Validate checks that the entity has a known type and an id.
func (e Entity) Validate() error {
	if !e.Type.Valid() {
		return NewError(ErrCodeInvalid, fmt.Sprintf("unknown entity type %q", e.Type))
	}
	if e.ID == "" {
		return NewError(ErrCodeInvalid, "missing entity id")
	}
	return nil
}

// TrackingAction is a kind of user interaction with an entity.
type TrackingAction string

const (
	ActionOpen  TrackingAction = "open"
	ActionView  TrackingAction = "view"
	ActionEdit  TrackingAction = "edit"
	ActionSend  TrackingAction = "send"
	ActionShare TrackingAction = "share"
)

var actionWeights = map[TrackingAction]float64{
	ActionOpen:  1.0,
	ActionView:  0.5,
	ActionEdit:  2.0,
	ActionSend:  1.5,
	ActionShare: 1.0,
}

func (a TrackingAction) Valid() bool {
	_, ok := actionWeights[a]
	return ok
}

// Weight is the base contribution of one occurrence of the action.
func (a TrackingAction) Weight() float64 {
	if w, ok := actionWeights[a]; ok {
		return w
	}
	return actionWeights[ActionView]
}

// IsView reports whether the action counts as the user looking at the item.
func (a TrackingAction) IsView() bool {
	return a == ActionOpen || a == ActionView
}

// TrackingData is one user interaction.
type TrackingData struct {
	Entity Entity         `json:"entity"`
	Action TrackingAction `json:"action"`
}

func (d TrackingData) Validate() error {
	if err := d.Entity.Validate(); err != nil {
		return err
	}
	if !d.Action.Valid() {
		return NewError(ErrCodeInvalid, fmt.Sprintf("unknown action %q", d.Action))
	}
	return nil
}

// TrackingEvent is a timestamped interaction as fed to the aggregate engine.
type TrackingEvent struct {
	Data      TrackingData `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}
