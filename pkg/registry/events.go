package registry

import (
	"time"

	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventAdded         EventKind = "added"
	EventStatusChanged EventKind = "status_changed"
	EventDownloaded    EventKind = "downloaded"
	EventAutoRejected  EventKind = "auto_rejected"
	EventRoleChanged   EventKind = "role_changed"
	EventReset         EventKind = "reset"
)

// Event describes one registry mutation. Skill holds the record as it looks
// after the mutation; it is zero for role changes and resets.
type Event struct {
	Kind  EventKind    `json:"kind"`
	Skill skills.Skill `json:"skill"`
	Role  skills.Role  `json:"role,omitempty"`
	Notes string       `json:"notes,omitempty"`
	At    time.Time    `json:"at"`
}

// Observer receives registry events. Notify is called outside the registry
// lock on the goroutine that performed the mutation. Events from one
// goroutine arrive in the order it made them; events of concurrent
// mutations may arrive in either order, and observers must be safe for
// concurrent use.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }
