package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of an image. The progression is strictly
// NEW -> PROCESSING -> DONE | ERROR; terminal states never transition away.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusError      Status = "ERROR"
)

// transitions holds the allowed moves out of each state. PROCESSING -> PROCESSING
// is allowed so a redelivered queue message can safely re-enter processing.
// NEW -> ERROR covers a failed enqueue at submission time.
var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessing, StatusDone, StatusError},
}

// CanTransition reports whether moving from s to the given state is allowed.
func (s Status) CanTransition(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// AllowedInto returns the set of states from which the given state is
// reachable, in declaration order.
func AllowedInto(to Status) []Status {
	var from []Status
	for _, s := range []Status{StatusNew, StatusProcessing, StatusDone, StatusError} {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}

// Image represents a single uploaded image and its processing record.
type Image struct {
	ID           uuid.UUID         `json:"id"`
	Status       Status            `json:"status"`
	OriginalURL  string            `json:"original_url"`
	Thumbnails   map[string]string `json:"thumbnails"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
