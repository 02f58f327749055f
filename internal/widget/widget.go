// Package widget holds the persisted form of a user-authored widget.
package widget

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"widgetd/internal/trigger"
)

var ErrInvalid = errors.New("widget: invalid")

// Record binds a widget identity to its trigger. Payload describes how to
// render the widget and is passed through to the display untouched.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Trigger   trigger.Trigger `json:"trigger"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// New returns a record with a fresh id. The trigger is validated here so an
// inconsistent rule never reaches the scheduler.
func New(name string, t trigger.Trigger, payload json.RawMessage, now time.Time) (Record, error) {
	if err := t.Validate(); err != nil {
		return Record{}, err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return Record{}, errors.Join(ErrInvalid, errors.New("payload is not valid JSON"))
	}
	return Record{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Trigger:   t,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}, nil
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.Join(ErrInvalid, errors.New("missing id"))
	}
	return r.Trigger.Validate()
}

// Label is a human-friendly name for logs.
func (r Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
