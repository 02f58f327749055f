// Package display is the side of the engine that renders widgets. The
// scheduler only ever tells a Display to show or hide a widget by id.
package display

import (
	"encoding/json"
	"sync"
	"time"

	"widgetd/internal/eventbus"
	logx "widgetd/pkg/logx"
)

// Display receives fire-and-forget visibility commands. Implementations
// must not block the caller for long; the scheduler invokes them from its
// event loop.
type Display interface {
	Show(id string, payload json.RawMessage)
	Hide(id string)
}

// Log writes every command to a logger. Used when no renderer is attached.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "display"))}
}

func (d *Log) Show(id string, payload json.RawMessage) {
	d.log.Info("show", logx.String("id", id), logx.Int("payload_bytes", len(payload)))
}

func (d *Log) Hide(id string) {
	d.log.Info("hide", logx.String("id", id))
}

// Bus publishes commands as display.* events so out-of-process renderers
// can follow along.
type Bus struct {
	bus eventbus.Bus
	now func() time.Time
}

const (
	TypeShow = "display.show"
	TypeHide = "display.hide"
)

// Command is the Data of display.* events.
type Command struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewBus(b eventbus.Bus) *Bus { return &Bus{bus: b, now: time.Now} }

func (d *Bus) Show(id string, payload json.RawMessage) {
	d.bus.Publish(eventbus.Event{Type: TypeShow, Time: d.now(), Data: Command{ID: id, Payload: payload}})
}

func (d *Bus) Hide(id string) {
	d.bus.Publish(eventbus.Event{Type: TypeHide, Time: d.now(), Data: Command{ID: id}})
}

// Multi fans a command out to several displays in order.
type Multi []Display

func (m Multi) Show(id string, payload json.RawMessage) {
	for _, d := range m {
		d.Show(id, payload)
	}
}

func (m Multi) Hide(id string) {
	for _, d := range m {
		d.Hide(id)
	}
}

// Recorder remembers which widgets are currently shown and counts calls.
// Handy for tests and for `widgetd eval`.
type Recorder struct {
	mu      sync.Mutex
	visible map[string]json.RawMessage
	calls   []Call
}

type Call struct {
	Show bool
	ID   string
}

func NewRecorder() *Recorder { return &Recorder{visible: map[string]json.RawMessage{}} }

func (r *Recorder) Show(id string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible[id] = payload
	r.calls = append(r.calls, Call{Show: true, ID: id})
}

func (r *Recorder) Hide(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visible, id)
	r.calls = append(r.calls, Call{ID: id})
}

func (r *Recorder) Visible(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.visible[id]
	return ok
}

// Calls returns a copy of every command received so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
