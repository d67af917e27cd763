// Package events publishes resource service events.
//
// Every successful mutation emits one event on the subject
// <prefix>.<model>.<name>, where name is one of the standard mutation events
// or a custom event the resource declared.
package events

import (
	"context"
	"strings"

	"github.com/roach88/restq/internal/ir"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "restq"

// Standard mutation events.
const (
	Created = "created"
	Updated = "updated"
	Patched = "patched"
	Removed = "removed"
)

// Standard lists the events every resource emits.
var Standard = []string{Created, Updated, Patched, Removed}

// Event is the envelope published for one service event.
type Event struct {
	// ID is content-addressed: the same model, name and data always give
	// the same id, so subscribers can drop redeliveries.
	ID    string `json:"id"`
	Model string `json:"model"`
	Name  string `json:"event"`
	Data  any    `json:"data"`
}

// New builds an Event with its content-addressed id.
func New(model, name string, data any) (Event, error) {
	id, err := ir.EventID(model, name, data)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Model: model, Name: name, Data: data}, nil
}

// Topic returns the subject for an event of model.
func Topic(prefix, model, name string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.Join([]string{prefix, model, name}, ".")
}

// IsStandard reports whether name is one of the standard mutation events.
func IsStandard(name string) bool {
	for _, s := range Standard {
		if s == name {
			return true
		}
	}
	return false
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}

// Subscriber receives raw event payloads.
type Subscriber interface {
	// Subscribe returns a channel of payloads for topic (NATS wildcards
	// allowed) and a cancel function that unsubscribes and closes it.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
