package service

import (
	"context"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/events"
)

// publish sends a standard mutation event. The mutation has already been
// committed, so a publish failure is logged and not returned.
func (r *Resource) publish(ctx context.Context, name string, data any) {
	if err := r.send(ctx, name, data); err != nil {
		r.logger.Warn("event publish failed",
			"model", r.opts.Model,
			"event", name,
			"error", err)
	}
}

func (r *Resource) send(ctx context.Context, name string, data any) error {
	ev, err := events.New(r.opts.Model, name, data)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, events.Topic(r.eventPrefix, r.opts.Model, name), ev)
}

// Emit publishes a custom event. The event must be one of Options.Events.
func (r *Resource) Emit(ctx context.Context, name string, payload any) error {
	if !r.custom[name] {
		e := errs.BadRequest("Event %q is not registered for %s.", name, r.opts.Model)
		e.Code = errs.CodeUnregisteredEvent
		return e
	}
	if err := r.send(ctx, name, payload); err != nil {
		return errs.General("publish %s: %v", name, err).Wrap(err)
	}
	return nil
}
