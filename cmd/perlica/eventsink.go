package main

import (
	"context"

	"github.com/perlica/perlica/internal/eventlog"
)

// dispatcherEventSink adapts eventlog.Store to dispatcher.EventSink, which
// carries a context through to Append so the event is attributed to the
// run/session the ctx was stamped with (see eventlog.AddRunID/AddSessionID).
type dispatcherEventSink struct {
	app *app
}

func (s *dispatcherEventSink) Emit(ctx context.Context, eventType string, data map[string]any) {
	contextRoot := s.app.contextRoot
	if _, _, err := s.app.events.Append(ctx, contextRoot, eventType, data, ""); err != nil {
		s.app.logger.Warn("event append failed", "type", eventType, "error", err)
	}
}

// taskcoordEventSink adapts eventlog.Store to taskcoord.EventSink, which has
// no ctx parameter: the coordinator fires synchronously from inside state
// transitions, so a background context is enough to attribute the event.
type taskcoordEventSink struct {
	app *app
}

func (s *taskcoordEventSink) Emit(eventType string, data map[string]any) {
	contextRoot := s.app.contextRoot
	if _, _, err := s.app.events.Append(context.Background(), contextRoot, eventType, data, ""); err != nil {
		s.app.logger.Warn("event append failed", "type", eventType, "error", err)
	}
}

// serviceEventSink adapts eventlog.Store to service.EventSink. Distinct type
// from taskcoordEventSink despite the identical method shape: service and
// taskcoord declare their own EventSink interfaces, so Go's structural typing
// lets either adapter satisfy both, but each name stays scoped to the
// collaborator it was built for.
type serviceEventSink struct {
	app *app
}

func (s *serviceEventSink) Emit(eventType string, data map[string]any) {
	contextRoot := s.app.contextRoot
	if _, _, err := s.app.events.Append(context.Background(), contextRoot, eventType, data, ""); err != nil {
		s.app.logger.Warn("event append failed", "type", eventType, "error", err)
	}
}
