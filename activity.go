package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignUp          ActivityEventType = "session.signup"
	ActivityEventSignIn          ActivityEventType = "session.signin"
	ActivityEventSignOut         ActivityEventType = "session.signout"
	ActivityEventCodeSent        ActivityEventType = "session.code.sent"
	ActivityEventCodeVerified    ActivityEventType = "session.code.verified"
	ActivityEventProfileCreated  ActivityEventType = "session.profile.created"
	ActivityEventFlowTransition  ActivityEventType = "session.flow.transition"
	ActivityEventPasswordChanged ActivityEventType = "session.password.changed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Email      string
	UserID     string
	FromState  FlowState
	ToState    FlowState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
