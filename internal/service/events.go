package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types published after successful mutations.
const (
	EventUserRegistered  = "user.registered"
	EventUserRoleChanged = "user.role_changed"
	EventUserDeleted     = "user.deleted"
	EventContactCreated  = "contact.created"
	EventContactUpdated  = "contact.updated"
	EventContactDeleted  = "contact.deleted"
)

// Event describes something that happened to a user or a contact.  ActorID
// is empty for self-service registration.
type Event struct {
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId,omitempty"`
	ActorRole  string    `json:"actorRole,omitempty"`
	SubjectID  string    `json:"subjectId"`
	OwnerID    string    `json:"ownerId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventPublisher delivers events to interested parties.  Implementations
// must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// emit publishes ev, logging instead of failing when delivery does not work.
// A mutation that already committed must not be reported as failed.
func emit(ctx context.Context, pub EventPublisher, log *zap.Logger, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("publish event failed",
			zap.String("type", ev.Type),
			zap.String("subject_id", ev.SubjectID),
			zap.Error(err))
	}
}

func actorEvent(typ string, actor Identity, subjectID, ownerID string) Event {
	return Event{
		Type:      typ,
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		SubjectID: subjectID,
		OwnerID:   ownerID,
	}
}
