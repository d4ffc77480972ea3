package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
)

// Publisher is the transport the event publisher writes to. natsclient.Client
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// EventPublisher publishes application lifecycle events to NATS after the
// transition has committed.
//
// Subject convention: <prefix>.application.<event>
// Events: submitted, step_approved, approved, remanded, withdrawn, deleted
//
// All publish operations are non-fatal: errors are logged but never propagated
// to the caller.
type EventPublisher struct {
	nats   Publisher
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// ApplicationEvent is the JSON document published to NATS.
type ApplicationEvent struct {
	EventID       string                       `json:"event_id"`
	EventType     string                       `json:"event_type"`
	OccurredAt    time.Time                    `json:"occurred_at"`
	ActorID       int64                        `json:"actor_id"`
	ApplicationID int64                        `json:"application_id"`
	ApplicantID   int64                        `json:"applicant_id"`
	TemplateID    int64                        `json:"template_id"`
	Status        repository.ApplicationStatus `json:"status"`
	CurrentStep   *int                         `json:"current_step,omitempty"`
	Payload       map[string]any               `json:"payload,omitempty"`
}

// NewEventPublisher creates a publisher backed by the given NATS client. A nil
// client disables publishing.
func NewEventPublisher(nats Publisher, prefix string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		nats:   nats,
		prefix: prefix,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subject returns the subject an event is published on.
func (p *EventPublisher) Subject(event string) string {
	return fmt.Sprintf("%s.application.%s", p.prefix, event)
}

// PublishApplicationEvent publishes one lifecycle event.
func (p *EventPublisher) PublishApplicationEvent(ctx context.Context, event string, app *repository.Application, actorID int64, payload map[string]any) {
	if p.nats == nil || app == nil {
		return
	}

	msg := &ApplicationEvent{
		EventID:       uuid.NewString(),
		EventType:     event,
		OccurredAt:    p.now(),
		ActorID:       actorID,
		ApplicationID: app.ID,
		ApplicantID:   app.ApplicantID,
		TemplateID:    app.TemplateID,
		Status:        app.Status,
		CurrentStep:   app.CurrentStep,
		Payload:       payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event).Msg("event: failed to marshal")
		return
	}

	subject := p.Subject(event)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Int64("application_id", app.ID).
			Msg("event: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_id", msg.EventID).
		Int64("application_id", app.ID).
		Msg("event: published")
}
