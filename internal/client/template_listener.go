package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Subscriber is the transport the template listener reads from.
// natsclient.Client satisfies it.
type Subscriber interface {
	Subscribe(subject string, handle func(data []byte)) error
}

// TemplateInvalidator drops cached copies of a template.
type TemplateInvalidator interface {
	Invalidate(ctx context.Context, templateID int64) error
}

// TemplateChangedEvent is published by the template administration service
// whenever a template's fields or approval route change.
//
// Subject convention: <prefix>.template.changed
type TemplateChangedEvent struct {
	TemplateID int64 `json:"template_id"`
}

// TemplateListener evicts cached templates when they change upstream.
type TemplateListener struct {
	cache   TemplateInvalidator
	prefix  string
	timeout time.Duration
	log     zerolog.Logger
}

// NewTemplateListener creates a listener that evicts from cache.
func NewTemplateListener(cache TemplateInvalidator, prefix string, log zerolog.Logger) *TemplateListener {
	return &TemplateListener{cache: cache, prefix: prefix, timeout: 5 * time.Second, log: log}
}

// Subject returns the subject template changes arrive on.
func (l *TemplateListener) Subject() string {
	return fmt.Sprintf("%s.template.changed", l.prefix)
}

// Start subscribes to template change events.
func (l *TemplateListener) Start(sub Subscriber) error {
	return sub.Subscribe(l.Subject(), l.Handle)
}

// Handle evicts the template named by one event. Bad payloads and cache
// failures are logged; the cache TTL bounds staleness either way.
func (l *TemplateListener) Handle(data []byte) {
	var evt TemplateChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil || evt.TemplateID <= 0 {
		l.log.Warn().Err(err).Bytes("payload", data).Msg("template: ignoring malformed change event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.cache.Invalidate(ctx, evt.TemplateID); err != nil {
		l.log.Warn().Err(err).Int64("template_id", evt.TemplateID).Msg("template: cache eviction failed")
		return
	}
	l.log.Debug().Int64("template_id", evt.TemplateID).Msg("template: cache evicted")
}
