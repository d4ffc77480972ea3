package client

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	evicted []int64
	err     error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, templateID int64) error {
	f.evicted = append(f.evicted, templateID)
	return f.err
}

type fakeSubscriber struct {
	subject string
	handle  func([]byte)
}

func (f *fakeSubscriber) Subscribe(subject string, handle func([]byte)) error {
	f.subject = subject
	f.handle = handle
	return nil
}

func TestTemplateListenerEvictsChangedTemplate(t *testing.T) {
	cache := &fakeInvalidator{}
	sub := &fakeSubscriber{}
	l := NewTemplateListener(cache, "hr.leave", zerolog.Nop())

	require.NoError(t, l.Start(sub))
	assert.Equal(t, "hr.leave.template.changed", sub.subject)

	sub.handle([]byte(`{"template_id": 4}`))
	assert.Equal(t, []int64{4}, cache.evicted)
}

func TestTemplateListenerIgnoresMalformedEvents(t *testing.T) {
	cache := &fakeInvalidator{}
	l := NewTemplateListener(cache, "hr.leave", zerolog.Nop())

	for _, payload := range []string{`{`, `{}`, `{"template_id": -1}`} {
		l.Handle([]byte(payload))
	}
	assert.Empty(t, cache.evicted)
}

func TestTemplateListenerSurvivesEvictionFailure(t *testing.T) {
	cache := &fakeInvalidator{err: assert.AnError}
	l := NewTemplateListener(cache, "hr.leave", zerolog.Nop())

	assert.NotPanics(t, func() { l.Handle([]byte(`{"template_id": 2}`)) })
	assert.Equal(t, []int64{2}, cache.evicted)
}
