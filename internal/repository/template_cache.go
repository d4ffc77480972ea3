package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/metrics"
)

// TemplateSource is what the cache reads through to.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	GetApprovalRoute(ctx context.Context, templateID int64) ([]RouteStep, error)
}

// CachedTemplateStore is a read-through Redis cache in front of a
// TemplateSource. Redis failures are logged and the source is used; a nil
// client disables caching.
type CachedTemplateStore struct {
	next   TemplateSource
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedTemplateStore wraps next. client may be nil.
func NewCachedTemplateStore(next TemplateSource, client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *CachedTemplateStore {
	return &CachedTemplateStore{next: next, client: client, ttl: ttl, log: log}
}

func templateKey(id int64) string { return fmt.Sprintf("leave:template:%d", id) }
func routeKey(id int64) string    { return fmt.Sprintf("leave:template:%d:route", id) }

// GetTemplate returns the cached template or loads and caches it.
func (c *CachedTemplateStore) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	var t Template
	if c.lookup(ctx, "template", templateKey(id), &t) {
		return &t, nil
	}
	loaded, err := c.next.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, templateKey(id), loaded)
	return loaded, nil
}

// GetApprovalRoute returns the cached route or loads and caches it.
func (c *CachedTemplateStore) GetApprovalRoute(ctx context.Context, templateID int64) ([]RouteStep, error) {
	var route []RouteStep
	if c.lookup(ctx, "route", routeKey(templateID), &route) {
		return route, nil
	}
	loaded, err := c.next.GetApprovalRoute(ctx, templateID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, routeKey(templateID), loaded)
	return loaded, nil
}

// Invalidate drops the cached template and route.
func (c *CachedTemplateStore) Invalidate(ctx context.Context, templateID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, templateKey(templateID), routeKey(templateID)).Err()
}

func (c *CachedTemplateStore) lookup(ctx context.Context, kind, key string, dst any) bool {
	if c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		metrics.TemplateCacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	case err != nil:
		metrics.TemplateCacheLookups.WithLabelValues(kind, "error").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("Template cache read failed")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.TemplateCacheLookups.WithLabelValues(kind, "error").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable template cache entry")
		return false
	}
	metrics.TemplateCacheLookups.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *CachedTemplateStore) store(ctx context.Context, key string, v any) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Template cache encode failed")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Template cache write failed")
	}
}
