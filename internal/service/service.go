// Package service implements the per-request orchestration: cache
// lookup, coalesced fetch, aggregation, cache population and the
// degraded fallback path. Upstream outages never surface as 5xx here;
// a stale or empty-but-well-formed answer is worth more to a dashboard
// widget than an error page.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/aggregate"
	"github.com/gridwatch/energy-data-cache/internal/cache/keys"
	"github.com/gridwatch/energy-data-cache/internal/cache/tiered"
	"github.com/gridwatch/energy-data-cache/internal/coalesce"
	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/core/observability"
	"github.com/gridwatch/energy-data-cache/internal/upstream"
)

// errUnavailable marks total pipeline failure; the handler answers it
// from the fallback key or with a degraded payload, never a 5xx.
var errUnavailable = errors.New("upstream unavailable")

type Service struct {
	logger *slog.Logger
	cache  *tiered.Cache
	group  *coalesce.Group[[]byte]
	client *upstream.Client
	retry  upstream.RetryPolicy
	ttlFor func(resource string) time.Duration
}

func New(logger *slog.Logger, cache *tiered.Cache, client *upstream.Client, retry upstream.RetryPolicy, grace time.Duration, ttlFor func(resource string) time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger: logger,
		cache:  cache,
		group:  coalesce.New[[]byte](grace),
		client: client,
		retry:  retry,
		ttlFor: ttlFor,
	}
}

// HandleQuery runs the state machine for one validated query:
// local cache → shared cache → coalesced fetch → fallback → degraded.
func (s *Service) HandleQuery(w http.ResponseWriter, r *http.Request, q model.Query) {
	ctx := r.Context()

	agg, ok := aggregate.For(q.Resource)
	if !ok {
		http.Error(w, "unknown resource", http.StatusInternalServerError)
		return
	}

	key := keys.Key(q)
	fallbackKey := keys.FallbackKey(q.Resource, q.Region)
	ttl := s.ttlFor(string(q.Resource))

	if body, tier := s.cache.Get(ctx, key); tier != tiered.TierMiss {
		s.respond(w, q, body, tier, ttl)
		return
	}

	payload, _, err := s.group.Do(ctx, key, func(fctx context.Context) ([]byte, error) {
		return s.fetchAndAggregate(fctx, agg, q, key, fallbackKey, ttl)
	})
	if err == nil {
		s.respond(w, q, payload, tiered.TierMiss, ttl)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, "request canceled", http.StatusRequestTimeout)
		return
	}

	s.logger.Warn("fetch pipeline failed, consulting fallback",
		"resource", string(q.Resource), "key", key, "err", err)

	if stale, ok := s.staleFromFallback(ctx, q, fallbackKey); ok {
		s.respondStale(w, q, stale)
		return
	}
	s.respondDegraded(w, q)
}

// fetchAndAggregate is the coalesced unit of work: one retry-wrapped
// upstream fetch, aggregation, and population of both cache tiers.
func (s *Service) fetchAndAggregate(ctx context.Context, agg aggregate.Aggregator, q model.Query, key, fallbackKey string, ttl time.Duration) ([]byte, error) {
	req := upstream.Request{
		Dataset: agg.Dataset(),
		Start:   q.Start,
		End:     q.End,
		Sort:    agg.TimeField() + " ASC",
	}
	if q.Region != model.RegionAll {
		req.PriceArea = q.Region.PriceArea()
	}

	out := s.retry.Execute(ctx, s.logger, req.Dataset, func(fctx context.Context) upstream.Outcome {
		return s.client.Fetch(fctx, req)
	})

	switch out.Kind {
	case upstream.OutcomeSuccess, upstream.OutcomeEmpty:
		resp := agg.Normalize(out.Records, q)
		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshal response: %w", err)
		}
		// hold back the fallback key on empty results so a thin range
		// cannot clobber the last known good data for the region
		fb := fallbackKey
		if len(resp.Records) == 0 {
			fb = ""
		}
		s.cache.Put(key, fb, payload, ttl)
		return payload, nil

	case upstream.OutcomeRetryable:
		return nil, fmt.Errorf("%w: transient status %d persisted through retries", errUnavailable, out.StatusCode)

	default:
		return nil, fmt.Errorf("%w: %v", errUnavailable, out.Err)
	}
}

// staleFromFallback rebuilds the fallback payload as an explicitly
// stale response. The cached entry itself is never mutated.
func (s *Service) staleFromFallback(ctx context.Context, q model.Query, fallbackKey string) ([]byte, bool) {
	body, ok := s.cache.Fallback(ctx, fallbackKey)
	if !ok {
		return nil, false
	}
	var resp model.AggregatedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		s.logger.Warn("fallback payload corrupt", "key", fallbackKey, "err", err)
		return nil, false
	}
	resp.Metadata.Status = model.StatusStale
	resp.Metadata.Message = "upstream unavailable; serving last known data"
	out, err := json.Marshal(&resp)
	if err != nil {
		return nil, false
	}
	return out, true
}

// staleMaxAge bounds how long intermediaries may hold a stale answer.
const staleMaxAge = 60 * time.Second

func (s *Service) respond(w http.ResponseWriter, q model.Query, payload []byte, tier tiered.Tier, ttl time.Duration) {
	secs := int(ttl / time.Second)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", string(tier))
	w.Header().Set("Cache-Control", fmt.Sprintf("s-maxage=%d, stale-while-revalidate=%d", secs, 2*secs))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	observability.IncResponse(string(q.Resource), model.StatusOK)
}

func (s *Service) respondStale(w http.ResponseWriter, q model.Query, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", string(tiered.TierStale))
	w.Header().Set("Cache-Control", fmt.Sprintf("s-maxage=%d", int(staleMaxAge/time.Second)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	observability.IncResponse(string(q.Resource), model.StatusStale)
}

func (s *Service) respondDegraded(w http.ResponseWriter, q model.Query) {
	meta := model.NewMetadata(q, 0, model.StatusDegraded)
	meta.Message = "data temporarily unavailable"
	payload, err := json.Marshal(&model.AggregatedResponse{
		Records:  []model.Record{},
		Metadata: meta,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", string(tiered.TierMiss))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	observability.IncResponse(string(q.Resource), model.StatusDegraded)
}

// Drain flushes detached cache writes; used by shutdown and tests.
func (s *Service) Drain() {
	s.cache.Drain()
}
