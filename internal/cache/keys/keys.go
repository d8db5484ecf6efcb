// Package keys builds deterministic cache keys for logical queries.
package keys

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
)

const prefix = "energy"

// Key returns the primary cache key for a normalized query. Two
// logically identical queries always map to the same key; this is what
// coalescing and cache hits hang off.
func Key(q model.Query) string {
	canonical := fmt.Sprintf("%s|%s|%d|%d|%s",
		sanitize(string(q.Resource)),
		sanitize(string(q.Region)),
		q.Start.UTC().Unix(),
		q.End.UTC().Unix(),
		sanitize(string(q.Aggregation)),
	)
	sum := xxhash.Sum64String(canonical)
	return fmt.Sprintf("%s:%s:%s:%s-%s:%s:f=%016x",
		prefix,
		sanitize(string(q.Resource)),
		sanitize(string(q.Region)),
		q.Start.UTC().Format("20060102T1504"),
		q.End.UTC().Format("20060102T1504"),
		sanitize(string(q.Aggregation)),
		sum,
	)
}

// FallbackKey ignores the time range and aggregation mode. It is only
// written alongside successful fetches and only read on the error path.
func FallbackKey(resource model.Resource, region model.Region) string {
	return fmt.Sprintf("%s:fallback:%s:%s", prefix, sanitize(string(resource)), sanitize(string(region)))
}

// FallbackPattern matches every fallback key for a resource, for
// invalidation scans. Region may be empty to match all regions.
func FallbackPattern(resource model.Resource, region model.Region) string {
	if region == "" {
		return fmt.Sprintf("%s:fallback:%s:*", prefix, sanitize(string(resource)))
	}
	return FallbackKey(resource, region)
}

// Pattern matches every primary key for a resource (and optionally one
// region), for invalidation scans.
func Pattern(resource model.Resource, region model.Region) string {
	if region == "" {
		return fmt.Sprintf("%s:%s:*", prefix, sanitize(string(resource)))
	}
	return fmt.Sprintf("%s:%s:%s:*", prefix, sanitize(string(resource)), sanitize(string(region)))
}

// sanitize keeps keys ASCII and colon-free per segment.
func sanitize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}
