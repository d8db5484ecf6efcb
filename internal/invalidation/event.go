// Package invalidation defines the cache-invalidation event contract.
// Events are published when upstream datasets are corrected or
// republished, so cached windows can be dropped before their TTL runs
// out.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
)

const (
	// OpRefresh drops primary cache entries so the next request
	// refetches; last-known-good fallback data is kept.
	OpRefresh = "refresh"
	// OpPurge drops primary entries and the fallback keys as well,
	// for data that must not be served even stale.
	OpPurge = "purge"
)

type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Resource string    `json:"resource"`
	Region   string    `json:"region,omitempty"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpRefresh, OpPurge:
	default:
		return fmt.Errorf("op must be refresh|purge")
	}
	if strings.TrimSpace(e.Resource) == "" {
		return fmt.Errorf("resource is required")
	}
	if !knownResource(e.Resource) {
		return fmt.Errorf("unknown resource %q", e.Resource)
	}
	if e.Region != "" && !knownRegion(e.Region) {
		return fmt.Errorf("unknown region %q", e.Region)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

func knownResource(s string) bool {
	for _, r := range model.Resources() {
		if string(r) == s {
			return true
		}
	}
	return false
}

func knownRegion(s string) bool {
	switch model.Region(s) {
	case model.RegionWest, model.RegionEast, model.RegionAll:
		return true
	}
	return false
}
