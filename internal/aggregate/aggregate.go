// Package aggregate turns raw upstream records into the served response
// shape. Everything here is pure and deterministic: same records and
// query in, byte-identical response out.
package aggregate

import (
	"sort"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/upstream"
)

// Aggregator is the per-resource normalizer. Implementations are
// stateless; one instance serves all requests for its resource.
type Aggregator interface {
	// Dataset is the upstream dataset backing the resource.
	Dataset() string
	// TimeField is the canonical timestamp field, used for sorting upstream.
	TimeField() string
	// Normalize aggregates raw records into the response for q.
	Normalize(raw []upstream.Record, q model.Query) *model.AggregatedResponse
}

// For returns the aggregator for a resource.
func For(r model.Resource) (Aggregator, bool) {
	a, ok := registry[r]
	return a, ok
}

var registry = map[model.Resource]Aggregator{
	model.ResourceEmissions: &seriesAggregator{
		dataset:   "CO2Emis",
		timeField: "Minutes5UTC",
		valField:  "CO2Emission",
		classify:  true,
	},
	model.ResourceForecast: &seriesAggregator{
		dataset:   "CO2EmisProg",
		timeField: "Minutes5UTC",
		valField:  "CO2Emission",
		classify:  true,
	},
	model.ResourceConsumption: &seriesAggregator{
		dataset:   "ConsumptionPerHour",
		timeField: "HourUTC",
		valField:  "TotalLoad",
		hourly:    true,
	},
	model.ResourceGridmix: &mixAggregator{
		dataset:   "DeclarationGridmix",
		timeField: "HourUTC",
	},
	model.ResourceProduction: &mixAggregator{
		dataset:   "DeclarationProduction",
		timeField: "HourUTC",
	},
}

// CO2 intensity buckets in gCO2eq/kWh, applied to averaged values.
const (
	levelLowMax      = 100.0
	levelModerateMax = 200.0
)

const levelUnknown = "unknown"

func classifyIntensity(v *float64) string {
	switch {
	case v == nil:
		return levelUnknown
	case *v <= levelLowMax:
		return "low"
	case *v <= levelModerateMax:
		return "moderate"
	default:
		return "high"
	}
}

// avg averages the non-nil values; nil when no usable samples exist.
// Missing readings are excluded, never counted as zero.
func avg(vals []*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	out := sum / float64(n)
	return &out
}

// time layouts the upstream emits, most common first
var timeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseFloat returns nil for null, missing or non-numeric values.
func parseFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

func parseString(v any) string {
	s, _ := v.(string)
	return s
}

// sortRecords orders output ascending by timestamp, breaking ties by
// fuel then region so the output is fully deterministic.
func sortRecords(recs []model.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		if recs[i].Fuel != recs[j].Fuel {
			return recs[i].Fuel < recs[j].Fuel
		}
		return recs[i].Region < recs[j].Region
	})
}
