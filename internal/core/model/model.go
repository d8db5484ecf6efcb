// Package model defines core domain types shared across the service.
package model

import "time"

// Resource is one of the served energy-data endpoints.
type Resource string

const (
	ResourceEmissions   Resource = "emissions"
	ResourceForecast    Resource = "forecast"
	ResourceConsumption Resource = "consumption"
	ResourceGridmix     Resource = "gridmix"
	ResourceProduction  Resource = "production"
)

// Resources lists all served resources in route order.
func Resources() []Resource {
	return []Resource{
		ResourceEmissions,
		ResourceForecast,
		ResourceConsumption,
		ResourceGridmix,
		ResourceProduction,
	}
}

// Region is a price area. RegionAll is the combined dk1+dk2 view.
type Region string

const (
	RegionWest Region = "dk1"
	RegionEast Region = "dk2"
	RegionAll  Region = "dk"
)

// SubRegions returns the concrete price areas behind a region.
func (r Region) SubRegions() []Region {
	if r == RegionAll {
		return []Region{RegionWest, RegionEast}
	}
	return []Region{r}
}

// PriceArea is the upstream filter value for a concrete region.
func (r Region) PriceArea() string {
	switch r {
	case RegionWest:
		return "DK1"
	case RegionEast:
		return "DK2"
	default:
		return ""
	}
}

// Aggregation selects the output granularity.
type Aggregation string

const (
	AggRaw    Aggregation = "5m"
	AggHourly Aggregation = "hourly"
)

// Query is a validated, normalized request for one resource.
type Query struct {
	Resource    Resource
	Region      Region
	Start       time.Time // inclusive, UTC
	End         time.Time // exclusive, UTC
	Aggregation Aggregation
}

// Record is one output sample. Value is nil when no usable upstream
// samples existed for the bucket; Level is "unknown" in that case.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Region    string    `json:"region"`
	Fuel      string    `json:"fuel,omitempty"`
	Value     *float64  `json:"value"`
	Level     string    `json:"level,omitempty"`
}

// Response statuses surfaced in metadata.
const (
	StatusOK       = "ok"
	StatusStale    = "stale"
	StatusDegraded = "degraded"
)

// Metadata describes the query a response answers, so consumers can
// tell "no data for this range" apart from "upstream failed".
type Metadata struct {
	Resource    string `json:"resource"`
	Region      string `json:"region"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Aggregation string `json:"aggregation"`
	DataPoints  int    `json:"dataPoints"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// AggregatedResponse is the cached and served payload. It is never
// mutated after construction; stale/degraded variants are new values.
type AggregatedResponse struct {
	Records  []Record `json:"records"`
	Metadata Metadata `json:"metadata"`
}

// NewMetadata fills the query-describing part of a metadata block.
func NewMetadata(q Query, points int, status string) Metadata {
	return Metadata{
		Resource:    string(q.Resource),
		Region:      string(q.Region),
		Start:       q.Start.UTC().Format(time.RFC3339),
		End:         q.End.UTC().Format(time.RFC3339),
		Aggregation: string(q.Aggregation),
		DataPoints:  points,
		Status:      status,
	}
}
