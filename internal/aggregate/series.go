package aggregate

import (
	"strings"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/upstream"
)

// seriesAggregator handles single-metric time series: CO2 intensity,
// its forecast, and hourly consumption.
type seriesAggregator struct {
	dataset   string
	timeField string
	valField  string
	classify  bool // derive an intensity level from the averaged value
	hourly    bool // native granularity is already hourly
}

func (a *seriesAggregator) Dataset() string   { return a.dataset }
func (a *seriesAggregator) TimeField() string { return a.timeField }

type sample struct {
	t   time.Time
	val *float64
}

func (a *seriesAggregator) Normalize(raw []upstream.Record, q model.Query) *model.AggregatedResponse {
	bucket := func(t time.Time) time.Time {
		if q.Aggregation == model.AggHourly && !a.hourly {
			return t.Truncate(time.Hour)
		}
		return t
	}

	// group raw samples per sub-region
	perRegion := map[string][]sample{}
	for _, r := range raw {
		t, ok := parseTime(r[a.timeField])
		if !ok {
			continue
		}
		region := strings.ToLower(parseString(r["PriceArea"]))
		if region == "" {
			region = string(q.Region)
		}
		perRegion[region] = append(perRegion[region], sample{t: t, val: parseFloat(r[a.valField])})
	}

	// aggregate each sub-region on its own first
	perRegionAgg := map[string]map[time.Time]*float64{}
	for region, samples := range perRegion {
		buckets := map[time.Time][]*float64{}
		for _, s := range samples {
			b := bucket(s.t)
			buckets[b] = append(buckets[b], s.val)
		}
		agg := make(map[time.Time]*float64, len(buckets))
		for t, vals := range buckets {
			agg[t] = avg(vals)
		}
		perRegionAgg[region] = agg
	}

	var records []model.Record
	if q.Region == model.RegionAll {
		// merge the per-region aggregates by timestamp. Averaging the
		// aggregates (not the raw samples) keeps regions with different
		// sample counts weighted equally.
		merged := map[time.Time][]*float64{}
		for _, agg := range perRegionAgg {
			for t, v := range agg {
				merged[t] = append(merged[t], v)
			}
		}
		for t, vals := range merged {
			records = append(records, a.record(t, string(model.RegionAll), avg(vals)))
		}
	} else {
		for region, agg := range perRegionAgg {
			for t, v := range agg {
				records = append(records, a.record(t, region, v))
			}
		}
	}

	sortRecords(records)
	if records == nil {
		records = []model.Record{}
	}
	return &model.AggregatedResponse{
		Records:  records,
		Metadata: model.NewMetadata(q, len(records), model.StatusOK),
	}
}

func (a *seriesAggregator) record(t time.Time, region string, v *float64) model.Record {
	rec := model.Record{Timestamp: t, Region: region, Value: v}
	if a.classify {
		rec.Level = classifyIntensity(v)
	}
	return rec
}
