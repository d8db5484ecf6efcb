package aggregate

import (
	"strings"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/upstream"
)

// mixAggregator handles fuel-share declarations (gridmix, production):
// hourly records carrying a production-group label and a share value.
type mixAggregator struct {
	dataset   string
	timeField string
}

func (a *mixAggregator) Dataset() string   { return a.dataset }
func (a *mixAggregator) TimeField() string { return a.timeField }

type fuelBucket struct {
	t    time.Time
	fuel string
}

func (a *mixAggregator) Normalize(raw []upstream.Record, q model.Query) *model.AggregatedResponse {
	// group shares per sub-region, keyed by (hour, fuel)
	perRegion := map[string]map[fuelBucket][]*float64{}
	for _, r := range raw {
		t, ok := parseTime(r[a.timeField])
		if !ok {
			continue
		}
		region := strings.ToLower(parseString(r["PriceArea"]))
		if region == "" {
			region = string(q.Region)
		}
		fuel := parseString(r["ProductionGroup"])
		b := fuelBucket{t: t.Truncate(time.Hour), fuel: fuel}

		if perRegion[region] == nil {
			perRegion[region] = map[fuelBucket][]*float64{}
		}
		perRegion[region][b] = append(perRegion[region][b], parseFloat(r["ShareTotal"]))
	}

	// per-region fuel shares first
	perRegionAgg := map[string]map[fuelBucket]*float64{}
	for region, buckets := range perRegion {
		agg := make(map[fuelBucket]*float64, len(buckets))
		for b, vals := range buckets {
			agg[b] = avg(vals)
		}
		perRegionAgg[region] = agg
	}

	var records []model.Record
	if q.Region == model.RegionAll {
		merged := map[fuelBucket][]*float64{}
		for _, agg := range perRegionAgg {
			for b, v := range agg {
				merged[b] = append(merged[b], v)
			}
		}
		for b, vals := range merged {
			records = append(records, model.Record{
				Timestamp: b.t, Region: string(model.RegionAll), Fuel: b.fuel, Value: avg(vals),
			})
		}
	} else {
		for region, agg := range perRegionAgg {
			for b, v := range agg {
				records = append(records, model.Record{
					Timestamp: b.t, Region: region, Fuel: b.fuel, Value: v,
				})
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
