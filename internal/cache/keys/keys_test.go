package keys

import (
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
)

func q(res model.Resource, reg model.Region, start, end time.Time, agg model.Aggregation) model.Query {
	return model.Query{Resource: res, Region: reg, Start: start, End: end, Aggregation: agg}
}

func TestDeterminism_SameQuerySameKey(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	k1 := Key(q(model.ResourceEmissions, model.RegionWest, start, end, model.AggHourly))
	k2 := Key(q(model.ResourceEmissions, model.RegionWest, start, end, model.AggHourly))
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNormalization_TimezoneVariantsProduceSameKey(t *testing.T) {
	utc := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cph := time.FixedZone("CET", 3600)
	local := time.Date(2026, 3, 1, 1, 0, 0, 0, cph) // same instant

	k1 := Key(q(model.ResourceEmissions, model.RegionWest, utc, utc.Add(time.Hour), model.AggHourly))
	k2 := Key(q(model.ResourceEmissions, model.RegionWest, local, local.Add(time.Hour), model.AggHourly))
	if k1 != k2 {
		t.Fatalf("timezone-equivalent queries produced different keys:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestDifference_DistinctQueriesDistinctKeys(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	base := Key(q(model.ResourceEmissions, model.RegionWest, start, end, model.AggHourly))

	variants := []model.Query{
		q(model.ResourceForecast, model.RegionWest, start, end, model.AggHourly),
		q(model.ResourceEmissions, model.RegionEast, start, end, model.AggHourly),
		q(model.ResourceEmissions, model.RegionWest, start.Add(time.Hour), end, model.AggHourly),
		q(model.ResourceEmissions, model.RegionWest, start, end.Add(time.Hour), model.AggHourly),
		q(model.ResourceEmissions, model.RegionWest, start, end, model.AggRaw),
	}
	for i, v := range variants {
		if Key(v) == base {
			t.Fatalf("variant %d collided with base key %s", i, base)
		}
	}
}

func TestKeyShape_ASCIIAndHashSuffix(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	k := Key(q(model.ResourceGridmix, model.RegionAll, start, start.Add(time.Hour), model.AggHourly))

	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !strings.HasPrefix(k, "energy:gridmix:dk:") {
		t.Fatalf("unexpected key prefix: %s", k)
	}
	if !regexp.MustCompile(`:f=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("missing or invalid :f=<hex64> suffix in key: %s", k)
	}
}

func TestFallbackKey_IgnoresRangeAndAggregation(t *testing.T) {
	fk := FallbackKey(model.ResourceEmissions, model.RegionWest)
	if fk != "energy:fallback:emissions:dk1" {
		t.Fatalf("fallback key=%s", fk)
	}
	if Pattern(model.ResourceEmissions, "") != "energy:emissions:*" {
		t.Fatalf("pattern=%s", Pattern(model.ResourceEmissions, ""))
	}
	if Pattern(model.ResourceEmissions, model.RegionEast) != "energy:emissions:dk2:*" {
		t.Fatalf("pattern=%s", Pattern(model.ResourceEmissions, model.RegionEast))
	}
}
