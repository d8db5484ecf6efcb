package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
)

func get(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/emissions?"+rawQuery, nil)
}

func TestParseQuery_Defaults(t *testing.T) {
	q, perr := ParseQuery(get(t, ""), model.ResourceEmissions)
	if perr != nil {
		t.Fatalf("perr=%v", perr)
	}
	if q.Region != model.RegionAll {
		t.Fatalf("region=%s", q.Region)
	}
	if q.Aggregation != model.AggHourly {
		t.Fatalf("aggregation=%s", q.Aggregation)
	}
	if q.End.Sub(q.Start) != 24*time.Hour {
		t.Fatalf("default range=%v", q.End.Sub(q.Start))
	}
}

func TestParseQuery_DateSetsDayRange(t *testing.T) {
	q, perr := ParseQuery(get(t, "region=dk1&date=2026-03-01"), model.ResourceEmissions)
	if perr != nil {
		t.Fatalf("perr=%v", perr)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !q.Start.Equal(want) || !q.End.Equal(want.Add(24*time.Hour)) {
		t.Fatalf("range=[%v,%v)", q.Start, q.End)
	}
}

func TestParseQuery_StartEndTimestamps(t *testing.T) {
	q, perr := ParseQuery(get(t, "start=2026-03-01T06:00:00Z&end=2026-03-01T18:00:00Z"), model.ResourceEmissions)
	if perr != nil {
		t.Fatalf("perr=%v", perr)
	}
	if q.End.Sub(q.Start) != 12*time.Hour {
		t.Fatalf("range=%v", q.End.Sub(q.Start))
	}
}

func TestParseQuery_ViewCombinedOverridesRegion(t *testing.T) {
	q, perr := ParseQuery(get(t, "region=dk1&view=combined"), model.ResourceEmissions)
	if perr != nil {
		t.Fatalf("perr=%v", perr)
	}
	if q.Region != model.RegionAll {
		t.Fatalf("region=%s want dk", q.Region)
	}
}

func TestParseQuery_Invalids(t *testing.T) {
	cases := []struct {
		name, query, param string
		resource           model.Resource
	}{
		{"bad region", "region=INVALID", "region", model.ResourceEmissions},
		{"bad date", "date=yesterday", "date", model.ResourceEmissions},
		{"date plus range", "date=2026-03-01&start=2026-03-01", "date", model.ResourceEmissions},
		{"bad start", "start=not-a-time", "start", model.ResourceEmissions},
		{"end before start", "start=2026-03-02&end=2026-03-01", "end", model.ResourceEmissions},
		{"range too long", "start=2026-01-01&end=2026-03-15", "end", model.ResourceEmissions},
		{"bad aggregation", "aggregation=weekly", "aggregation", model.ResourceEmissions},
		{"5m on hourly dataset", "aggregation=5m", "aggregation", model.ResourceGridmix},
		{"bad view", "view=sideways", "view", model.ResourceEmissions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, perr := ParseQuery(get(t, tc.query), tc.resource)
			if perr == nil {
				t.Fatalf("expected error for %q", tc.query)
			}
			if perr.Param != tc.param {
				t.Fatalf("param=%q want %q (%s)", perr.Param, tc.param, perr.Message)
			}
		})
	}
}

type okHandler struct{ got *model.Query }

func (h *okHandler) HandleQuery(w http.ResponseWriter, _ *http.Request, q model.Query) {
	*h.got = q
	w.WriteHeader(http.StatusOK)
}

func TestHandle_ValidationErrorIs400WithErrorBody(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Handle(log, model.ResourceEmissions, &okHandler{got: &model.Query{}})

	rr := httptest.NewRecorder()
	h(rr, get(t, "region=INVALID"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		Error ParamError `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Param != "region" {
		t.Fatalf("error body must name the parameter, got %+v", body.Error)
	}
}

func TestHandle_ValidQueryReachesHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got model.Query
	h := Handle(log, model.ResourceForecast, &okHandler{got: &got})

	rr := httptest.NewRecorder()
	h(rr, get(t, "region=dk2&date=2026-03-01&aggregation=5m"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got.Resource != model.ResourceForecast || got.Region != model.RegionEast || got.Aggregation != model.AggRaw {
		t.Fatalf("query=%+v", got)
	}
}
