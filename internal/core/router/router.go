// Package router validates request parameters and hands validated
// queries to the endpoint handler. Validation failures are the only
// inputs answered with a 400; everything past here degrades to 200s.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/core/observability"
	"github.com/gridwatch/energy-data-cache/internal/logger"
)

// QueryHandler receives validated queries and serves them.
type QueryHandler interface {
	HandleQuery(w http.ResponseWriter, r *http.Request, q model.Query)
}

// ParamError names the offending request parameter.
type ParamError struct {
	Param   string `json:"param"`
	Message string `json:"message"`
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Message)
}

// Handle wraps a QueryHandler for one resource with parsing, request
// logging and metrics.
func Handle(log *slog.Logger, resource model.Resource, h QueryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		ctx := logger.WithResource(r.Context(), string(resource))
		r = r.WithContext(ctx)

		q, err := ParseQuery(r, resource)
		if err != nil {
			writeParamError(sw, err)
			observability.ObserveHTTP(r.Method, string(resource), sw.code, time.Since(start).Seconds())
			return
		}

		h.HandleQuery(sw, r, q)
		observability.ObserveHTTP(r.Method, string(resource), sw.code, time.Since(start).Seconds())
		log.Debug("request served", "resource", string(resource), "status", sw.code,
			"dur", time.Since(start).String())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

const maxRangeDays = 31

// ParseQuery validates and normalizes the query parameters for a
// resource. All times are normalized to UTC so equivalent queries
// produce identical cache keys.
func ParseQuery(r *http.Request, resource model.Resource) (model.Query, *ParamError) {
	qs := r.URL.Query()

	region, perr := parseRegion(qs.Get("region"), qs.Get("view"))
	if perr != nil {
		return model.Query{}, perr
	}

	start, end, perr := parseRange(qs.Get("date"), qs.Get("start"), qs.Get("end"))
	if perr != nil {
		return model.Query{}, perr
	}

	agg, perr := parseAggregation(qs.Get("aggregation"), resource)
	if perr != nil {
		return model.Query{}, perr
	}

	return model.Query{
		Resource:    resource,
		Region:      region,
		Start:       start,
		End:         end,
		Aggregation: agg,
	}, nil
}

func parseRegion(raw, view string) (model.Region, *ParamError) {
	switch strings.ToLower(strings.TrimSpace(view)) {
	case "":
	case "combined":
		return model.RegionAll, nil
	case "regional":
		// fall through to the region parameter
	default:
		return "", &ParamError{Param: "view", Message: "must be one of: combined, regional"}
	}

	switch model.Region(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return model.RegionAll, nil
	case model.RegionWest:
		return model.RegionWest, nil
	case model.RegionEast:
		return model.RegionEast, nil
	case model.RegionAll:
		return model.RegionAll, nil
	default:
		return "", &ParamError{Param: "region", Message: "must be one of: dk1, dk2, dk"}
	}
}

const dayFmt = "2006-01-02"

func parseRange(date, start, end string) (time.Time, time.Time, *ParamError) {
	var zero time.Time

	if date != "" {
		if start != "" || end != "" {
			return zero, zero, &ParamError{Param: "date", Message: "date cannot be combined with start/end"}
		}
		d, err := time.ParseInLocation(dayFmt, strings.TrimSpace(date), time.UTC)
		if err != nil {
			return zero, zero, &ParamError{Param: "date", Message: "must be a YYYY-MM-DD date"}
		}
		return d, d.Add(24 * time.Hour), nil
	}

	if start == "" && end == "" {
		// default to the current UTC day
		d := time.Now().UTC().Truncate(24 * time.Hour)
		return d, d.Add(24 * time.Hour), nil
	}

	s, err := parseStamp(start)
	if err != nil {
		return zero, zero, &ParamError{Param: "start", Message: "must be a YYYY-MM-DD date or RFC3339 timestamp"}
	}
	var e time.Time
	if end == "" {
		e = s.Add(24 * time.Hour)
	} else {
		e, err = parseStamp(end)
		if err != nil {
			return zero, zero, &ParamError{Param: "end", Message: "must be a YYYY-MM-DD date or RFC3339 timestamp"}
		}
	}

	if !e.After(s) {
		return zero, zero, &ParamError{Param: "end", Message: "must be after start"}
	}
	if e.Sub(s) > maxRangeDays*24*time.Hour {
		return zero, zero, &ParamError{Param: "end", Message: fmt.Sprintf("range must not exceed %d days", maxRangeDays)}
	}
	return s, e, nil
}

func parseStamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	if t, err := time.ParseInLocation(dayFmt, v, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t.UTC(), nil
}

func parseAggregation(raw string, resource model.Resource) (model.Aggregation, *ParamError) {
	fiveMinute := resource == model.ResourceEmissions || resource == model.ResourceForecast

	switch model.Aggregation(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return model.AggHourly, nil
	case model.AggHourly:
		return model.AggHourly, nil
	case model.AggRaw:
		if !fiveMinute {
			return "", &ParamError{Param: "aggregation", Message: "5m is only available for emissions and forecast"}
		}
		return model.AggRaw, nil
	default:
		return "", &ParamError{Param: "aggregation", Message: "must be one of: 5m, hourly"}
	}
}

func writeParamError(w http.ResponseWriter, perr *ParamError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]*ParamError{"error": perr})
}
