package invalidation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		Version:  1,
		Op:       OpRefresh,
		Resource: "emissions",
		Region:   "dk1",
		TS:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEventValidateAccepts(t *testing.T) {
	ev := validEvent()
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	ev.Region = "" // region is optional: empty means all regions
	ev.Op = OpPurge
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() without region = %v, want nil", err)
	}
}

func TestEventValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Event)
		frag   string
	}{
		{"bad version", func(e *Event) { e.Version = 2 }, "version"},
		{"bad op", func(e *Event) { e.Op = "delete" }, "op"},
		{"missing resource", func(e *Event) { e.Resource = "" }, "resource"},
		{"unknown resource", func(e *Event) { e.Resource = "weather" }, "unknown resource"},
		{"unknown region", func(e *Event) { e.Region = "se4" }, "unknown region"},
		{"zero ts", func(e *Event) { e.TS = time.Time{} }, "ts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validEvent()
			tc.mutate(&ev)
			err := ev.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Fatalf("error %q does not mention %q", err, tc.frag)
			}
		})
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	raw := `{"version":1,"op":"purge","resource":"gridmix","ts":"2025-06-01T12:00:00Z","source":"backfill-job"}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if ev.Op != OpPurge || ev.Resource != "gridmix" || ev.Region != "" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
