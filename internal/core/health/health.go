// Package health exposes liveness and readiness handlers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Pinger reports whether the shared cache tier is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness reports ready even when the shared tier is down: the
// service degrades to local-only operation instead of going unready.
func Readiness(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status      string `json:"status"`
			SharedCache string `json:"sharedCache"`
		}
		out := resp{Status: "ready", SharedCache: "ok"}
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				out.SharedCache = "unavailable"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
