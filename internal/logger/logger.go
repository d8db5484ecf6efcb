// Package logger builds the zerolog-backed slog logger used everywhere.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	Component string
}

type ctxKey string

const (
	ctxReqIDKey    ctxKey = "request_id"
	ctxResourceKey ctxKey = "resource"
	ctxComponent   ctxKey = "component"
	ctxCacheTier   ctxKey = "cache_tier"
)

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

func WithResource(ctx context.Context, resource string) context.Context {
	if resource == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxResourceKey, resource)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func WithCacheTier(ctx context.Context, tier string) context.Context {
	if tier == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxCacheTier, tier)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out)

	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	switch lvl {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := base.With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	if s, ok := ctx.Value(ctxReqIDKey).(string); ok && s != "" {
		w = w.Str("request_id", s)
	}
	if s, ok := ctx.Value(ctxResourceKey).(string); ok && s != "" {
		w = w.Str("resource", s)
	}
	if s, ok := ctx.Value(ctxComponent).(string); ok && s != "" {
		w = w.Str("component", s)
	}
	if s, ok := ctx.Value(ctxCacheTier).(string); ok && s != "" {
		w = w.Str("cache_tier", s)
	}
	l := w.Logger()
	return &l
}
