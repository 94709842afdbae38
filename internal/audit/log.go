// Package audit emits structured audit lines for mutations that are
// not covered by the per-doll event log, container management in
// particular. Entries carry the request id and acting identity when
// those are on the context.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"dolltrack/internal/auth"
	"dolltrack/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	logger := obs.Logger()
	e := logger.Info().
		Str("type", "audit").
		Str("event", event).
		Time("ts", time.Now().UTC())
	if rid := requestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		e = e.Str("actor", id.ID)
	}
	if len(fields) > 0 {
		e = e.Fields(fields)
	}
	e.Msg("audit")
	return nil
}
