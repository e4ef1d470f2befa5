package obs

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

type ctxKey string

const requestIDKey ctxKey = "obs_request_id"

// Logger returns the shared JSON line logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// WithRequestID attaches the request identifier so later log lines can
// correlate with the HTTP request that produced them.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom extracts the request id from context if present.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func emit(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	if len(fields) > 0 {
		entry["fields"] = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields map[string]any) { emit("info", msg, fields) }

// Warn logs a warning.
func Warn(msg string, fields map[string]any) { emit("warn", msg, fields) }

// Error logs an error condition.
func Error(msg string, fields map[string]any) { emit("error", msg, fields) }

// Event writes a structured domain event (login failures, status
// transitions, admin actions) enriched with the request id from context.
func Event(ctx context.Context, event string, fields map[string]any) {
	if event == "" {
		return
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "event",
		"event": event,
	}
	if rid := RequestIDFrom(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		entry["fields"] = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	Logger().Println(string(data))
}
