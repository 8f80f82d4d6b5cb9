// Package logging builds the slog logger shared by the ledger binaries.
//
// Every record carries the binary's service name. Loggers handed to a
// subsystem add a component via Component, and records logged with a request
// context pick up the request id stored by WithRequestID.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"swap-ledger/internal/config"
)

// Attribute keys shared by every record.
const (
	KeyService   = "service"
	KeyComponent = "component"
	KeyRequestID = "request_id"
)

// New returns the logger for serviceName and a func that releases its file sink.
func New(serviceName string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	encode, err := encoderFor(cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	out, err := openSink(serviceName, cfg)
	if err != nil {
		return nil, nil, err
	}

	h := encode(out.w, &slog.HandlerOptions{Level: level, ReplaceAttr: utcTime})
	logger := slog.New(requestHandler{h}).With(KeyService, serviceName)
	return logger, out.close, nil
}

// Component scopes logger to one subsystem of the binary.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(KeyComponent, name)
}

type requestIDKey struct{}

// WithRequestID returns a context whose log records carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID reports the request id stored in ctx.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// requestHandler adds the request id of the logging context to each record.
type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id, ok := RequestID(ctx); ok {
			r.AddAttrs(slog.String(KeyRequestID, id))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

// utcTime writes record timestamps in UTC, matching the ledger's stored times.
func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}
	return a
}

type encoder func(io.Writer, *slog.HandlerOptions) slog.Handler

func encoderFor(format string) (encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) }, nil
	case "json":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) }, nil
	}
	return nil, fmt.Errorf("invalid log format %q (expected text|json)", format)
}

type sink struct {
	w     io.Writer
	close func() error
}

func openSink(serviceName string, cfg config.LogConfig) (sink, error) {
	output := strings.ToLower(strings.TrimSpace(cfg.Output))
	console := sink{w: os.Stdout, close: func() error { return nil }}

	switch output {
	case "", "console":
		return console, nil
	case "file", "both":
	default:
		return sink{}, fmt.Errorf("invalid log output %q (expected console|file|both)", cfg.Output)
	}

	path := strings.TrimSpace(cfg.FilePath)
	if path == "" {
		path = filepath.Join("logs", serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sink{}, fmt.Errorf("create log directory for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return sink{}, fmt.Errorf("open log file %q: %w", path, err)
	}

	if output == "both" {
		return sink{w: io.MultiWriter(os.Stdout, f), close: f.Close}, nil
	}
	return sink{w: f, close: f.Close}, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	default:
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
		}
	}
	return level, nil
}
