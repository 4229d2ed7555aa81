// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging builds the service's slog logger: JSON or text output, service
// and version on every record, OpenTelemetry trace correlation, and masking of
// credential-bearing attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Options configures Setup.
type Options struct {
	Service string
	Version string
	// Format is "json" (default) or "text".
	Format string
	Level  slog.Level
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// sensitiveKeys are attribute keys whose values never reach the log.
var sensitiveKeys = map[string]struct{}{
	"password":       {},
	"new_password":   {},
	"token":          {},
	"reset_token":    {},
	"signing_secret": {},
	"authorization":  {},
}

// Masked replaces sensitive attribute values.
const Masked = "[masked]"

// correlatingHandler stamps records with service identity and the active span.
type correlatingHandler struct {
	next    slog.Handler
	service string
	version string
}

func (h *correlatingHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.next.Handle(ctx, r)
}

func (h *correlatingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlatingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlatingHandler{next: h.next.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *correlatingHandler) WithGroup(name string) slog.Handler {
	return &correlatingHandler{next: h.next.WithGroup(name), service: h.service, version: h.version}
}

// Setup creates a logger from opts.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: maskSensitive,
	}

	var base slog.Handler
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, hopts)
	} else {
		base = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(&correlatingHandler{next: base, service: opts.Service, version: opts.Version})
}

// SetDefault installs a logger built from opts as the slog default and returns it.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts)
	slog.SetDefault(logger)
	return logger
}

func maskSensitive(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Masked)
	}
	return a
}
