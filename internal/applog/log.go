// Package applog implements diskuto's structured logging: a tab-separated
// slog.Handler, one line per record, with the request's correlation ID
// threaded through via context rather than fixed at handler construction.
package applog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying id, picked up by Handle when
// logging through a logger built with New.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the id stashed by WithCorrelationID, or "-" if none
// is set.
func CorrelationID(ctx context.Context) string {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok || id == "" {
		return "-"
	}
	return id
}

// NewCorrelationID generates a fresh correlation ID for a request that
// arrived without one.
func NewCorrelationID() string {
	return uuid.NewString()
}

// handler is a slog.Handler that formats records as:
//
//	<timestamp>\t<level>\t<correlation-id>\t<message>\t<key=value ...>
type handler struct {
	w     io.Writer
	attrs []slog.Attr
}

func (h *handler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), CorrelationID(ctx), r.Message); err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		w:     h.w,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *handler) WithGroup(string) slog.Handler { return h }

// New builds a logger that writes to both logDir/diskuto.log and stderr. It
// returns the logger and the open log file, which the caller must close.
func New(logDir string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "diskuto.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	return slog.New(&handler{w: w}), f, nil
}
