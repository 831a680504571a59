package eventbus

import (
	"context"
	"log/slog"
)

// busHandler mirrors every record it handles onto the bus as a
// LogEntry event, then hands it to the wrapped handler. The IPC
// subscribe stream and the dashboard log panel tail these events.
type busHandler struct {
	inner slog.Handler
	bus   *Bus
	attrs []slog.Attr
	group string
}

// NewSlogHandler wraps inner so the daemon's log output is also
// visible to bus subscribers.
func NewSlogHandler(inner slog.Handler, bus *Bus) slog.Handler {
	return &busHandler{inner: inner, bus: bus}
}

func (h *busHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *busHandler) Handle(ctx context.Context, r slog.Record) error {
	h.bus.PublishType(LogEntry, h.entry(r))
	return h.inner.Handle(ctx, r)
}

// entry flattens the record and any bound attrs into the map shape
// the log panel renders. Keys under a group are prefixed with it.
func (h *busHandler) entry(r slog.Record) map[string]any {
	entry := make(map[string]any, r.NumAttrs()+len(h.attrs)+3)
	entry["level"] = r.Level.String()
	entry["msg"] = r.Message
	entry["time"] = r.Time

	prefix := ""
	if h.group != "" {
		prefix = h.group + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		entry[prefix+a.Key] = a.Value.Any()
		return true
	})
	for _, a := range h.attrs {
		entry[prefix+a.Key] = a.Value.Any()
	}
	return entry
}

func (h *busHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *busHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}
