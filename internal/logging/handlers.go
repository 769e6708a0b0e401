package logging

import (
	"context"
	"errors"
	"log/slog"
)

// AttrProvider supplies attrs describing the engine's current state,
// evaluated per record. The service installs one that reports the
// number of live sessions.
type AttrProvider func() []slog.Attr

// ContextHandler appends the provider's attrs to each record before
// handing it to the wrapped handler.
type ContextHandler struct {
	next     slog.Handler
	provider AttrProvider
}

// NewContextHandler wraps next with dynamic attr injection.
func NewContextHandler(next slog.Handler, provider AttrProvider) *ContextHandler {
	return &ContextHandler{next: next, provider: provider}
}

func (c *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if c.provider != nil {
		r.AddAttrs(c.provider()...)
	}
	return c.next.Handle(ctx, r)
}

func (c *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: c.next.WithAttrs(attrs), provider: c.provider}
}

func (c *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	return &ContextHandler{next: c.next.WithGroup(name), provider: c.provider}
}

// MultiHandler delivers each record to every wrapped handler that is
// enabled for its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler fans out to the given handlers, skipping nils.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	mh := &MultiHandler{}
	for _, h := range handlers {
		if h != nil {
			mh.handlers = append(mh.handlers, h)
		}
	}
	return mh
}

// Enabled reports whether any wrapped handler wants the level.
func (mh *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range mh.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to each enabled handler. One handler
// failing does not stop the others; the errors come back joined.
func (mh *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range mh.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mh *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(mh.handlers))
	for i, h := range mh.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (mh *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return mh
	}
	next := make([]slog.Handler, len(mh.handlers))
	for i, h := range mh.handlers {
		next[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}
