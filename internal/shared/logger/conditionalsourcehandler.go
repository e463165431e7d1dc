package logger

import (
	"context"
	"log/slog"
	"runtime"
)

type conditionalSourceHandler struct {
	handler      slog.Handler
	sourceLevels map[slog.Level]bool
}

// NewConditionalSourceHandler wraps handler so that records at the listed levels carry
// their call site. The wrapped handler must be built with AddSource: false.
//
//	handler := NewConditionalSourceHandler(
//	    tint.NewHandler(os.Stdout, opts),
//	    slog.LevelWarn,
//	    slog.LevelError,
//	)
func NewConditionalSourceHandler(handler slog.Handler, levels ...slog.Level) slog.Handler {
	sourceLevels := make(map[slog.Level]bool, len(levels))
	for _, level := range levels {
		sourceLevels[level] = true
	}
	return &conditionalSourceHandler{
		handler:      handler,
		sourceLevels: sourceLevels,
	}
}

func (h *conditionalSourceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sourceLevels[r.Level] {
		frame := callerFrame(r.PC)
		r.AddAttrs(slog.Any(slog.SourceKey, &slog.Source{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		}))
	}
	return h.handler.Handle(ctx, r)
}

// callerFrame resolves the record's PC, falling back to walking the stack
// for records built without one.
func callerFrame(pc uintptr) runtime.Frame {
	if pc == 0 {
		var pcs [1]uintptr
		runtime.Callers(4, pcs[:])
		pc = pcs[0]
	}
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return f
}

func (h *conditionalSourceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &conditionalSourceHandler{
		handler:      h.handler.WithAttrs(attrs),
		sourceLevels: h.sourceLevels,
	}
}

func (h *conditionalSourceHandler) WithGroup(name string) slog.Handler {
	return &conditionalSourceHandler{
		handler:      h.handler.WithGroup(name),
		sourceLevels: h.sourceLevels,
	}
}

func (h *conditionalSourceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}
