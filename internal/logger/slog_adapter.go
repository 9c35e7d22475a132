package logger

import (
	"context"
	"log"
	"log/slog"
	"strings"
)

// NewSlogHandler bridges slog into a Logger so libraries that want a
// *slog.Logger write to the same destination. Returns nil for a nil logger.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

// NewStdLogger returns a *log.Logger that forwards each line at the given
// level, for APIs such as http.Server.ErrorLog.
func NewStdLogger(l *Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(l), level)
}

type slogHandler struct {
	log    *Logger
	groups []string
	// preformatted holds attrs bound by WithAttrs, already qualified by the
	// groups that were open at the time.
	preformatted string
}

func toLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.log.enabled(toLevel(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)
	b.WriteString(h.preformatted)
	record.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a, h.groups)
		return true
	})

	h.log.log(toLevel(record.Level), "%s", strings.TrimSpace(b.String()))
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.preformatted)
	for _, a := range attrs {
		writeAttr(&b, a, h.groups)
	}
	return &slogHandler{log: h.log, groups: h.groups, preformatted: b.String()}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := &slogHandler{log: h.log, preformatted: h.preformatted}
	next.groups = append(append([]string(nil), h.groups...), name)
	return next
}

func writeAttr(b *strings.Builder, a slog.Attr, groups []string) {
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), a.Key)
		for _, child := range a.Value.Group() {
			writeAttr(b, child, nested)
		}
		return
	}

	key := a.Key
	if key == "" {
		key = "attr"
	}
	b.WriteByte(' ')
	if len(groups) > 0 {
		b.WriteString(strings.Join(groups, "."))
		b.WriteByte('.')
	}
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
