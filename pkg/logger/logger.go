// Package logger provides the colored slog handler used by the episodic
// binaries. Errors print red, warnings yellow, and graph store writes green
// so that they stand out in long ingestion runs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timeFormat = "2006-01-02 15:04:05.000"

var (
	errorColor = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	storeColor = color.New(color.FgGreen)
	keyColor   = color.New(color.Faint)
)

// storeMarkers flag messages about graph store writes.
var storeMarkers = []string{"persist", "compacted", "wrote", "written"}

// ColorHandler is a slog.Handler writing one colored line per record.
type ColorHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	attrs  string
	prefix string
}

// NewColorHandler creates a ColorHandler writing to w. A nil opts logs at
// Info and above.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	h := &ColorHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// NewDefaultLogger returns a logger writing colored lines to stderr.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a configuration string onto a slog level, defaulting to
// Info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Enabled implements slog.Handler
func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle implements slog.Handler
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	if !r.Time.IsZero() {
		sb.WriteString(r.Time.Format(timeFormat))
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "%-5s %s", r.Level.String(), r.Message)

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		fmt.Fprintf(&sb, " %s", keyColor.Sprintf("source=%s:%d", shortPath(f.File), f.Line))
	}

	sb.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.prefix, a)
		return true
	})

	line := paint(r.Level, r.Message, sb.String()) + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

// WithAttrs implements slog.Handler
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var sb strings.Builder
	sb.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&sb, h.prefix, a)
	}
	clone := *h
	clone.attrs = sb.String()
	return &clone
}

// WithGroup implements slog.Handler
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func paint(level slog.Level, msg, line string) string {
	switch {
	case level >= slog.LevelError:
		return errorColor.Sprint(line)
	case level >= slog.LevelWarn:
		return warnColor.Sprint(line)
	case isStoreMessage(msg):
		return storeColor.Sprint(line)
	}
	return line
}

func isStoreMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range storeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			writeAttr(sb, prefix, ga)
		}
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		s := fmt.Sprintf("%+v", v.Any())
		if strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	default:
		return v.String()
	}
}

func shortPath(file string) string {
	idx := strings.LastIndexByte(file, '/')
	if idx < 0 {
		return file
	}
	if prev := strings.LastIndexByte(file[:idx], '/'); prev >= 0 {
		return file[prev+1:]
	}
	return file
}
