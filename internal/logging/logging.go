// Package logging builds the process-wide structured logger from the
// three transports recognised by spec §6 (log.type ∈ {stdout, file,
// syslog}). It is a thin wrapper: the transport choice is the only thing
// this package owns, everything else goes through log/slog.
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
)

// Config selects the log transport.
type Config struct {
	Type string // "stdout", "file", "syslog"
	File string // path, used when Type == "file"
}

// New builds a *slog.Logger for the given transport. Unknown types fall
// back to stdout with a warning line, matching the "never abort for an
// ambient concern" spirit of the error taxonomy (logging failures are
// never fatal to the watchdog).
func New(cfg Config) *slog.Logger {
	switch cfg.Type {
	case "", "stdout":
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fallback := slog.New(slog.NewTextHandler(os.Stderr, nil))
			fallback.Warn("falling back to stderr logger", "reason", err, "file", cfg.File)
			return fallback
		}
		return slog.New(slog.NewTextHandler(f, nil))
	case "syslog":
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "autopind")
		if err != nil {
			fallback := slog.New(slog.NewTextHandler(os.Stderr, nil))
			fallback.Warn("falling back to stderr logger", "reason", err)
			return fallback
		}
		return slog.New(slog.NewTextHandler(&syslogWriter{w}, nil))
	default:
		l := slog.New(slog.NewTextHandler(os.Stdout, nil))
		l.Warn("unknown log.type, defaulting to stdout", "type", cfg.Type)
		return l
	}
}

// With returns a child logger tagged with the owning component's name,
// mirroring the teacher's bracket-prefixed progress lines
// (e.g. "[ebpf] loaded %s") translated into a structured attr.
func With(l *slog.Logger, component string) *slog.Logger {
	return l.With("component", component)
}

// syslogWriter adapts a *syslog.Writer to io.Writer for slog's text handler.
type syslogWriter struct{ w *syslog.Writer }

func (s *syslogWriter) Write(p []byte) (int, error) {
	if err := s.w.Info(string(p)); err != nil {
		return 0, fmt.Errorf("syslog write: %w", err)
	}
	return len(p), nil
}
