package logger

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger builds the root slog logger for the given environment.
// Local logs text to stdout at debug level; dev and prod log JSON to a
// file under logPath.
func SetupLogger(env, logPath string) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(logFile(logPath), &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(logFile(logPath), &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func logFile(dir string) *os.File {
	path := filepath.Join(dir, "omnihub.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("cannot open log file %s, falling back to stdout: %v", path, err)
		return os.Stdout
	}
	return f
}

// Alerter forwards a plain-text message to an operator channel.
type Alerter interface {
	SendMessage(msg string)
}

// SetupTelegramHandler wraps the logger so records at or above level are
// also forwarded to the alerter. The original handler keeps receiving
// every record.
func SetupTelegramHandler(lg *slog.Logger, alerter Alerter, level slog.Level) *slog.Logger {
	return slog.New(&telegramHandler{
		next:    lg.Handler(),
		alerter: alerter,
		level:   level,
	})
}

type telegramHandler struct {
	next    slog.Handler
	alerter Alerter
	level   slog.Level
	attrs   []slog.Attr
}

func (h *telegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *telegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError && record.Level >= h.level && h.alerter != nil {
		msg := record.Level.String() + ": " + record.Message
		record.Attrs(func(a slog.Attr) bool {
			msg += " | " + a.Key + "=" + a.Value.String()
			return true
		})
		for _, a := range h.attrs {
			msg += " | " + a.Key + "=" + a.Value.String()
		}
		h.alerter.SendMessage(msg)
	}
	return h.next.Handle(ctx, record)
}

func (h *telegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &telegramHandler{
		next:    h.next.WithAttrs(attrs),
		alerter: h.alerter,
		level:   h.level,
		attrs:   append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

func (h *telegramHandler) WithGroup(name string) slog.Handler {
	return &telegramHandler{
		next:    h.next.WithGroup(name),
		alerter: h.alerter,
		level:   h.level,
		attrs:   h.attrs,
	}
}
