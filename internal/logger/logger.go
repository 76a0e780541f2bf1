package logger

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It discards until Initialize is called.
var Log = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Initialize sets Log to a JSON logger at level writing to stdout and, when
// file is set, to a size-rotated log file.
func Initialize(level, file string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	var w io.Writer = os.Stdout
	if file != "" {
		rot := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		w = io.MultiWriter(os.Stdout, rot)
	}
	Log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})).
		With("component", "settlement")
	return nil
}

func UserAction(userID, action string, attrs ...any) {
	Log.Info("user_action", append([]any{"user_id", userID, "action", action}, attrs...)...)
}

func AdminAction(adminID, action string, attrs ...any) {
	Log.Info("admin_action", append([]any{"admin_id", adminID, "action", action}, attrs...)...)
}

func SecurityEvent(event string, attrs ...any) {
	Log.Warn("security_event", append([]any{"event", event}, attrs...)...)
}

// WithLogging logs one line per request. It expects chi's RequestID
// middleware to run first.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"req_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"uri", r.RequestURI,
			"status", status,
			"size", ww.BytesWritten(),
			"dur_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			Log.Error("http_request", attrs...)
			return
		}
		Log.Info("http_request", attrs...)
	})
}
