package httpapi

import (
	"log"
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// loggingLineWriter logs complete NDJSON lines to the standard logger.
type loggingLineWriter struct {
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := indexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(lw.buf[:idx])
		if len(line) > 0 {
			log.Printf("generate> %s", line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if os.Getenv("RKLLMD_LOG_TOKENS") == "1" {
		return LevelDebug
	}
	return parseLevel(os.Getenv("RKLLMD_LOG_LEVEL"))
}()

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logRequestEnd writes a single end-of-request line through zerolog when
// installed, otherwise through the standard logger.
func logRequestEnd(requestID, path string, status int, durMS int64, err error) {
	if zlog != nil {
		ev := zlog.Info().Str("path", path).Int("status", status).Int64("dur_ms", durMS)
		if requestID != "" {
			ev = ev.Str("request_id", requestID)
		}
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("generate end")
		return
	}
	if err != nil {
		log.Printf("generate end path=%s status=%d dur_ms=%d err=%v", path, status, durMS, err)
		return
	}
	log.Printf("generate end path=%s status=%d dur_ms=%d", path, status, durMS)
}
