package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"agricam/internal/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs every request with its status and duration. Polling
// endpoints (/health and the focus state) are logged at debug level.
func RequestLogger(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start).Round(time.Microsecond)
		switch {
		case rec.status >= http.StatusInternalServerError:
			log.Error("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
		case rec.status >= http.StatusBadRequest:
			log.Warning("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
		case isPolling(r.URL.Path):
			log.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
		default:
			log.Info("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
		}
	})
}

func isPolling(path string) bool {
	return path == "/health" || strings.HasSuffix(path, "/status") || path == "/camera/af/state"
}
