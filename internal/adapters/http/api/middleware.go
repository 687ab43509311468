package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// route is one registered endpoint; name is its metrics label.
type route struct {
	pattern string
	name    string
	handler http.HandlerFunc
}

// Instrument records request count, latency and error class for name.
func Instrument(name string, next http.HandlerFunc) http.Handler {
	log := logger.Get().Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsedMs := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(name, r.Method, code)
		metrics.RecordHTTPRequestDuration(name, r.Method, code, elapsedMs)

		class := errorClass(rec.status)
		if class == "" {
			return
		}
		metrics.RecordErrorByEndpoint(name, r.Method, class)
		metrics.RecordErrorLatency("http", class, elapsedMs)
		if rec.status >= http.StatusInternalServerError {
			log.Error(r.Context(), "request failed",
				logger.String("endpoint", name),
				logger.String("path", r.URL.Path),
				logger.Int("status", rec.status),
			)
		}
	})
}

// errorClass buckets an error status for metrics; "" for success.
func errorClass(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "client_error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}
