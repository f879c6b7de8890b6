package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
)

// Route labels for requests no guarded route covers.
const (
	RouteUpstream = "upstream"
	noUsageType   = "none"
)

// HTTPMetrics records request metrics labelled by the guarded route and
// usage type that served them. Paths outside the guarded routes and the
// service's own API collapse into RouteUpstream, so proxied traffic cannot
// grow the series count.
type HTTPMetrics struct {
	routes []domain.GuardedRoute
	own    []string
}

// NewHTTPMetrics creates HTTPMetrics for the guarded routes. ownPrefixes are
// the service's own endpoints, each labelled by its prefix.
func NewHTTPMetrics(routes []domain.GuardedRoute, ownPrefixes ...string) *HTTPMetrics {
	return &HTTPMetrics{routes: routes, own: ownPrefixes}
}

// labels returns the route and usage_type label values for a request.
func (m *HTTPMetrics) labels(method, path string) (route, usageType string) {
	for _, g := range m.routes {
		if g.Matches(method, path) {
			return g.Prefix, string(g.Type)
		}
	}
	for _, prefix := range m.own {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return prefix, noUsageType
		}
	}
	return RouteUpstream, noUsageType
}

// statusRecorder captures the status code the wrapped handler chain sent.
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

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streamed AI responses are not buffered.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Handler records HTTP request metrics.
func (m *HTTPMetrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip scrape and health endpoints
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route, usageType := m.labels(r.Method, r.URL.Path)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, usageType, strconv.Itoa(rw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, usageType).Observe(time.Since(start).Seconds())
	})
}
