package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// NewUpstreamProxy returns the handler that guarded routes forward to.
// An empty upstream yields a handler that answers 502, so the gate can run
// without the AI application behind it.
func NewUpstreamProxy(upstream string, logger *slog.Logger) (http.Handler, error) {
	if upstream == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusBadGateway, "bad_gateway", "No upstream is configured")
		}), nil
	}

	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstream)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		FlushInterval: 100 * time.Millisecond,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				"error", err,
				"path", r.URL.Path,
				"method", r.Method,
			)
			writeJSONError(w, http.StatusBadGateway, "bad_gateway", "The upstream service is unavailable")
		},
	}
	return proxy, nil
}
