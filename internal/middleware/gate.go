package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/anonymous"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/handler"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/metrics"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
)

const (
	// UserIDHeader carries the authenticated user to the upstream. Inbound
	// values are always discarded.
	UserIDHeader = "X-User-Id"

	// QuotaRemainingHeader reports how many guarded actions the caller has
	// left after the current one.
	QuotaRemainingHeader = "X-Quota-Remaining"
)

// =============================================================================
// Quota Gate Configuration
// =============================================================================

// GateConfig configures the QuotaGate.
type GateConfig struct {
	Routes      []domain.GuardedRoute
	FailOpen    bool
	SigninPath  string
	UpgradePath string
}

// QuotaGate decides whether a request to a guarded route may proceed and
// records the usage once the downstream handler has succeeded. It is the
// only place usage is recorded.
type QuotaGate struct {
	quota   service.QuotaService
	tracker *anonymous.Tracker
	cfg     GateConfig
	logger  *slog.Logger
}

// NewQuotaGate creates a new QuotaGate.
func NewQuotaGate(quota service.QuotaService, tracker *anonymous.Tracker, cfg GateConfig, logger *slog.Logger) *QuotaGate {
	if cfg.SigninPath == "" {
		cfg.SigninPath = "/auth/signin"
	}
	if cfg.UpgradePath == "" {
		cfg.UpgradePath = "/pricing"
	}
	return &QuotaGate{
		quota:   quota,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}
}

// denial is the body returned when a request is refused.
type denial struct {
	Allowed  bool              `json:"allowed"`
	Reason   domain.DenyReason `json:"reason"`
	Redirect string            `json:"redirect,omitempty"`
}

// =============================================================================
// Handler
// =============================================================================

// Handler wraps next with the quota gate. Every request has its inbound
// X-User-Id replaced by the verified caller, so next may trust it; only
// guarded routes are checked and recorded.
//
// IMPORTANT: This middleware must be used AFTER AuthMiddleware.WithUser.
func (g *QuotaGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(UserIDHeader)
		id := auth.GetIdentity(r.Context())
		if id != nil {
			r.Header.Set(UserIDHeader, id.UserID)
		}

		route, ok := g.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if id != nil {
			g.serveAuthenticated(w, r, next, id, route.Type)
			return
		}
		g.serveAnonymous(w, r, next, route.Type)
	})
}

func (g *QuotaGate) match(r *http.Request) (domain.GuardedRoute, bool) {
	for _, route := range g.cfg.Routes {
		if route.Matches(r.Method, r.URL.Path) {
			return route, true
		}
	}
	return domain.GuardedRoute{}, false
}

func (g *QuotaGate) serveAuthenticated(w http.ResponseWriter, r *http.Request, next http.Handler, id *domain.Identity, usageType domain.UsageType) {
	const op = "gate.authenticated"

	// A counter left over from before sign-in no longer applies.
	if err := g.tracker.Reset(w, r); err != nil {
		g.logger.Warn("failed to reset anonymous counter", "user_id", id.UserID, "error", err)
	}

	decision, err := g.quota.Check(r.Context(), id.UserID, usageType)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			err = domain.Unavailable(err, op, "Usage limits are temporarily unavailable")
		}
		handler.ErrorResponse(w, r, g.logger, err)
		return
	}

	switch {
	case decision.FailOpen:
		metrics.FailOpen(string(usageType))
	case !decision.Allowed:
		metrics.QuotaDecision(string(usageType), string(decision.Tier), string(decision.Reason))
		handler.WriteJSON(w, http.StatusForbidden, denial{
			Allowed:  false,
			Reason:   decision.Reason,
			Redirect: g.cfg.UpgradePath,
		})
		return
	default:
		metrics.QuotaDecision(string(usageType), string(decision.Tier), metrics.OutcomeAllowed)
	}

	if decision.Remaining >= 0 {
		w.Header().Set(QuotaRemainingHeader, strconv.FormatInt(decision.Remaining, 10))
	}
	cw := newCommitWriter(w, nil)
	next.ServeHTTP(cw, r)
	cw.finish()
	if !cw.succeeded {
		return
	}

	// The response is already out; a cancelled client must not lose the record.
	ctx := context.WithoutCancel(r.Context())
	metadata := map[string]string{"path": r.URL.Path, "method": r.Method}
	if err := g.quota.Commit(ctx, id.UserID, usageType, metadata); err != nil {
		metrics.CommitFailed(string(usageType), "authenticated")
		g.logger.Error("failed to record usage",
			"user_id", id.UserID,
			"usage_type", usageType,
			"error", err,
		)
		return
	}
	metrics.UsageRecorded(string(usageType))
}

func (g *QuotaGate) serveAnonymous(w http.ResponseWriter, r *http.Request, next http.Handler, usageType domain.UsageType) {
	const op = "gate.anonymous"

	decision, counter, err := g.tracker.Check(r)
	if err != nil {
		if !g.cfg.FailOpen {
			handler.ErrorResponse(w, r, g.logger, domain.Unavailable(err, op, "Usage limits are temporarily unavailable"))
			return
		}
		g.logger.Warn("anonymous check failed, allowing request", "usage_type", usageType, "error", err)
		metrics.FailOpen(string(usageType))
		next.ServeHTTP(w, r)
		return
	}

	if !decision.Allowed {
		metrics.AnonymousDecision(string(usageType), string(decision.Reason))
		redirect := signinURL(g.cfg.SigninPath, r, true)
		if isAPIRequest(r) {
			handler.WriteJSON(w, http.StatusUnauthorized, denial{
				Allowed:  false,
				Reason:   decision.Reason,
				Redirect: redirect,
			})
			return
		}
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	metrics.AnonymousDecision(string(usageType), metrics.OutcomeAllowed)

	// The counter travels in a cookie, so it has to be committed before the
	// header goes out.
	cw := newCommitWriter(w, func() {
		stored, err := g.tracker.Commit(w, r, counter)
		if errors.Is(err, anonymous.ErrLimitReached) {
			metrics.CommitRefused(string(usageType))
			g.logger.Warn("anonymous limit reached by concurrent request",
				"usage_type", usageType,
				"count", stored.Count,
			)
			w.Header().Set(QuotaRemainingHeader, "0")
			return
		}
		if err != nil {
			metrics.CommitFailed(string(usageType), "anonymous")
			g.logger.Error("failed to record anonymous usage", "usage_type", usageType, "error", err)
			return
		}
		w.Header().Set(QuotaRemainingHeader, strconv.Itoa(stored.Remaining(g.tracker.Limit())))
	})
	next.ServeHTTP(cw, r)
	cw.finish()
}

// =============================================================================
// Commit Writer
// =============================================================================

// commitWriter watches the first final status written by the downstream
// handler. A status below 400 marks the request as succeeded and runs
// onSuccess just before the header is sent.
type commitWriter struct {
	http.ResponseWriter
	onSuccess   func()
	wroteHeader bool
	succeeded   bool
}

func newCommitWriter(w http.ResponseWriter, onSuccess func()) *commitWriter {
	return &commitWriter{ResponseWriter: w, onSuccess: onSuccess}
}

func (cw *commitWriter) WriteHeader(status int) {
	// 1xx responses may be followed by the real one.
	if cw.wroteHeader || status < http.StatusOK {
		cw.ResponseWriter.WriteHeader(status)
		return
	}
	cw.wroteHeader = true
	if status < http.StatusBadRequest {
		cw.succeeded = true
		if cw.onSuccess != nil {
			cw.onSuccess()
		}
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher for streamed upstream responses.
func (cw *commitWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *commitWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// finish accounts for handlers that return without writing, which net/http
// answers with an implicit 200.
func (cw *commitWriter) finish() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&QuotaGate{}).Handler
	_ http.Flusher                    = (*commitWriter)(nil)
)
