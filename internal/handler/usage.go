package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/anonymous"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/service"
)

// UsageHandler reports remaining quota to the caller. The response is
// informational; enforcement happens in the request gate.
type UsageHandler struct {
	quota   service.QuotaService
	tracker *anonymous.Tracker
	logger  *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(quota service.QuotaService, tracker *anonymous.Tracker, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		quota:   quota,
		tracker: tracker,
		logger:  logger,
	}
}

// RegisterRoutes registers usage routes. withUser must resolve the identity
// without requiring one.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, withUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", withUser(http.HandlerFunc(h.GetUsage)))
}

type usageItem struct {
	Type      domain.UsageType `json:"type"`
	Used      int64            `json:"used"`
	Limit     int64            `json:"limit"`
	Remaining int64            `json:"remaining"`
	Window    domain.Window    `json:"window"`
	ResetAt   *time.Time       `json:"reset_at,omitempty"`
}

type anonymousUsage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at"`
}

type usageResponse struct {
	Authenticated bool            `json:"authenticated"`
	Tier          string          `json:"tier,omitempty"`
	Usage         []usageItem     `json:"usage,omitempty"`
	Anonymous     *anonymousUsage `json:"anonymous,omitempty"`
}

// GetUsage handles GET /api/usage.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id := auth.GetIdentity(r.Context())
	if id == nil {
		h.anonymousUsage(w, r)
		return
	}

	tier, summaries, err := h.quota.GetUsage(r.Context(), id.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := usageResponse{
		Authenticated: true,
		Tier:          string(tier),
		Usage:         make([]usageItem, 0, len(summaries)),
	}
	for _, s := range summaries {
		resp.Usage = append(resp.Usage, usageItem{
			Type:      s.Type,
			Used:      s.Used,
			Limit:     s.Limit,
			Remaining: s.Remaining,
			Window:    s.Window,
			ResetAt:   s.ResetAt,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *UsageHandler) anonymousUsage(w http.ResponseWriter, r *http.Request) {
	counter, err := h.tracker.Peek(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, "usage.anonymous", "failed to read anonymous usage"))
		return
	}

	limit := h.tracker.Limit()
	WriteJSON(w, http.StatusOK, usageResponse{
		Anonymous: &anonymousUsage{
			Used:      counter.Count,
			Limit:     limit,
			Remaining: counter.Remaining(limit),
			ExpiresAt: counter.ExpiresAt,
		},
	})
}
