// Package domain contains core business types and interfaces.
//
// This file defines usage records and the time windows they are summed over.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UsageType identifies a billable action.
type UsageType string

const (
	UsageTypeChatMessage        UsageType = "chat_message"
	UsageTypeDocumentGeneration UsageType = "document_generation"
	UsageTypeDocumentAnalysis   UsageType = "document_analysis"
	UsageTypeAIFeature          UsageType = "ai_feature"
)

// UsageTypes lists every known usage type in display order.
var UsageTypes = []UsageType{
	UsageTypeChatMessage,
	UsageTypeDocumentGeneration,
	UsageTypeDocumentAnalysis,
	UsageTypeAIFeature,
}

// Valid reports whether u is a known usage type.
func (u UsageType) Valid() bool {
	for _, t := range UsageTypes {
		if u == t {
			return true
		}
	}
	return false
}

// ParseUsageType converts a string to a UsageType.
func ParseUsageType(s string) (UsageType, error) {
	u := UsageType(s)
	if !u.Valid() {
		return "", Invalid("usage.parse_type", fmt.Sprintf("unknown usage type %q", s))
	}
	return u, nil
}

// UsageRecord is an immutable ledger entry. Records are appended once per
// billable action and never updated.
type UsageRecord struct {
	ID        uuid.UUID
	UserID    string
	Type      UsageType
	Count     int
	Metadata  map[string]string
	CreatedAt time.Time
}

// RecordUsageParams contains the input for appending a usage record.
type RecordUsageParams struct {
	UserID   string
	Type     UsageType
	Count    int
	Metadata map[string]string
}

// Window is the granularity a usage count is aggregated over.
type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow converts a string to a Window.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowDay, WindowWeek, WindowMonth:
		return w, nil
	}
	return "", Invalid("usage.parse_window", fmt.Sprintf("unknown window %q (want day, week or month)", s))
}

// Bounds returns the UTC calendar window containing now. Weeks start on
// Monday. The end is exclusive of the next window's start.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case WindowWeek:
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = day.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	case WindowMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// QuotaLimit is the configured FREE-tier allowance for a usage type.
// A negative Limit means unlimited; zero means premium-only.
type QuotaLimit struct {
	Limit  int
	Window Window
}

// QuotaLimits maps usage types to their FREE-tier limits.
type QuotaLimits map[UsageType]QuotaLimit

// DefaultQuotaLimits are the observed production defaults.
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		UsageTypeChatMessage:        {Limit: 5, Window: WindowDay},
		UsageTypeDocumentGeneration: {Limit: 0, Window: WindowMonth},
		UsageTypeDocumentAnalysis:   {Limit: 0, Window: WindowMonth},
		UsageTypeAIFeature:          {Limit: 5, Window: WindowDay},
	}
}

// For returns the limit for a usage type. Types without configuration are
// premium-only on a daily window.
func (l QuotaLimits) For(t UsageType) QuotaLimit {
	if q, ok := l[t]; ok {
		return q
	}
	return QuotaLimit{Limit: 0, Window: WindowDay}
}

// UsageSummary describes one usage type's consumption for a caller.
type UsageSummary struct {
	Type      UsageType
	Used      int64
	Limit     int64 // -1 when unlimited
	Remaining int64 // -1 when unlimited
	Window    Window
	ResetAt   *time.Time
}

// ParseQuotaLimits parses "type=limit/window" pairs separated by commas,
// e.g. "chat_message=5/day,document_analysis=0/month". A limit of -1 means
// unlimited.
func ParseQuotaLimits(s string) (QuotaLimits, error) {
	const op = "usage.parse_limits"

	limits := QuotaLimits{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, Invalid(op, fmt.Sprintf("limit %q must look like type=limit/window", entry))
		}
		usageType, err := ParseUsageType(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		count, window, ok := strings.Cut(strings.TrimSpace(value), "/")
		if !ok {
			window = string(WindowDay)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || limit < -1 {
			return nil, Invalid(op, fmt.Sprintf("limit for %s must be an integer >= -1", usageType))
		}
		w, err := ParseWindow(strings.TrimSpace(window))
		if err != nil {
			return nil, err
		}
		limits[usageType] = QuotaLimit{Limit: limit, Window: w}
	}
	return limits, nil
}
