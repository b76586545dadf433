package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrRole     = "role"
	attrResult   = "result"
	attrOutcome  = "outcome"
	attrTool     = "tool"
	attrCalendar = "calendar_id"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics (or a nil *Metrics) records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Calendar source fetches
	fetchTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram

	// Aggregations
	aggregationsTotal   metric.Int64Counter
	aggregationSources  metric.Int64Histogram
	aggregationDuration metric.Float64Histogram

	// OAuth
	tokenRefreshTotal metric.Int64Counter

	// Secondary account labeling
	userInfoLookupsTotal metric.Int64Counter

	// MCP tools
	toolInvocationsTotal metric.Int64Counter

	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.fetchTotal, err = meter.Int64Counter(
		"calendar_fetch_total",
		metric.WithDescription("Total number of per-source calendar fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_fetch_total counter: %w", err)
	}

	m.fetchDuration, err = meter.Float64Histogram(
		"calendar_fetch_duration_seconds",
		metric.WithDescription("Per-source calendar fetch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_fetch_duration_seconds histogram: %w", err)
	}

	m.aggregationsTotal, err = meter.Int64Counter(
		"calendar_aggregations_total",
		metric.WithDescription("Total number of multi-source aggregations by outcome"),
		metric.WithUnit("{aggregation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_aggregations_total counter: %w", err)
	}

	m.aggregationSources, err = meter.Int64Histogram(
		"calendar_aggregation_sources",
		metric.WithDescription("Number of sources queried per aggregation"),
		metric.WithUnit("{source}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_aggregation_sources histogram: %w", err)
	}

	m.aggregationDuration, err = meter.Float64Histogram(
		"calendar_aggregation_duration_seconds",
		metric.WithDescription("End-to-end aggregation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_aggregation_duration_seconds histogram: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.userInfoLookupsTotal, err = meter.Int64Counter(
		"userinfo_lookups_total",
		metric.WithDescription("Total number of account email lookups for labeling"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo_lookups_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCalendarFetch records one source fetch.
//
// Parameters:
//   - role: account role of the source ("primary" or "secondary")
//   - calendarID: only attached when detailed labels are enabled
//   - status: "success" or "error"
func (m *Metrics) RecordCalendarFetch(ctx context.Context, role, calendarID, status string, duration time.Duration) {
	if m == nil || m.fetchTotal == nil {
		return
	}

	kv := []attribute.KeyValue{
		attribute.String(attrRole, role),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && calendarID != "" {
		kv = append(kv, attribute.String(attrCalendar, calendarID))
	}
	attrs := metric.WithAttributes(kv...)

	m.fetchTotal.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAggregation records a completed aggregation.
// Outcome should be one of OutcomeComplete, OutcomePartial, OutcomeEmpty.
func (m *Metrics) RecordAggregation(ctx context.Context, outcome string, sources int, duration time.Duration) {
	if m == nil || m.aggregationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.aggregationsTotal.Add(ctx, 1, attrs)
	m.aggregationSources.Record(ctx, int64(sources))
	m.aggregationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTokenRefresh records an OAuth token refresh attempt with result.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordUserInfoLookup records an email lookup for a secondary account label.
func (m *Metrics) RecordUserInfoLookup(ctx context.Context, result string) {
	if m == nil || m.userInfoLookupsTotal == nil {
		return
	}
	m.userInfoLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	))
}
