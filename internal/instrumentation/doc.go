// Package instrumentation provides OpenTelemetry metrics and tracing for dayboard.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Calendar aggregation:
//   - calendar_fetch_total: Counter of per-source fetches by role and status
//   - calendar_fetch_duration_seconds: Histogram of per-source fetch durations
//   - calendar_aggregations_total: Counter of aggregations by outcome (complete, partial, empty)
//   - calendar_aggregation_sources: Histogram of sources queried per aggregation
//   - calendar_aggregation_duration_seconds: Histogram of end-to-end aggregation durations
//
// OAuth and labeling:
//   - oauth_token_refresh_total: Counter of refresh attempts by result
//   - userinfo_lookups_total: Counter of secondary-account email lookups by result
//
// MCP:
//   - mcp_tool_invocations_total: Counter of tool invocations by tool and status
//
// # Tracing
//
// Aggregations open a "calendar.aggregate" span and every source fetch a
// child "calendar.fetch" span carrying account, calendar and role attributes.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: dayboard)
//   - METRICS_DETAILED_LABELS: Add calendar_id to fetch metrics (default: false)
//
// All Metrics recorders are safe to call on a nil receiver, so components can
// take a *Metrics without checking whether instrumentation is enabled.
package instrumentation
