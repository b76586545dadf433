package instrumentation

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

// counterTotal sums every data point of the named Int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_Recorders(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t, false)

	m.RecordHTTPRequest(ctx, "GET", "/calendar", 200, 120*time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/calendar", 401, time.Millisecond)
	m.RecordCalendarFetch(ctx, "primary", "work", StatusSuccess, 80*time.Millisecond)
	m.RecordCalendarFetch(ctx, "secondary", "primary", StatusError, 30*time.Millisecond)
	m.RecordCalendarFetch(ctx, "primary", "home", StatusSuccess, 40*time.Millisecond)
	m.RecordAggregation(ctx, OutcomePartial, 3, 200*time.Millisecond)
	m.RecordTokenRefresh(ctx, RefreshResultSuccess)
	m.RecordUserInfoLookup(ctx, LookupResultHit)
	m.RecordUserInfoLookup(ctx, LookupResultSuccess)
	m.RecordToolInvocation(ctx, "calendar_aggregate_events", StatusSuccess)

	tests := []struct {
		name string
		want int64
	}{
		{"http_requests_total", 2},
		{"calendar_fetch_total", 3},
		{"calendar_aggregations_total", 1},
		{"oauth_token_refresh_total", 1},
		{"userinfo_lookups_total", 2},
		{"mcp_tool_invocations_total", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterTotal(t, reader, tt.name); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetrics_DetailedLabels(t *testing.T) {
	ctx := context.Background()

	for _, detailed := range []bool{false, true} {
		m, reader := newTestMetrics(t, detailed)
		m.RecordCalendarFetch(ctx, "primary", "work", StatusSuccess, time.Millisecond)
		m.RecordCalendarFetch(ctx, "primary", "home", StatusSuccess, time.Millisecond)

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &rm); err != nil {
			t.Fatalf("Collect() error = %v", err)
		}

		points := 0
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name == "calendar_fetch_total" {
					points = len(metric.Data.(metricdata.Sum[int64]).DataPoints)
				}
			}
		}

		want := 1
		if detailed {
			want = 2
		}
		if points != want {
			t.Errorf("detailed=%v: got %d data points, want %d", detailed, points, want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	empty := &Metrics{}

	for _, m := range []*Metrics{nilMetrics, empty} {
		// None of these should panic.
		m.RecordHTTPRequest(ctx, "GET", "/calendar", 200, time.Millisecond)
		m.RecordCalendarFetch(ctx, "primary", "work", StatusSuccess, time.Millisecond)
		m.RecordAggregation(ctx, OutcomeComplete, 1, time.Millisecond)
		m.RecordTokenRefresh(ctx, RefreshResultDenied)
		m.RecordUserInfoLookup(ctx, LookupResultFailure)
		m.RecordToolInvocation(ctx, "calendar_aggregate_events", StatusError)
	}
}
