package calendar

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// SourceStore loads what the persistence layer knows about a user.
// It returns ErrUserRecordMissing or ErrDatastoreUnavailable (wrapped) on
// failure.
type SourceStore interface {
	LoadSources(ctx context.Context, userID string) (*Sources, error)
}

// SourceFetcher fetches a single source. *Fetcher implements it.
type SourceFetcher interface {
	Fetch(ctx context.Context, cc CalendarContext, w Window) Result
}

// Aggregation is the merged outcome of fetching every source of a user.
type Aggregation struct {
	// Events is sorted by start time, then source, then id.
	Events []Event

	// Failures holds one entry per source that could not be fetched.
	Failures []*FetchError

	// Sources is the number of sources queried.
	Sources int
}

// Partial reports whether some, but not all, sources failed.
func (a *Aggregation) Partial() bool {
	return len(a.Failures) > 0 && len(a.Failures) < a.Sources
}

// Aggregator fans out over a user's sources and merges the results.
type Aggregator struct {
	store   SourceStore
	fetcher SourceFetcher
	opts    Options
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithMetrics records aggregation metrics.
func WithMetrics(m *instrumentation.Metrics) AggregatorOption {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// WithClock sets the clock used for the default window.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an Aggregator.
func NewAggregator(store SourceStore, fetcher SourceFetcher, opts Options, options ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:   store,
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	a.logger = logging.WithOperation(a.logger, "calendar.aggregate")
	return a
}

// DefaultWindow returns the window of Options.WindowDays around now.
func (a *Aggregator) DefaultWindow() Window {
	return NewWindow(a.now(), a.opts.WindowDays)
}

// Aggregate fetches every source of userID within w and merges the events.
//
// All sources are awaited, whatever their outcome; a failing source only adds
// to Failures. Errors are returned only when the user's sources cannot be
// loaded, or as ErrNoUsableToken when there is nothing to query.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, w Window) (*Aggregation, error) {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "calendar.aggregate",
		attribute.String(instrumentation.SpanAttrUserID, userID))
	defer span.End()

	logger := logging.WithUser(a.logger, userID)

	src, err := a.store.LoadSources(ctx, userID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	resolution, err := Resolve(src, a.opts.Defaults)
	if err != nil {
		a.metrics.RecordAggregation(ctx, instrumentation.OutcomeEmpty, 0, time.Since(start))
		logger.Info("no usable calendar token",
			slog.Bool("calendar_connected", src != nil && src.User.CalendarConnected))
		return nil, err
	}

	contexts := resolution.Contexts()
	results := make([]Result, len(contexts))

	// Fetch reports failures in its Result; the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(a.opts.MaxConcurrency)
	for i, cc := range contexts {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
			defer cancel()
			results[i] = a.fetcher.Fetch(fctx, cc, w)
			return nil
		})
	}
	_ = g.Wait()

	agg := merge(results)

	for _, fe := range agg.Failures {
		logger.Warn("calendar source failed",
			logging.Calendar(fe.CalendarID),
			logging.Account(fe.AccountID),
			logging.Role(string(fe.Role)),
			slog.String("kind", string(fe.Kind)),
			logging.Err(fe.Err))
	}

	outcome := instrumentation.OutcomeComplete
	switch {
	case len(agg.Failures) == agg.Sources:
		outcome = instrumentation.OutcomeEmpty
	case len(agg.Failures) > 0:
		outcome = instrumentation.OutcomePartial
	}
	a.metrics.RecordAggregation(ctx, outcome, agg.Sources, time.Since(start))

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrSources, agg.Sources),
		attribute.Int(instrumentation.SpanAttrFailures, len(agg.Failures)),
		attribute.Int(instrumentation.SpanAttrEvents, len(agg.Events)),
	)
	instrumentation.SetSpanSuccess(span)

	logger.Debug("aggregation complete",
		slog.Int("sources", agg.Sources),
		slog.Int("failures", len(agg.Failures)),
		slog.Int("events", len(agg.Events)),
		slog.Duration(logging.KeyDuration, time.Since(start)))

	return agg, nil
}

// merge concatenates per-source results and sorts the events.
func merge(results []Result) *Aggregation {
	agg := &Aggregation{Events: []Event{}, Sources: len(results)}
	for _, r := range results {
		if r.Err != nil {
			agg.Failures = append(agg.Failures, r.Err)
			continue
		}
		agg.Events = append(agg.Events, r.Events...)
	}

	slices.SortStableFunc(agg.Events, func(a, b Event) int {
		return cmp.Or(
			a.Start.Compare(b.Start),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return agg
}
