package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/dayboard/internal/google"
	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// TokenBroker hands out usable access tokens for a credential pair.
type TokenBroker interface {
	ValidToken(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error)
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// TokenPersister stores a refreshed token for the account it belongs to.
type TokenPersister interface {
	PersistRefreshedToken(ctx context.Context, account ConnectedAccount, tok *oauth2.Token) error
}

// Result is the outcome of fetching one source. Exactly one of Events
// (possibly empty) or Err is meaningful.
type Result struct {
	Context CalendarContext
	Events  []Event
	Err     *FetchError

	// Refreshed is set when the access token was refreshed during the fetch.
	Refreshed bool
}

// FetcherConfig holds the dependencies of a Fetcher.
type FetcherConfig struct {
	Broker TokenBroker

	// Persister receives every refreshed token. Optional.
	Persister TokenPersister

	// Labeler resolves secondary-account emails. Optional.
	Labeler *Labeler

	// Limiter throttles Calendar API calls per account. Optional.
	Limiter *google.RateLimiter

	// HTTPClient is the base client for Calendar API calls (default: google.NewHTTPClient)
	HTTPClient *http.Client

	// Endpoint overrides the Calendar API base URL.
	Endpoint string

	// PageSize is the maxResults of each list call (default: provider default)
	PageSize int64

	Defaults Defaults
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger
}

// Fetcher lists the events of one calendar source at a time.
type Fetcher struct {
	broker     TokenBroker
	persister  TokenPersister
	labeler    *Labeler
	limiter    *google.RateLimiter
	httpClient *http.Client
	endpoint   string
	pageSize   int64
	defaults   Defaults
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = google.NewHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Fetcher{
		broker:     cfg.Broker,
		persister:  cfg.Persister,
		labeler:    cfg.Labeler,
		limiter:    cfg.Limiter,
		httpClient: cfg.HTTPClient,
		endpoint:   cfg.Endpoint,
		pageSize:   cfg.PageSize,
		defaults:   cfg.Defaults.withDefaults(),
		metrics:    cfg.Metrics,
		logger:     logging.WithOperation(cfg.Logger, "calendar.fetch"),
	}
}

// Fetch lists the events of cc within w. It never returns an error: failures
// are reported in Result.Err.
//
// An expired token is refreshed before the first call. Otherwise a 401 from
// the provider triggers one refresh and one retry. Either way at most one
// refresh happens per fetch.
func (f *Fetcher) Fetch(ctx context.Context, cc CalendarContext, w Window) Result {
	start := time.Now()
	ctx, span := instrumentation.StartSourceSpan(ctx, cc.Account.ID, cc.CalendarID, string(cc.Account.Role))
	defer span.End()

	res := f.fetch(ctx, cc, w)

	status := instrumentation.StatusSuccess
	if res.Err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, res.Err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	f.metrics.RecordCalendarFetch(ctx, string(cc.Account.Role), cc.CalendarID, status, time.Since(start))

	return res
}

func (f *Fetcher) fetch(ctx context.Context, cc CalendarContext, w Window) Result {
	res := Result{Context: cc}
	fail := func(err error) Result {
		res.Err = newFetchError(cc, err)
		return res
	}

	tok, refreshed, err := f.broker.ValidToken(ctx, cc.Account.Token)
	if err != nil {
		return fail(err)
	}
	if refreshed {
		res.Refreshed = true
		f.persist(ctx, cc.Account, tok)
	}

	items, err := f.list(ctx, cc, tok, w)
	if err != nil && google.IsUnauthorized(err) && !res.Refreshed {
		f.logger.Debug("access token rejected, refreshing",
			logging.Account(cc.Account.ID),
			logging.Calendar(cc.CalendarID))

		tok, err = f.broker.Refresh(ctx, tok)
		if err != nil {
			return fail(err)
		}
		res.Refreshed = true
		f.persist(ctx, cc.Account, tok)

		items, err = f.list(ctx, cc, tok, w)
	}
	if err != nil {
		return fail(err)
	}

	var email string
	if cc.Secondary() {
		email = f.labeler.Email(ctx, cc.Account, tok)
	}

	res.Events = make([]Event, 0, len(items))
	for _, item := range items {
		if cancelled(item) {
			continue
		}
		res.Events = append(res.Events, Normalize(item, cc, email, f.defaults))
	}
	return res
}

// list follows nextPageToken until the window is exhausted.
func (f *Fetcher) list(ctx context.Context, cc CalendarContext, tok *oauth2.Token, w Window) ([]*calendar.Event, error) {
	opts := []option.ClientOption{option.WithHTTPClient(google.AuthorizedClient(f.httpClient, tok))}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	var (
		items     []*calendar.Event
		pageToken string
	)
	for {
		if err := f.limiter.Wait(ctx, cc.Account.ID); err != nil {
			return nil, err
		}

		call := svc.Events.List(cc.CalendarID).
			TimeMin(w.Start.Format(time.RFC3339)).
			TimeMax(w.End.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		if f.pageSize > 0 {
			call = call.MaxResults(f.pageSize)
		}

		page, err := call.Do()
		if err != nil {
			if google.IsRateLimited(err) {
				f.limiter.Backoff(cc.Account.ID, google.RetryAfter(err))
			}
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

func (f *Fetcher) persist(ctx context.Context, account ConnectedAccount, tok *oauth2.Token) {
	if f.persister == nil {
		return
	}
	if err := f.persister.PersistRefreshedToken(ctx, account, tok); err != nil {
		f.logger.Warn("failed to persist refreshed token",
			logging.Account(account.ID),
			logging.Role(string(account.Role)),
			logging.Err(err))
	}
}
