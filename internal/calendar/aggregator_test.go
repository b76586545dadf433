package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
)

type stubStore struct {
	sources *Sources
	err     error
}

func (s *stubStore) LoadSources(context.Context, string) (*Sources, error) {
	return s.sources, s.err
}

func TestAggregator_PartialFailureScenario(t *testing.T) {
	g := newFakeGoogle(t)
	g.addAccount("user", "at-user", "rt-user", "")
	g.addAccount("sec", "at-sec", "rt-sec", "sam@example.com")
	g.addCalendar("user", "cal-a", []*calendar.Event{
		timed("a1", "Standup", "2026-03-02T09:00:00Z", "2026-03-02T09:15:00Z"),
		timed("a2", "Planning", "2026-03-04T13:00:00Z", "2026-03-04T14:00:00Z"),
		allDay("a3", "Offsite", "2026-03-06", "2026-03-07"),
	})
	// cal-b is unknown to the provider and answers 404.
	g.addCalendar("sec", DefaultCalendarID, []*calendar.Event{
		timed("a1", "Dentist", "2026-03-03T08:00:00Z", "2026-03-03T09:00:00Z"),
		timed("s2", "Gym", "2026-03-05T18:00:00Z", "2026-03-05T19:00:00Z"),
	})

	store := &stubStore{sources: &Sources{
		User: User{
			ID:                "user-1",
			Email:             "jane@example.com",
			CalendarConnected: true,
			Account:           ConnectedAccount{ID: "user-1", Token: &oauth2.Token{AccessToken: "at-user", RefreshToken: "rt-user"}},
		},
		Calendars: []UserCalendar{
			{AccountID: "user-1", CalendarID: "cal-a", Name: "Work", Color: "#123456", Enabled: true},
			{AccountID: "user-1", CalendarID: "cal-b", Name: "Team", Enabled: true},
		},
		Accounts: []ConnectedAccount{
			{ID: "acc-2", ProviderAccountID: "g-2", Token: &oauth2.Token{AccessToken: "at-sec", RefreshToken: "rt-sec"}},
		},
	}}

	agg := NewAggregator(store, g.fetcher(nil), Options{})
	result, err := agg.Aggregate(context.Background(), "user-1", testWindow)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Sources)
	assert.True(t, result.Partial())
	require.Len(t, result.Events, 5)
	assert.Equal(t, []string{"a1", "acc-2-a1", "a2", "acc-2-s2", "a3"}, eventIDs(result.Events))
	assertSorted(t, result.Events)

	for _, ev := range result.Events {
		if ev.CalendarID == DefaultCalendarID {
			assert.Equal(t, "sam@example.com (view-only)", ev.CalendarName)
		} else {
			assert.Equal(t, "Work", ev.CalendarName)
			assert.Equal(t, "#123456", ev.Color)
		}
	}

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "cal-b", result.Failures[0].CalendarID)
	assert.Equal(t, KindNotFound, result.Failures[0].Kind)
}

func TestAggregator_ExpiredAndRevokedRefresh(t *testing.T) {
	g := newFakeGoogle(t)
	g.addAccount("user", "at-user", "rt-user", "")
	g.addAccount("sec", "", "", "sam@example.com")
	g.addCalendar("user", DefaultCalendarID, []*calendar.Event{
		timed("p1", "Standup", "2026-03-02T09:00:00Z", "2026-03-02T09:15:00Z"),
	})
	g.addCalendar("sec", DefaultCalendarID, []*calendar.Event{
		timed("s1", "Gym", "2026-03-05T18:00:00Z", "2026-03-05T19:00:00Z"),
	})

	store := &stubStore{sources: &Sources{
		User: User{
			ID:      "user-1",
			Account: ConnectedAccount{Token: &oauth2.Token{AccessToken: "at-user"}},
		},
		Accounts: []ConnectedAccount{{
			ID:                "acc-2",
			ProviderAccountID: "g-2",
			Token:             &oauth2.Token{AccessToken: "at-sec-old", RefreshToken: "rt-revoked", Expiry: time.Now().Add(-time.Hour)},
		}},
	}}

	result, err := NewAggregator(store, g.fetcher(nil), Options{}).Aggregate(context.Background(), "user-1", testWindow)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, eventIDs(result.Events))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, KindRefreshDenied, result.Failures[0].Kind)
	assert.Equal(t, "acc-2", result.Failures[0].AccountID)
	assert.Equal(t, RoleSecondary, result.Failures[0].Role)
}

func TestAggregator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		store   *stubStore
		wantErr error
	}{
		{
			name:    "user record missing",
			store:   &stubStore{err: fmt.Errorf("load user-1: %w", ErrUserRecordMissing)},
			wantErr: ErrUserRecordMissing,
		},
		{
			name:    "datastore unavailable",
			store:   &stubStore{err: fmt.Errorf("query: %w", ErrDatastoreUnavailable)},
			wantErr: ErrDatastoreUnavailable,
		},
		{
			name: "connected but no token",
			store: &stubStore{sources: &Sources{User: User{
				ID:                "user-1",
				CalendarConnected: true,
			}}},
			wantErr: ErrNoUsableToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &stubFetcher{}
			_, err := NewAggregator(tt.store, fetcher, Options{}).Aggregate(context.Background(), "user-1", testWindow)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, fetcher.calls.Load())
		})
	}
}

// stubFetcher returns canned results per calendar id.
type stubFetcher struct {
	results map[string]Result
	delay   time.Duration
	calls   atomic.Int32

	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *stubFetcher) Fetch(ctx context.Context, cc CalendarContext, _ Window) Result {
	s.calls.Add(1)

	s.mu.Lock()
	s.active++
	s.maxSeen = max(s.maxSeen, s.active)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{Context: cc, Err: newFetchError(cc, ctx.Err())}
		}
	}

	res, ok := s.results[cc.CalendarID]
	if !ok {
		return Result{Context: cc, Events: []Event{}}
	}
	res.Context = cc
	return res
}

func manyCalendarSources(n int) *Sources {
	src := &Sources{User: User{
		ID:      "user-1",
		Account: ConnectedAccount{Token: &oauth2.Token{AccessToken: "at"}},
	}}
	for i := range n {
		src.Calendars = append(src.Calendars, UserCalendar{CalendarID: fmt.Sprintf("cal-%d", i), Enabled: true})
	}
	return src
}

func TestAggregator_ConcurrencyLimit(t *testing.T) {
	fetcher := &stubFetcher{delay: 20 * time.Millisecond}
	agg := NewAggregator(&stubStore{sources: manyCalendarSources(6)}, fetcher, Options{MaxConcurrency: 2})

	result, err := agg.Aggregate(context.Background(), "user-1", testWindow)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Sources)
	assert.EqualValues(t, 6, fetcher.calls.Load())
	assert.LessOrEqual(t, fetcher.maxSeen, 2)
}

func TestAggregator_FetchTimeout(t *testing.T) {
	fetcher := &stubFetcher{delay: time.Minute}
	agg := NewAggregator(&stubStore{sources: manyCalendarSources(2)}, fetcher, Options{FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	result, err := agg.Aggregate(context.Background(), "user-1", testWindow)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, result.Failures, 2)
	for _, fe := range result.Failures {
		assert.Equal(t, KindTimeout, fe.Kind)
	}
	assert.Empty(t, result.Events)
	assert.False(t, result.Partial())
}

func TestAggregator_DefaultWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator(&stubStore{}, &stubFetcher{}, Options{WindowDays: 7}, WithClock(func() time.Time { return now }))

	w := agg.DefaultWindow()
	assert.Equal(t, now.AddDate(0, 0, -7), w.Start)
	assert.Equal(t, now.AddDate(0, 0, 7), w.End)
	require.NoError(t, w.Validate())
}

func TestMerge_SortOrder(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 3, 2, h, 0, 0, 0, time.UTC) }

	results := []Result{
		{Events: []Event{
			{ID: "b", Start: at(10), Source: SourceGoogle},
			{ID: "z", Start: at(8), Source: SourceGoogle},
		}},
		{Err: &FetchError{CalendarID: "broken", Err: errors.New("boom")}},
		{Events: []Event{
			{ID: "a", Start: at(10), Source: SourceGoogle},
			{ID: "c", Start: at(10), Source: SourceLocal},
		}},
	}

	agg := merge(results)
	assert.Equal(t, []string{"z", "a", "b", "c"}, eventIDs(agg.Events))
	assert.Len(t, agg.Failures, 1)
	assert.Equal(t, 3, agg.Sources)
	assert.True(t, agg.Partial())
}

func TestMerge_Empty(t *testing.T) {
	agg := merge(nil)
	assert.NotNil(t, agg.Events)
	assert.Empty(t, agg.Events)
	assert.False(t, agg.Partial())
}

func TestWindow_Validate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Window{Start: now, End: now}.Validate())
	assert.Error(t, Window{Start: now, End: now.Add(-time.Second)}.Validate())
	assert.Error(t, Window{}.Validate())
}

func assertSorted(t *testing.T, events []Event) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Start.Before(events[i-1].Start),
			"event %d (%s) starts before event %d (%s)", i, events[i].ID, i-1, events[i-1].ID)
	}
}

func TestParseWindow(t *testing.T) {
	def := NewWindow(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 30)

	tests := []struct {
		name     string
		min, max string
		want     Window
		wantErr  bool
	}{
		{name: "neither uses default", want: def},
		{
			name: "both",
			min:  "2026-03-01T00:00:00Z",
			max:  "2026-03-02T00:00:00+01:00",
			want: Window{
				Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
			},
		},
		{name: "only max", max: "2026-03-02T00:00:00Z", wantErr: true},
		{name: "date only", min: "2026-03-01", max: "2026-03-02", wantErr: true},
		{name: "end before start", min: "2026-03-02T00:00:00Z", max: "2026-03-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.min, tt.max, def)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidWindow)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Start.Equal(got.Start))
			assert.True(t, tt.want.End.Equal(got.End))
		})
	}
}
