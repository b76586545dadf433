package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/dayboard/internal/google"
)

// fakeGoogle serves the token endpoint, the Calendar events list and the
// userinfo API for a handful of accounts.
type fakeGoogle struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	accessTokens  map[string]string // access token -> owner
	refreshTokens map[string]string // refresh token -> owner
	emails        map[string]string // owner -> email
	calendars     map[string]fakeCalendar
	minted        int
	rotate        bool // mint a new refresh token on every refresh
	tokenCalls    int
	listCalls     map[string]int // owner/calendar -> calls
}

type fakeCalendar struct {
	status     int
	retryAfter string
	pages      [][]*calendar.Event
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()

	f := &fakeGoogle{
		t:             t,
		accessTokens:  map[string]string{},
		refreshTokens: map[string]string{},
		emails:        map[string]string{},
		calendars:     map[string]fakeCalendar{},
		listCalls:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /calendar/v3/calendars/{calendarID}/events", f.handleList)
	mux.HandleFunc("GET /oauth2/v2/userinfo", f.handleUserInfo)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) addAccount(owner, accessToken, refreshToken, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if accessToken != "" {
		f.accessTokens[accessToken] = owner
	}
	if refreshToken != "" {
		f.refreshTokens[refreshToken] = owner
	}
	if email != "" {
		f.emails[owner] = email
	}
}

func (f *fakeGoogle) addCalendar(owner, calendarID string, pages ...[]*calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars[owner+"/"+calendarID] = fakeCalendar{status: http.StatusOK, pages: pages}
}

func (f *fakeGoogle) failCalendar(owner, calendarID string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars[owner+"/"+calendarID] = fakeCalendar{status: status}
}

// throttleCalendar answers 429 with the given Retry-After header.
func (f *fakeGoogle) throttleCalendar(owner, calendarID, retryAfter string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars[owner+"/"+calendarID] = fakeCalendar{status: http.StatusTooManyRequests, retryAfter: retryAfter}
}

// revoke invalidates an access token, as if it had expired server-side.
func (f *fakeGoogle) revoke(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accessTokens, accessToken)
}

func (f *fakeGoogle) tokenCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *fakeGoogle) listCallCount(owner, calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[owner+"/"+calendarID]
}

func (f *fakeGoogle) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenCalls++
	presented := r.PostForm.Get("refresh_token")
	owner, ok := f.refreshTokens[presented]
	var access, refresh string
	if ok {
		f.minted++
		access = fmt.Sprintf("at-%s-%d", owner, f.minted)
		f.accessTokens[access] = owner
		if f.rotate {
			refresh = fmt.Sprintf("rt-%s-%d", owner, f.minted)
			delete(f.refreshTokens, presented)
			f.refreshTokens[refresh] = owner
		}
	}
	f.mu.Unlock()

	if r.PostForm.Get("grant_type") != "refresh_token" || !ok {
		writeFakeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		})
		return
	}

	resp := map[string]any{
		"access_token": access,
		"expires_in":   3599,
		"token_type":   "Bearer",
	}
	if refresh != "" {
		resp["refresh_token"] = refresh
	}
	writeFakeJSON(w, http.StatusOK, resp)
}

func (f *fakeGoogle) owner(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.accessTokens[token]
	return owner, ok
}

func (f *fakeGoogle) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" || q.Get("timeMin") == "" || q.Get("timeMax") == "" {
		f.t.Errorf("unexpected list query: %s", r.URL.RawQuery)
	}

	owner, ok := f.owner(r)
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	key := owner + "/" + r.PathValue("calendarID")
	f.mu.Lock()
	f.listCalls[key]++
	cal, found := f.calendars[key]
	f.mu.Unlock()

	if !found {
		writeAPIError(w, http.StatusNotFound, "Not Found")
		return
	}
	if cal.status != http.StatusOK {
		if cal.retryAfter != "" {
			w.Header().Set("Retry-After", cal.retryAfter)
		}
		writeAPIError(w, cal.status, http.StatusText(cal.status))
		return
	}

	page := 0
	if pt := q.Get("pageToken"); pt != "" {
		page, _ = strconv.Atoi(strings.TrimPrefix(pt, "page-"))
	}

	resp := &calendar.Events{Items: []*calendar.Event{}}
	if page < len(cal.pages) {
		resp.Items = cal.pages[page]
	}
	if page+1 < len(cal.pages) {
		resp.NextPageToken = fmt.Sprintf("page-%d", page+1)
	}
	writeFakeJSON(w, http.StatusOK, resp)
}

func (f *fakeGoogle) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	owner, ok := f.owner(r)
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	f.mu.Lock()
	email := f.emails[owner]
	f.mu.Unlock()

	if email == "" {
		writeAPIError(w, http.StatusInternalServerError, "backend error")
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"id": owner, "email": email})
}

// fetcher returns a Fetcher wired to the fake with a real Broker.
func (f *fakeGoogle) fetcher(persister TokenPersister) *Fetcher {
	broker := google.NewBroker(google.BrokerConfig{
		OAuth:      google.NewOAuthConfig("client-id", "client-secret", f.srv.URL+"/token"),
		HTTPClient: f.srv.Client(),
	})
	lookup := google.NewUserInfoLookup(f.srv.Client(), google.WithUserInfoEndpoint(f.srv.URL+"/"))

	return NewFetcher(FetcherConfig{
		Broker:     broker,
		Persister:  persister,
		Labeler:    NewLabeler(lookup, NewMemoryLabelCache(0), nil, nil),
		HTTPClient: f.srv.Client(),
		Endpoint:   f.srv.URL + "/calendar/v3/",
	})
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeFakeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}

// timed builds a provider event with a timestamp start.
func timed(id, summary, start, end string) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Summary: summary,
		Start:   &calendar.EventDateTime{DateTime: start},
		End:     &calendar.EventDateTime{DateTime: end},
	}
}

// allDay builds a provider event with a date-only start.
func allDay(id, summary, start, end string) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Summary: summary,
		Start:   &calendar.EventDateTime{Date: start},
		End:     &calendar.EventDateTime{Date: end},
	}
}
