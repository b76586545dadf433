package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// EventAggregator gathers a user's events across their connected calendars.
type EventAggregator interface {
	Aggregate(ctx context.Context, userID string, w calendar.Window) (*calendar.Aggregation, error)
	DefaultWindow() calendar.Window
}

// Advisory messages returned alongside successful responses.
const (
	MessageNotConnected  = "No Google Calendar is connected. Connect an account to see your events."
	MessagePartial       = "Some calendars could not be loaded."
	MessageAllFailed     = "None of your calendars could be loaded."
	messageUnauthorized  = "Not authenticated"
	messageUserMissing   = "User not found"
	messageUnavailable   = "Calendar data is temporarily unavailable"
	messageInternalError = "Failed to load calendar events"
)

// EventsResponse is the success envelope of GET /calendar.
type EventsResponse struct {
	Success       bool             `json:"success"`
	Data          []calendar.Event `json:"data"`
	Message       string           `json:"message,omitempty"`
	FailedSources int              `json:"failedSources,omitempty"`
}

// ErrorResponse is the failure envelope of every API endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// CalendarHandler serves GET /calendar.
type CalendarHandler struct {
	aggregator EventAggregator
	logger     *slog.Logger
}

// NewCalendarHandler returns a handler backed by aggregator.
func NewCalendarHandler(aggregator EventAggregator, logger *slog.Logger) *CalendarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarHandler{aggregator: aggregator, logger: logging.WithOperation(logger, "calendar.list")}
}

func (h *CalendarHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.fail(w, r, calendar.ErrUnauthenticated)
		return
	}

	q := r.URL.Query()
	window, err := calendar.ParseWindow(q.Get("timeMin"), q.Get("timeMax"), h.aggregator.DefaultWindow())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.aggregator.Aggregate(r.Context(), userID, window)
	if errors.Is(err, calendar.ErrNoUsableToken) {
		writeJSON(w, http.StatusOK, EventsResponse{Success: true, Data: []calendar.Event{}, Message: MessageNotConnected})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := EventsResponse{
		Success:       true,
		Data:          result.Events,
		FailedSources: len(result.Failures),
	}
	if resp.Data == nil {
		resp.Data = []calendar.Event{}
	}
	switch {
	case result.Partial():
		resp.Message = MessagePartial
	case result.Sources > 0 && len(result.Failures) == result.Sources:
		resp.Message = MessageAllFailed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CalendarHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "calendar request failed",
			slog.Int("status", status),
			slog.String("trace_id", instrumentation.TraceID(r.Context())),
			logging.Err(err))
	} else {
		h.logger.DebugContext(r.Context(), "calendar request rejected", slog.Int("status", status), logging.Err(err))
	}
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

// statusForError maps a request-fatal error to its HTTP status and the
// message shown to the caller.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, calendar.ErrUnauthenticated):
		return http.StatusUnauthorized, messageUnauthorized
	case errors.Is(err, calendar.ErrInvalidWindow):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, calendar.ErrUserRecordMissing):
		return http.StatusBadRequest, messageUserMissing
	case errors.Is(err, calendar.ErrDatastoreUnavailable):
		return http.StatusServiceUnavailable, messageUnavailable
	default:
		return http.StatusInternalServerError, messageInternalError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
