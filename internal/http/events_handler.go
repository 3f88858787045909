package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neofi/eventledger/internal/auth"
	"github.com/neofi/eventledger/internal/ledger"
	"github.com/neofi/eventledger/internal/store"
)

// EventHandler serves the event CRUD, sharing, history and diff endpoints.
type EventHandler struct {
	ledger *ledger.Service
}

func NewEventHandler(ledgerService *ledger.Service) *EventHandler {
	return &EventHandler{ledger: ledgerService}
}

type eventResponse struct {
	ID                int64          `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Location          *string        `json:"location,omitempty"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern,omitempty"`
	OwnerID           int64          `json:"owner_id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func toEventResponse(ev *store.Event) eventResponse {
	return eventResponse{
		ID:                ev.ID,
		Title:             ev.Title,
		Description:       ev.Description,
		StartTime:         ev.StartTime,
		EndTime:           ev.EndTime,
		Location:          ev.Location,
		IsRecurring:       ev.IsRecurring,
		RecurrencePattern: ev.RecurrencePattern,
		OwnerID:           ev.OwnerID,
		CreatedAt:         ev.CreatedAt,
		UpdatedAt:         ev.UpdatedAt,
	}
}

type versionResponse struct {
	EventID       int64          `json:"event_id"`
	VersionNumber int64          `json:"version_number"`
	Data          map[string]any `json:"data"`
	CreatedBy     int64          `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toVersionResponse(v *store.EventVersion) versionResponse {
	return versionResponse{
		EventID:       v.EventID,
		VersionNumber: v.VersionNumber,
		Data:          v.Data,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func requestUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return nil, false
	}
	return user, true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type createEventRequest struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Location          *string        `json:"location"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	ev, err := h.ledger.CreateEvent(r.Context(), user.ID, ledger.EventInput{
		Title:             req.Title,
		Description:       req.Description,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Location:          req.Location,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	events, err := h.ledger.ListEvents(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for i := range events {
		out = append(out, toEventResponse(&events[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	ev, err := h.ledger.GetEvent(r.Context(), eventID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

type updateEventRequest struct {
	Title             *string        `json:"title"`
	Description       *string        `json:"description"`
	StartTime         *time.Time     `json:"start_time"`
	EndTime           *time.Time     `json:"end_time"`
	Location          *string        `json:"location"`
	IsRecurring       *bool          `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	var req updateEventRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	ev, err := h.ledger.UpdateEvent(r.Context(), eventID, user.ID, ledger.EventPatch{
		Title:             req.Title,
		Description:       req.Description,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Location:          req.Location,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	if err := h.ledger.DeleteEvent(r.Context(), eventID, user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type shareRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type permissionResponse struct {
	ID      int64      `json:"id"`
	EventID int64      `json:"event_id"`
	UserID  int64      `json:"user_id"`
	Role    store.Role `json:"role"`
}

func (h *EventHandler) Share(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	var req shareRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	perm, err := h.ledger.GrantPermission(r.Context(), eventID, user.ID, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionResponse{
		ID:      perm.ID,
		EventID: perm.EventID,
		UserID:  perm.UserID,
		Role:    perm.Role,
	})
}

func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	versions, err := h.ledger.ListHistory(r.Context(), eventID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]versionResponse, 0, len(versions))
	for i := range versions {
		out = append(out, toVersionResponse(&versions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EventHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	versionNumber, ok := pathID(r, "version")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid version number"})
		return
	}
	version, err := h.ledger.GetVersion(r.Context(), eventID, versionNumber, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVersionResponse(version))
}

func (h *EventHandler) Diff(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event id"})
		return
	}
	v1, ok1 := pathID(r, "v1")
	v2, ok2 := pathID(r, "v2")
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid version number"})
		return
	}
	diffs, err := h.ledger.DiffVersions(r.Context(), eventID, v1, v2, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if diffs == nil {
		diffs = []ledger.FieldDiff{}
	}
	writeJSON(w, http.StatusOK, diffs)
}
