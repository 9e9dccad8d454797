package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
)

const (
	queryFields     = "fields"
	queryEntityType = "entityType"
	queryEventType  = "eventType"
	queryEmail      = "Email"
	queryName       = "Name"
	queryStatus     = "Status"
	queryLimit      = "limit"
)

type trackEventRequest struct {
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	EventType     string          `json:"eventType"`
	SchemaVersion int             `json:"schemaVersion"`
	ActorID       string          `json:"actorId"`
	ActorType     string          `json:"actorType"`
	EntityData    json.RawMessage `json:"entityData"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (s *Server) trackEvent(w http.ResponseWriter, r *http.Request) {
	var request trackEventRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(request.EntityData) == 0 {
		writeError(w, http.StatusBadRequest, "entityData is required")
		return
	}

	event, err := s.tracker.TrackEventWithResult(r.Context(), tracker.TrackEventRequest{
		EntityType:    request.EntityType,
		EntityID:      request.EntityID,
		EventType:     eventstore.EventType(request.EventType),
		SchemaVersion: request.SchemaVersion,
		ActorID:       request.ActorID,
		ActorType:     eventstore.ActorType(request.ActorType),
		EntityData:    request.EntityData,
		CorrelationID: request.CorrelationID,
		Timestamp:     request.Timestamp,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, eventstore.FullDataResponse(event))
}

func (s *Server) entityEvents(w http.ResponseWriter, r *http.Request) {
	responses, err := s.queries.GetEntityEvents(
		r.Context(),
		chi.URLParam(r, paramEntityType),
		chi.URLParam(r, paramEntityID),
		splitFields(r.URL.Query().Get(queryFields)),
	)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) searchEvents(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	entityType := values.Get(queryEntityType)
	if entityType == "" {
		writeError(w, http.StatusBadRequest, eventstore.ErrMissingEntityType.Error())
		return
	}

	var limit int
	if raw := values.Get(queryLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}

		limit = parsed
	}

	responses, err := s.queries.SearchEvents(r.Context(), eventstore.SearchRequest{
		EntityType: entityType,
		EventType:  eventstore.EventType(values.Get(queryEventType)),
		Email:      values.Get(queryEmail),
		Name:       values.Get(queryName),
		Status:     values.Get(queryStatus),
		Limit:      limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) eventChanges(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, paramEventID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "eventId must be a uuid")
		return
	}

	changes, err := s.queries.GetEventChanges(r.Context(), eventID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	responses, err := s.queries.GetAllEvents(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, responses)
}

func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}

	fields := make([]string, 0)
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}

	return fields
}
