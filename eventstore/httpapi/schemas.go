package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

type addSchemaRequest struct {
	EntityType       string `json:"entityType"`
	Version          int    `json:"version"`
	SchemaDefinition string `json:"schemaDefinition"`
}

func (s *Server) addSchema(w http.ResponseWriter, r *http.Request) {
	var request addSchemaRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	schema, err := s.registry.AddSchema(r.Context(), request.EntityType, request.Version, request.SchemaDefinition)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/schemas/%s/versions/%d", schema.EntityType, schema.Version))
	writeJSON(w, http.StatusCreated, schema)
}

func (s *Server) listSchemas(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, paramEntityType)

	schemas, err := s.registry.ListSchemas(r.Context(), entityType)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if len(schemas) == 0 {
		s.fail(w, r, fmt.Errorf("%w for entity type '%s'", eventstore.ErrSchemaNotFound, entityType))
		return
	}

	writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) latestSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.registry.GetLatestSchema(r.Context(), chi.URLParam(r, paramEntityType))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) schemaVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, paramVersion))
	if err != nil {
		writeError(w, http.StatusBadRequest, "version must be an integer")
		return
	}

	schema, err := s.registry.GetSchema(r.Context(), chi.URLParam(r, paramEntityType), version)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, schema)
}
