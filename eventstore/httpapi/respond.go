package httpapi

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const maxBodyBytes = 1 << 20

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := jsonAPI.Marshal(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding response failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	data, _ := jsonAPI.Marshal(errorBody{Error: message})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// fail answers with the status matching err and logs the failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	if s.logger != nil {
		s.logger.Error(logMsgRequestFailed, logAttrMethod, r.Method, logAttrRoute, routePattern(r), logAttrStatus, status, logAttrError, err.Error())
	}

	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, eventstore.ErrSchemaNotFound), errors.Is(err, eventstore.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, eventstore.ErrSchemaAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(r *http.Request, target any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return errors.New("request body must not be empty")
	}

	return jsonAPI.Unmarshal(data, target)
}
