package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classpulse/internal/logger"
	"classpulse/internal/service"
	"classpulse/internal/validation"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Split  interface{}       `json:"split_state,omitempty"`
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	respondWithJSON(w, status, errorBody{Error: userMsg})
}

func respondWithJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// respondWithServiceError maps a service error onto a status code. Unknown
// errors are reported and answered with a generic message.
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	var partial *service.PartialEndError
	var fieldErrs validation.Errors
	var fieldErr validation.ValidationError

	switch {
	case errors.As(err, &partial):
		logger.Error(logMsg, err, map[string]interface{}{"session_code": partial.SessionCode})
		respondWithJSON(w, http.StatusInternalServerError, errorBody{Error: service.ErrPartialEnd.Error(), Split: partial})

	case errors.As(err, &fieldErrs):
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidRequest, Fields: fieldErrs.Fields()})
	case errors.As(err, &fieldErr):
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: fieldErr.Error(), Fields: map[string]string{fieldErr.Field: fieldErr.Message}})

	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrParticipantNotFound),
		errors.Is(err, service.ErrPresentationNotFound),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrCardNotFound):
		respondWithError(w, http.StatusNotFound, publicMessage(err), "", nil)

	case errors.Is(err, service.ErrStatusFinal),
		errors.Is(err, service.ErrPresentationEnded),
		errors.Is(err, service.ErrNavigationStarted),
		errors.Is(err, service.ErrConcurrentEdit),
		errors.Is(err, service.ErrJoinTokenReused):
		respondWithError(w, http.StatusConflict, publicMessage(err), "", nil)

	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidFeedback),
		errors.Is(err, service.ErrCardOutOfRange),
		errors.Is(err, service.ErrNoCards),
		errors.Is(err, service.ErrInvalidOrder):
		respondWithError(w, http.StatusBadRequest, publicMessage(err), "", nil)

	case errors.Is(err, service.ErrContentUnavailable),
		errors.Is(err, service.ErrCodeExhausted):
		respondWithError(w, http.StatusServiceUnavailable, publicMessage(err), logMsg, err)

	default:
		logger.Error(logMsg, err)
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "", nil)
	}
}

// publicMessage returns the sentinel text of err without wrapped detail
func publicMessage(err error) string {
	for _, known := range []error{
		service.ErrSessionNotFound, service.ErrParticipantNotFound, service.ErrPresentationNotFound,
		service.ErrQuestionNotFound, service.ErrCardNotFound, service.ErrStatusFinal,
		service.ErrPresentationEnded, service.ErrNavigationStarted, service.ErrConcurrentEdit,
		service.ErrJoinTokenReused, service.ErrInvalidStatus, service.ErrInvalidFeedback,
		service.ErrCardOutOfRange, service.ErrNoCards, service.ErrInvalidOrder,
		service.ErrContentUnavailable, service.ErrCodeExhausted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// decodeJSON reads a request body into v and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validation.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return validation.Struct(v)
}
