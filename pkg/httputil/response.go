// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// ResponseDto is the envelope every /api response is wrapped in
type ResponseDto struct {
	Result       interface{} `json:"result"`
	IsError      bool        `json:"isError"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Message      string      `json:"message,omitempty"`
	StatusCode   int         `json:"statusCode"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteResult writes result wrapped in a success envelope
func WriteResult(w http.ResponseWriter, status int, result interface{}) error {
	return WriteJSON(w, status, ResponseDto{
		Result:     result,
		StatusCode: status,
	})
}

// WriteSuccess writes a 200 envelope
func WriteSuccess(w http.ResponseWriter, result interface{}) error {
	return WriteResult(w, http.StatusOK, result)
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, result interface{}) error {
	return WriteResult(w, http.StatusCreated, result)
}

// WriteSuccessMessage writes a 200 envelope carrying a message
func WriteSuccessMessage(w http.ResponseWriter, message string, result interface{}) error {
	return WriteJSON(w, http.StatusOK, ResponseDto{
		Result:     result,
		Message:    message,
		StatusCode: http.StatusOK,
	})
}

// WriteErrorMessage writes an error envelope with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ResponseDto{
		IsError:      true,
		ErrorMessage: message,
		StatusCode:   status,
	})
}

// WriteAppError maps err to its status and writes the error envelope.
// Internal errors are logged and replaced by a generic message.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("status", status).
			Error("request failed")
	}
	WriteErrorMessage(w, status, apperror.PublicMessage(err))
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
