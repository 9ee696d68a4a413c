package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/i18n"
)

// Response is a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody represents an error in the response
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta contains pagination and other metadata
type Meta struct {
	Page    int   `json:"page,omitempty"`
	PerPage int   `json:"per_page,omitempty"`
	Total   int64 `json:"total,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// JSONWithMeta sends a JSON response with metadata
func JSONWithMeta(w http.ResponseWriter, statusCode int, data any, meta *Meta) {
	write(w, statusCode, Response{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
		Meta:    meta,
	})
}

// Error sends an error response (uses default locale)
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		write(w, appErr.StatusCode, Response{
			Error: &ErrorBody{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
		return
	}

	write(w, http.StatusInternalServerError, Response{
		Error: &ErrorBody{
			Code:    "INTERNAL_ERROR",
			Message: "an unexpected error occurred",
		},
	})
}

// ErrorLocalized sends a localized error response using request context
func ErrorLocalized(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		write(w, appErr.StatusCode, Response{
			Error: &ErrorBody{
				Code:    appErr.Code,
				Message: appErr.Localize(r.Context()),
				Details: appErr.Details,
			},
		})
		return
	}

	localizer := i18n.LocalizerFromContext(r.Context())
	write(w, http.StatusInternalServerError, Response{
		Error: &ErrorBody{
			Code:    "INTERNAL_ERROR",
			Message: localizer.T("errors.internal"),
		},
	})
}

func write(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSON decodes the request body into the provided struct.
// Unknown fields are rejected so typos in patches do not pass silently.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.BadRequest("request body is empty")
		}
		return errors.BadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
