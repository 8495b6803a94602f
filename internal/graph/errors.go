// Package graph provides an HTTP client for the Microsoft Graph drive API
// and the client-credential token source it authenticates with.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrTooLarge     = errors.New("graph: payload too large")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
)

// ErrMalformedResponse is returned when a 2xx response body cannot be
// decoded or lacks required fields.
var ErrMalformedResponse = errors.New("graph: malformed response")

// GraphError wraps a sentinel error with HTTP status code, request ID,
// the provider error code, and the raw API error body for debugging.
type GraphError struct {
	StatusCode int
	RequestID  string
	Code       string // error.code from the Graph error body, e.g. "nameAlreadyExists"
	Message    string // raw response body
	Err        error  // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status carried by a GraphError anywhere in the
// chain, or 0 when err did not come from a Graph response.
func StatusOf(err error) int {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.StatusCode
	}

	return 0
}

// errorEnvelope mirrors the Graph error response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newGraphError builds a GraphError from a non-2xx response.
func newGraphError(resp *http.Response, body []byte) *GraphError {
	ge := &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		ge.Code = env.Error.Code
	}

	return ge
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
