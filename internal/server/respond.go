package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abhisek/coursepilot/internal/contentgen"
	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/structured"
)

const maxBodySize = 4 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decode reads a JSON body into v, rejecting trailing data.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: unexpected data after JSON object")
	}
	return nil
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	var missing *contentgen.ErrMissingField
	var outOfRange *contentgen.ErrOutOfRange
	var empty *contentgen.ErrEmptyGeneration
	var invalid *llm.ErrInvalidResponse
	var tooLong *llm.ErrMaxTokensExceeded

	switch {
	case errors.As(err, &missing), errors.As(err, &outOfRange), errors.Is(err, structured.ErrEmptyRequest):
		return http.StatusBadRequest
	case errors.As(err, &empty), errors.As(err, &invalid), errors.As(err, &tooLong):
		return http.StatusBadGateway
	case llm.IsUpstream(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var missing *contentgen.ErrMissingField
	var outOfRange *contentgen.ErrOutOfRange
	var invalid *llm.ErrInvalidResponse
	switch {
	case errors.As(err, &missing):
		body.Field = missing.Field
	case errors.As(err, &outOfRange):
		body.Field = outOfRange.Field
	case errors.As(err, &invalid):
		// The raw model text stays in the logs.
		body.Error = "the AI returned an invalid response"
	case status == http.StatusInternalServerError:
		body.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}
