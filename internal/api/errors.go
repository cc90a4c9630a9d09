package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/spacesedan/sentiment-aura/internal/dispatch"
	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

const (
	categoryInvalidInput  = "InvalidInput"
	categoryDispatchError = "DispatchError"
	categoryInternalFault = "InternalFault"
	categoryCanceled      = "Canceled"

	// statusClientClosedRequest is nginx's non-standard code for a client that
	// hung up before the response was written.
	statusClientClosedRequest = 499
)

type errorResponse struct {
	Error    string                                    `json:"error"`
	Reason   string                                    `json:"reason,omitempty"`
	Failures map[models.ProviderID]providers.ErrorKind `json:"failures,omitempty"`
}

// writeServiceError is the only place failures become status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		slog.Debug("[API] Client went away before the analysis finished",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path))
		writeJSON(w, statusClientClosedRequest, errorResponse{Error: categoryCanceled})
		return
	}

	if invalid, ok := validation.AsInvalidInput(err); ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  categoryInvalidInput,
			Reason: string(invalid.Reason),
		})
		return
	}

	if derr, ok := dispatch.AsDispatchError(err); ok {
		slog.Warn("[API] Dispatch failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("kind", string(derr.Kind)),
			slog.String("error", derr.Error()))
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:    categoryDispatchError,
			Reason:   string(derr.Kind),
			Failures: derr.Failures,
		})
		return
	}

	slog.Error("[API] Internal fault",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: categoryInternalFault})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("[API] Failed to encode response", slog.String("error", err.Error()))
	}
}
