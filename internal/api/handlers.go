package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/spacesedan/sentiment-aura/internal/dispatch"
	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/monitoring"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

const maxBodyBytes = 1 << 20

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

type BreakerReporter interface {
	Breakers() []dispatch.BreakerSnapshot
}

type ProcessTextRequest struct {
	Text      string   `json:"text"`
	Providers []string `json:"providers,omitempty"`
}

type ProcessTextResponse struct {
	Sentiment float64  `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

type providerInfo struct {
	ID      models.ProviderID `json:"id"`
	Default bool              `json:"default"`
	Breaker string            `json:"breaker"`
	Healthy bool              `json:"healthy"`
}

type providersResponse struct {
	Providers []providerInfo              `json:"providers"`
	Breakers  []dispatch.BreakerSnapshot  `json:"breakers"`
	Health    []monitoring.ProviderHealth `json:"health"`
}

type Handler struct {
	analyzer  Analyzer
	providers []models.ProviderID
	defaults  []models.ProviderID
	breakers  BreakerReporter
	health    *monitoring.HealthStatus
}

func NewHandler(analyzer Analyzer, providerIDs, defaults []models.ProviderID, breakers BreakerReporter, health *monitoring.HealthStatus) *Handler {
	if health == nil {
		health = monitoring.NewHealthStatus()
	}
	return &Handler{
		analyzer:  analyzer,
		providers: providerIDs,
		defaults:  defaults,
		breakers:  breakers,
		health:    health,
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Sentiment Aura API"})
}

func (h *Handler) ProcessText(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProcessTextRequest(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ids := make([]models.ProviderID, 0, len(req.Providers))
	for _, p := range req.Providers {
		ids = append(ids, models.ProviderID(p))
	}

	result, err := h.analyzer.Analyze(r.Context(), models.NewAnalysisRequest(req.Text, ids...))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("X-Provider-Used", string(result.ProviderUsed))
	if result.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	keywords := result.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, http.StatusOK, ProcessTextResponse{
		Sentiment: result.Sentiment,
		Keywords:  keywords,
	})
}

func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	breakerState := make(map[models.ProviderID]string)
	var snapshots []dispatch.BreakerSnapshot
	if h.breakers != nil {
		snapshots = h.breakers.Breakers()
		for _, b := range snapshots {
			breakerState[b.Provider] = b.State
		}
	}

	isDefault := make(map[models.ProviderID]bool, len(h.defaults))
	for _, id := range h.defaults {
		isDefault[id] = true
	}

	infos := make([]providerInfo, 0, len(h.providers))
	for _, id := range h.providers {
		state, ok := breakerState[id]
		if !ok {
			state = "closed"
		}
		infos = append(infos, providerInfo{
			ID:      id,
			Default: isDefault[id],
			Breaker: state,
			Healthy: h.health.Healthy(id),
		})
	}

	if snapshots == nil {
		snapshots = []dispatch.BreakerSnapshot{}
	}
	writeJSON(w, http.StatusOK, providersResponse{
		Providers: infos,
		Breakers:  snapshots,
		Health:    h.health.Snapshot(),
	})
}

// decodeProcessTextRequest enforces the request schema: a JSON object with a
// string "text", an optional list of provider ids and nothing else.
func decodeProcessTextRequest(w http.ResponseWriter, r *http.Request) (ProcessTextRequest, error) {
	var req ProcessTextRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, &validation.InvalidInputError{Reason: validation.ReasonTooLong, Detail: "request body too large"}
		}
		return req, &validation.InvalidInputError{Reason: validation.ReasonMalformedBody, Detail: err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return req, &validation.InvalidInputError{Reason: validation.ReasonMalformedBody, Detail: "unexpected data after JSON object"}
	}

	return req, nil
}
