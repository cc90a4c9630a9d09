package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

const (
	HF_SENTIMENT_ANALYSIS_ENDPOINT = "https://spacesedan-sentiment-analyzer.hf.space/analyze_batch"
	HF_SENTIMENT_HEALTH_ENDPOINT   = "https://spacesedan-sentiment-analyzer.hf.space/health"
)

var ErrMalformedResponse = errors.New("malformed response")

// StatusError carries the HTTP status of a failed call so callers can classify it.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status code %d", e.Endpoint, e.StatusCode)
}

type HuggingFaceOptions struct {
	SentimentEndpoint string
	HealthEndpoint    string
	Timeout           time.Duration
	// Retries are attempts within a single Analyze call; 1 disables retrying.
	Retries int
}

type HuggingFaceClient struct {
	Client  *http.Client
	opts    HuggingFaceOptions
	backoff time.Duration
}

func NewHuggingFaceClient(opts HuggingFaceOptions) *HuggingFaceClient {
	if opts.SentimentEndpoint == "" {
		opts.SentimentEndpoint = HF_SENTIMENT_ANALYSIS_ENDPOINT
	}
	if opts.HealthEndpoint == "" {
		opts.HealthEndpoint = HF_SENTIMENT_HEALTH_ENDPOINT
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}

	slog.Info("[HuggingFaceClient] Initializing Client",
		slog.Duration("timeout", opts.Timeout),
		slog.String("endpoint", opts.SentimentEndpoint))

	return &HuggingFaceClient{
		Client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		backoff: INITIAL_BACKOFF,
	}
}

func (h *HuggingFaceClient) DoWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := h.backoff

	for attempt := 0; attempt < h.opts.Retries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = h.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt == h.opts.Retries-1 {
			break
		}

		if resp != nil {
			resp.Body.Close()
		}

		slog.Warn("[HuggingFaceClient] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", errMsg(err, resp)))

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, MAX_BACKOFF)
	}

	return resp, err
}

func (h *HuggingFaceClient) GetBatchedSentimentAnalysis(ctx context.Context, input models.SentimentAnalysisBatchRequest) (models.SentimentAnalysisBatchResponse, error) {
	var result models.SentimentAnalysisBatchResponse
	start := time.Now()

	err := h.postJSON(ctx, h.opts.SentimentEndpoint, input, &result)
	if err != nil {
		slog.Error("[HuggingFaceClient] Sentiment Analysis request failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return result, err
	}

	slog.Debug("[HuggingFaceClient] Sentiment Analysis request successful",
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// AnalyzerHealthCheck reports whether the sentiment service answers its health endpoint.
func (h *HuggingFaceClient) AnalyzerHealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.HealthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: h.opts.HealthEndpoint}
	}
	return nil
}

// helper function for posting data to the analyzer service
func (h *HuggingFaceClient) postJSON(ctx context.Context, endpoint string, input interface{}, output interface{}) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := h.DoWithRetry(req)
	if err != nil {
		return fmt.Errorf("request failed after retries: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("[HuggingFaceClient] Unexpected status",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			getPreview(respBody))
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[HuggingFaceClient] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(respBody),
			slog.Int("raw_response_length", len(respBody)))

		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}

func errMsg(err error, resp *http.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return "unknown error"
}
