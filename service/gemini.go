package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
)

// ModelBackend is an extraction backend: it turns a prompt into raw model
// text. One backend is active today ("gemini"); the registry in the
// orchestrator allows more.
type ModelBackend interface {
	Name() string
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type GeminiService struct {
	config     *config.GeminiConfig
	httpClient *http.Client
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse is the subset of the generateContent response we read.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func NewGeminiService(cfg *config.GeminiConfig) *GeminiService {
	return &GeminiService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *GeminiService) Name() string {
	return "gemini"
}

// GenerateContent calls the Gemini generateContent endpoint with the prompt
// and returns the first candidate's text. Failures are tagged at origin:
// missing key, HTTP 429, and everything else map to distinct kinds.
func (s *GeminiService) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if s.config.APIKey == "" {
		return "", NewExtractionError(KindInvalidCredential, "GEMINI_API_KEY is not configured", nil)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.config.APIURL, s.config.Model, s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", NewExtractionError(KindUpstreamUnavailable, "failed to reach Gemini API", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", NewExtractionError(KindQuotaExceeded, "429 Too Many Requests from Gemini API", nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", NewExtractionError(KindInvalidCredential, fmt.Sprintf("Gemini API rejected the credential (HTTP %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return "", NewExtractionError(KindUpstreamUnavailable, fmt.Sprintf("Gemini API error %d: %s", resp.StatusCode, excerpt(body)), nil)
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, body: %s", err, excerpt(body))
	}

	if result.Error != nil {
		return "", NewExtractionError(KindUpstreamUnavailable, fmt.Sprintf("Gemini API error: %s", result.Error.Message), nil)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}

// excerpt truncates a response body for error messages.
func excerpt(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
