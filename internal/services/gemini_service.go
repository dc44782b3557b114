package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiAPIPath        = "%s/v1beta/models/%s:generateContent"
	geminiTimeout        = 60 * time.Second
	maxImageBytes        = 8 * 1024 * 1024
)

// ErrGeminiDisabled is returned when no API key is configured.
var ErrGeminiDisabled = errors.New("gemini is not configured")

// GeminiService calls the Gemini generateContent REST API.
type GeminiService struct {
	apiKey          string
	model           string
	baseURL         string
	maxOutputTokens int
	httpClient      *http.Client
	enabled         bool
}

// NewGeminiService creates a client. An empty apiKey yields a disabled service.
func NewGeminiService(apiKey, model string, maxOutputTokens int) *GeminiService {
	if model == "" {
		model = defaultGeminiModel
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 1024
	}
	svc := &GeminiService{
		apiKey:          apiKey,
		model:           model,
		baseURL:         defaultGeminiBaseURL,
		maxOutputTokens: maxOutputTokens,
		httpClient:      &http.Client{Timeout: geminiTimeout},
		enabled:         apiKey != "",
	}

	if svc.enabled {
		log.Printf("Gemini service: enabled (model=%s)", model)
	} else {
		log.Printf("Gemini service: disabled (no GOOGLE_API_KEY)")
	}
	return svc
}

// IsEnabled returns whether Gemini is available
func (s *GeminiService) IsEnabled() bool {
	return s.enabled
}

// detectMimeType returns the MIME type for image bytes
func detectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "image/jpeg"
	}
	return contentType
}

// IdentifyCard asks the vision model for the card's identity and normalizes the answer.
// ocrText and knownYear are optional extra signals.
func (s *GeminiService) IdentifyCard(ctx context.Context, image []byte, ocrText, knownYear string) (CardIdentity, error) {
	if !s.enabled {
		return CardIdentity{}, ErrGeminiDisabled
	}
	if len(image) == 0 {
		return CardIdentity{}, fmt.Errorf("%w: empty image", ErrInvalidRequest)
	}
	if len(image) > maxImageBytes {
		return CardIdentity{}, fmt.Errorf("%w: image larger than %d bytes", ErrInvalidRequest, maxImageBytes)
	}

	parts := []geminiPart{
		{InlineData: &geminiInlineData{MimeType: detectMimeType(image), Data: base64.StdEncoding.EncodeToString(image)}},
		{Text: "Identify this card."},
	}
	text, err := s.generate(ctx, "identify", identifyPrompt, parts, geminiGenConfig{
		ResponseMimeType: "application/json",
		Temperature:      0.1,
		MaxOutputTokens:  s.maxOutputTokens,
	})
	if err != nil {
		return CardIdentity{}, err
	}

	id := Normalize(IdentitySignals{ModelOutput: text, OCRText: ocrText}, knownYear)
	if id.HasWarning(WarningParseError) {
		log.Printf("Gemini service: unparseable identification output (%d bytes)", len(text))
	}
	return id, nil
}

// Ask sends one question under a system instruction and returns the text answer.
func (s *GeminiService) Ask(ctx context.Context, systemInstruction, question string) (string, error) {
	if !s.enabled {
		return "", ErrGeminiDisabled
	}
	return s.generate(ctx, "assistant", systemInstruction, []geminiPart{{Text: question}}, geminiGenConfig{
		Temperature:     0.3,
		MaxOutputTokens: s.maxOutputTokens,
	})
}

func (s *GeminiService) generate(ctx context.Context, purpose, system string, parts []geminiPart, cfg geminiGenConfig) (string, error) {
	metrics.GeminiRequestsTotal.WithLabelValues(purpose).Inc()

	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig:  cfg,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiAPIPath, s.baseURL, s.model) + "?key=" + s.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	metrics.GeminiAPILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeminiErrorsTotal.WithLabelValues("network").Inc()
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GeminiErrorsTotal.WithLabelValues("read").Inc()
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.GeminiErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		metrics.GeminiErrorsTotal.WithLabelValues("parse").Inc()
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if apiResp.Error != nil {
		metrics.GeminiErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		metrics.GeminiErrorsTotal.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("no response from Gemini")
	}

	var text strings.Builder
	for _, part := range apiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		metrics.GeminiErrorsTotal.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text.String(), nil
}

// Gemini API types

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const identifyPrompt = `You identify sports trading cards from photos.

Return ONLY a JSON object with these keys:
{
  "player": "full player name or null",
  "year": "four-digit release year or null",
  "set": "product/set name, e.g. Prizm, Topps Chrome, Bowman Draft, or null",
  "brand": "manufacturer, e.g. Panini, Topps, Upper Deck, or null",
  "parallel": "parallel or color name, e.g. Silver, Refractor, Gold /10, or null",
  "card_number": "the card number printed on the card, without '#', or null",
  "confidence": "high | medium | low",
  "field_confidence": {"player": "...", "year": "...", "set": "...", "parallel": "...", "card_number": "..."},
  "evidence": {"player": "text or feature that shows the player", "year": "...", "set": "..."}
}

Rules:
- Use null for anything you cannot read. Never guess a card number.
- The year is the release year of the product, not the season on a stat line.
- Refractor, Prizm, X-Fractor and similar parallels only exist on chrome-stock products.
- Set confidence to "low" if the card is blurry, partially visible or the back is not shown.`
