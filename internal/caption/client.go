package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/pkg/models"
)

// InvalidResponseError marks a model response that contains no parseable
// caption array. It is retryable since models sometimes produce prose or
// truncated output on one attempt and valid JSON on the next.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid model response: %s", e.Reason)
}

// Request options for a single captioning call.
type RequestOptions struct {
	ContentType string              // lecture, tutorial, ...
	MimeType    string              // defaults to video/mp4
	SegmentInfo *models.SegmentInfo // nil for whole-video calls
	Model       string              // overrides the client's default model
}

// Client talks to the Gemini generateContent REST API.
type Client struct {
	apiKey        string
	model         string
	fallbackModel string
	baseURL       string
	maxRetries    int
	httpClient    *http.Client
	logger        zerolog.Logger
}

// ClientConfig configures a captioning client.
type ClientConfig struct {
	APIKey        string
	Model         string
	FallbackModel string
	BaseURL       string
	MaxRetries    int
	Timeout       time.Duration
}

// NewClient creates a Gemini captioning client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = "gemini-1.5-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		// Large inline video payloads take a while to upload and process.
		cfg.Timeout = 10 * time.Minute
	}
	return &Client{
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		baseURL:       cfg.BaseURL,
		maxRetries:    cfg.MaxRetries,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

// FallbackModel returns the model used for segment-level degraded retries.
func (c *Client) FallbackModel() string {
	return c.fallbackModel
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate performs a single captioning call against the model and returns
// the parsed captions with times in seconds.
func (c *Client) Generate(ctx context.Context, videoBase64 string, opts RequestOptions) ([]models.Caption, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	reqBody := generateRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: BuildPrompt(opts.ContentType, opts.SegmentInfo)},
					{InlineData: &inlineData{MimeType: mimeType, Data: videoBase64}},
				},
			},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			TopK:            32,
			TopP:            0.95,
			MaxOutputTokens: 8192,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordModelCall(model, "error")
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordModelCall(model, "error")
		return nil, fmt.Errorf("read response: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		metrics.RecordModelCall(model, "error")
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if gr.Error != nil {
		metrics.RecordModelCall(model, "error")
		return nil, fmt.Errorf("model API error %d: %s", gr.Error.Code, gr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordModelCall(model, "error")
		return nil, fmt.Errorf("model request failed with status %d", resp.StatusCode)
	}

	text := responseText(&gr)
	c.logger.Debug().Str("model", model).Int("response_bytes", len(text)).Msg("Model response received")

	captions, err := ParseResponse(text)
	if err != nil {
		metrics.RecordModelCall(model, "invalid")
		return nil, err
	}

	metrics.RecordModelCall(model, "ok")
	return captions, nil
}

func responseText(gr *generateResponse) string {
	var b bytes.Buffer
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// jsonArrayRegex locates the caption array inside the response text, which
// may be wrapped in prose or markdown fences.
var jsonArrayRegex = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// ParseResponse extracts the caption array from raw model output and
// converts timestamps to seconds.
func ParseResponse(text string) ([]models.Caption, error) {
	match := jsonArrayRegex.FindString(text)
	if match == "" {
		return nil, &InvalidResponseError{Reason: "no JSON array found in response"}
	}

	var raw []models.RawCaption
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("malformed JSON array: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &InvalidResponseError{Reason: "empty caption array"}
	}

	captions := make([]models.Caption, 0, len(raw))
	for _, r := range raw {
		captions = append(captions, models.Caption{
			Index: r.Index,
			Start: ParseTime(r.StartTime),
			End:   ParseTime(r.EndTime),
			Text:  r.Text,
		})
	}
	return captions, nil
}
