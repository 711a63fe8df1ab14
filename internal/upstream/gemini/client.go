package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"copydesk/internal/analysis"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	httpClient  *http.Client
	observer    ObserverFunc
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Temperature      *float32         `json:"temperature,omitempty"`
	ResponseMIMEType string           `json:"responseMimeType,omitempty"`
	ResponseSchema   *analysis.Schema `json:"responseSchema,omitempty"`
}

type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

func New(baseURL, apiKey, model string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimPrefix(strings.TrimSpace(model), "models/"),
		temperature: 0.2,
		httpClient:  httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewRequest converts an analysis payload into the generateContent wire format.
func NewRequest(payload analysis.Payload, temperature float32) GenerateContentRequest {
	parts := []Part{{Text: payload.Instruction}}
	if payload.Image != nil {
		parts = append(parts, Part{InlineData: &Blob{MIMEType: payload.Image.MIMEType, Data: payload.Image.Base64}})
	}
	return GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: &GenerationConfig{
			Temperature:      &temperature,
			ResponseMIMEType: payload.ResponseMIMEType,
			ResponseSchema:   payload.Schema,
		},
	}
}

func (c *Client) Send(ctx context.Context, payload analysis.Payload) (analysis.RawResponse, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("generate_content", statusCode, time.Since(started)) }()

	body, err := json.Marshal(NewRequest(payload, c.temperature))
	if err != nil {
		return analysis.RawResponse{}, err
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(c.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return analysis.RawResponse{}, err
	}
	req.Header.Set("x-goog-api-key", c.keyFor(ctx))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return analysis.RawResponse{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.RawResponse{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return analysis.RawResponse{}, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}

	return parseGenerateContent(respBody)
}

func (c *Client) CheckModels(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("models", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models?pageSize=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.keyFor(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	return nil
}

func (c *Client) keyFor(ctx context.Context) string {
	if key := RequestAPIKeyFromContext(ctx); key != "" {
		return key
	}
	return c.apiKey
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func parseGenerateContent(data []byte) (analysis.RawResponse, error) {
	var parsed generateContentResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return analysis.RawResponse{}, fmt.Errorf("invalid generateContent response: %w", err)
	}

	var out analysis.RawResponse
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" &&
		parsed.PromptFeedback.BlockReason != "BLOCK_REASON_UNSPECIFIED" {
		out.BlockReason = parsed.PromptFeedback.BlockReason
	}
	if parsed.UsageMetadata != nil {
		out.Usage = &analysis.TokenUsage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		}
	}
	if len(parsed.Candidates) == 0 {
		return out, nil
	}

	candidate := parsed.Candidates[0]
	out.FinishReason = candidate.FinishReason
	if candidate.Content != nil {
		var text strings.Builder
		for _, p := range candidate.Content.Parts {
			text.WriteString(p.Text)
		}
		out.Text = strings.TrimSpace(text.String())
	}
	return out, nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
