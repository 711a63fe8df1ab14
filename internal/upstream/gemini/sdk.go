package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"copydesk/internal/analysis"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// SDKClient sends payloads through the generative-ai-go client library. It
// satisfies the same contract as Client.
type SDKClient struct {
	client      *genai.Client
	model       string
	temperature float32
	observer    ObserverFunc
}

// SDKError carries the HTTP status reported by the library, when there is one.
type SDKError struct {
	StatusCode int
	Err        error
}

func (e *SDKError) Error() string {
	return fmt.Sprintf("gemini sdk: %v", e.Err)
}

func (e *SDKError) Unwrap() error {
	return e.Err
}

func (e *SDKError) HTTPStatus() int {
	return e.StatusCode
}

func NewSDKClient(ctx context.Context, apiKey, model string, temperature float32, observer ObserverFunc, opts ...option.ClientOption) (*SDKClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &SDKClient{
		client:      cl,
		model:       strings.TrimSpace(model),
		temperature: temperature,
		observer:    observer,
	}, nil
}

func (c *SDKClient) Close() error {
	return c.client.Close()
}

func (c *SDKClient) Send(ctx context.Context, payload analysis.Payload) (analysis.RawResponse, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("generate_content", statusCode, time.Since(started)) }()

	m := c.client.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &c.temperature,
		ResponseMIMEType: payload.ResponseMIMEType,
		ResponseSchema:   toGenaiSchema(payload.Schema),
	}

	parts := []genai.Part{genai.Text(payload.Instruction)}
	if payload.Image != nil {
		data, err := base64.StdEncoding.DecodeString(payload.Image.Base64)
		if err != nil {
			return analysis.RawResponse{}, fmt.Errorf("gemini sdk: bad image encoding: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: payload.Image.MIMEType, Data: data})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			statusCode = 200
			return blockedResponse(blocked), nil
		}
		statusCode = statusOf(err)
		return analysis.RawResponse{}, &SDKError{StatusCode: statusCode, Err: err}
	}
	statusCode = 200
	return fromGenaiResponse(resp), nil
}

func (c *SDKClient) CheckModels(ctx context.Context) error {
	started := time.Now()
	statusCode := 200
	defer func() { c.observe("models", statusCode, time.Since(started)) }()

	it := c.client.ListModels(ctx)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		statusCode = statusOf(err)
		return &SDKError{StatusCode: statusCode, Err: err}
	}
	return nil
}

func (c *SDKClient) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func blockedResponse(blocked *genai.BlockedError) analysis.RawResponse {
	var out analysis.RawResponse
	if blocked.PromptFeedback != nil && blocked.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		out.BlockReason = blockReasonName(blocked.PromptFeedback.BlockReason)
	}
	if blocked.Candidate != nil {
		out.FinishReason = finishReasonName(blocked.Candidate.FinishReason)
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) analysis.RawResponse {
	var out analysis.RawResponse
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = &analysis.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	c := resp.Candidates[0]
	out.FinishReason = finishReasonName(c.FinishReason)
	if c.Content != nil {
		var text strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		out.Text = strings.TrimSpace(text.String())
	}
	return out
}

func finishReasonName(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "STOP"
	case genai.FinishReasonMaxTokens:
		return "MAX_TOKENS"
	case genai.FinishReasonSafety:
		return analysis.FinishReasonSafety
	case genai.FinishReasonRecitation:
		return "RECITATION"
	case genai.FinishReasonOther:
		return "OTHER"
	default:
		return ""
	}
}

func blockReasonName(r genai.BlockReason) string {
	switch r {
	case genai.BlockReasonSafety:
		return "SAFETY"
	default:
		return "OTHER"
	}
}

func toGenaiSchema(s *analysis.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	switch s.Type {
	case analysis.TypeObject:
		out.Type = genai.TypeObject
	case analysis.TypeArray:
		out.Type = genai.TypeArray
	case analysis.TypeString:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}
