package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

type wireResult struct {
	AnnotatedText *string          `json:"annotatedText"`
	Corrections   []wireCorrection `json:"corrections"`
	Headlines     []wireHeadline   `json:"headlines"`
}

type wireCorrection struct {
	OriginalError *string `json:"originalError"`
	CorrectedText *string `json:"correctedText"`
}

type wireHeadline struct {
	Headline    *string `json:"headline"`
	Subheadline *string `json:"subheadline"`
}

// Parse decodes the model's text output. Fenced output is accepted.
func Parse(raw string) (Result, error) {
	var wire wireResult
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &wire); err != nil {
		return Result{}, malformed(raw, err)
	}
	if wire.AnnotatedText == nil {
		return Result{}, malformed(raw, errors.New("missing annotatedText"))
	}

	result := Result{
		AnnotatedText: *wire.AnnotatedText,
		Corrections:   make([]Correction, 0, len(wire.Corrections)),
		Headlines:     make([]Headline, 0, len(wire.Headlines)),
	}
	for _, c := range wire.Corrections {
		if c.OriginalError == nil || c.CorrectedText == nil {
			return Result{}, malformed(raw, errors.New("correction missing originalError or correctedText"))
		}
		result.Corrections = append(result.Corrections, Correction{
			OriginalError: *c.OriginalError,
			CorrectedText: *c.CorrectedText,
		})
	}
	for _, h := range wire.Headlines {
		if h.Headline == nil || h.Subheadline == nil {
			return Result{}, malformed(raw, errors.New("headline missing headline or subheadline"))
		}
		result.Headlines = append(result.Headlines, Headline{
			Headline:    *h.Headline,
			Subheadline: *h.Subheadline,
		})
	}
	return result, nil
}

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func malformed(raw string, cause error) *Error {
	return &Error{Kind: KindMalformedJSON, Message: "malformed analysis response", Raw: raw, Cause: cause}
}
