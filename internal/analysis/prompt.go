package analysis

import (
	"fmt"
	"strings"
)

const (
	ErrorMarkerOpen      = `<span class="error">`
	CorrectionMarkerOpen = `<span class="correction">`
	MarkerClose          = `</span>`

	ResponseMIMEType = "application/json"
)

const transcriptionDirective = `The attached image is a photograph of a newspaper article. First transcribe all of the article text visible in the image exactly as printed, without fixing anything. Then use that transcription as the article text for the task below.`

const editorialTask = `You are a senior copy editor at a Hindi-language newspaper. Proofread the article text and respond with a single JSON object containing exactly these three fields, in this order:

1. "annotatedText": the complete article text, unchanged except that every spelling, grammar, punctuation or factual-style error is wrapped as %s...%s and immediately followed by its fix wrapped as %s...%s.
2. "corrections": an array with one object per marked error, in order of appearance, each with "originalError" (the erroneous text) and "correctedText" (the fix).
3. "headlines": an array of exactly %d objects, each with "headline" and "subheadline", both written in Hindi (Devanagari script), suitable for print.

Return only the JSON object.`

// Build turns a Request into a transport Payload. It is a pure function.
func Build(req Request) (Payload, error) {
	hasImage := req.Image != nil && strings.TrimSpace(req.Image.Base64) != ""
	text := strings.TrimSpace(req.Text)
	if !hasImage && text == "" {
		return Payload{}, &Error{Kind: KindNoInput, Message: "no text or image provided"}
	}
	if req.HeadlineCount < MinHeadlineCount || req.HeadlineCount > MaxHeadlineCount {
		return Payload{}, &Error{
			Kind:    KindInvalidHeadlineCount,
			Message: fmt.Sprintf("headline count %d outside [%d,%d]", req.HeadlineCount, MinHeadlineCount, MaxHeadlineCount),
		}
	}

	task := fmt.Sprintf(editorialTask,
		ErrorMarkerOpen, MarkerClose,
		CorrectionMarkerOpen, MarkerClose,
		req.HeadlineCount,
	)

	payload := Payload{
		ResponseMIMEType: ResponseMIMEType,
		Schema:           ResponseSchema(),
	}
	if hasImage {
		payload.Instruction = transcriptionDirective + "\n\n" + task
		payload.Image = &Image{MIMEType: req.Image.MIMEType, Base64: req.Image.Base64}
		return payload, nil
	}
	payload.Instruction = task + "\n\nArticle text:\n" + text
	return payload, nil
}
