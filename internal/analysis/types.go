package analysis

const (
	MinHeadlineCount     = 5
	MaxHeadlineCount     = 25
	DefaultHeadlineCount = 5
)

// HeadlineCountOptions is the set offered by the headline-count selector.
var HeadlineCountOptions = []int{5, 10, 15, 20, 25}

type Image struct {
	MIMEType string
	Base64   string
}

type Request struct {
	Text          string
	Image         *Image
	HeadlineCount int
}

type Correction struct {
	OriginalError string `json:"originalError"`
	CorrectedText string `json:"correctedText"`
}

type Headline struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
}

type Result struct {
	AnnotatedText string       `json:"annotatedText"`
	Corrections   []Correction `json:"corrections"`
	Headlines     []Headline   `json:"headlines"`
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Payload is the transport-ready form of a Request.
type Payload struct {
	Instruction      string
	Image            *Image
	ResponseMIMEType string
	Schema           *Schema
}

// RawResponse is what a transport returns after a completed round trip.
type RawResponse struct {
	Text         string
	FinishReason string
	BlockReason  string
	Usage        *TokenUsage
}

// Blocked reports whether a content filter stopped the response, either on the
// prompt or on the candidate.
func (r RawResponse) Blocked() bool {
	if r.BlockReason != "" {
		return true
	}
	switch r.FinishReason {
	case FinishReasonSafety, "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "IMAGE_SAFETY":
		return true
	default:
		return false
	}
}

const FinishReasonSafety = "SAFETY"
