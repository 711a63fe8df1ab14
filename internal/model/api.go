package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
	AppID       string `json:"app_id,omitempty"`
}

type IdentityResponse struct {
	Ready     bool   `json:"ready"`
	UserID    string `json:"user_id,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

type HeadlineCountsResponse struct {
	Options []int `json:"options"`
	Default int   `json:"default"`
}

// AnalysisRequest is the JSON form of a submission. Multipart submissions use
// the fields text, file and headline_count instead.
type AnalysisRequest struct {
	Text          string `json:"text"`
	ImageBase64   string `json:"image_base64,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
	HeadlineCount int    `json:"headline_count,omitempty"`
}

type Correction struct {
	OriginalError string `json:"original_error"`
	CorrectedText string `json:"corrected_text"`
}

type Headline struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
}

type AnalysisResponse struct {
	SessionID     string       `json:"session_id"`
	AnnotatedText string       `json:"annotated_text"`
	Corrections   []Correction `json:"corrections"`
	Headlines     []Headline   `json:"headlines"`
	CompletedAt   string       `json:"completed_at,omitempty"`
	DurationMS    int64        `json:"duration_ms,omitempty"`
}
