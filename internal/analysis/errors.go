package analysis

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNoInput              Kind = "no_input"
	KindInvalidHeadlineCount Kind = "invalid_headline_count"
	KindTransportFailure     Kind = "transport_failure"
	KindSafetyBlocked        Kind = "safety_blocked"
	KindEmptyResponse        Kind = "empty_response"
	KindMalformedJSON        Kind = "malformed_json"
	KindFileConversion       Kind = "file_conversion"
)

// Error is the single failure type produced by an analysis submission. Sentinels
// below match any *Error of the same Kind through errors.Is.
type Error struct {
	Kind       Kind
	Attempts   int
	StatusCode int
	Message    string
	Raw        string
	Cause      error
}

var (
	ErrNoInput              = &Error{Kind: KindNoInput}
	ErrInvalidHeadlineCount = &Error{Kind: KindInvalidHeadlineCount}
	ErrTransportFailure     = &Error{Kind: KindTransportFailure}
	ErrSafetyBlocked        = &Error{Kind: KindSafetyBlocked}
	ErrEmptyResponse        = &Error{Kind: KindEmptyResponse}
	ErrMalformedJSON        = &Error{Kind: KindMalformedJSON}
	ErrFileConversion       = &Error{Kind: KindFileConversion}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Attempts > 0 && e.StatusCode > 0:
		msg = fmt.Sprintf("%s (status %d, after %d attempts)", msg, e.StatusCode, e.Attempts)
	case e.Attempts > 0:
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage is the single human-readable line shown to the editor for err.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNoInput:
		return "Please paste article text or choose an image before analyzing."
	case KindInvalidHeadlineCount:
		return fmt.Sprintf("Headline count must be between %d and %d.", MinHeadlineCount, MaxHeadlineCount)
	case KindSafetyBlocked:
		return "The request was blocked by the content safety filter. Please revise the text and try again."
	case KindFileConversion:
		return "The selected file could not be read as an image. Please choose a different file."
	case KindMalformedJSON:
		return "The analysis service returned an unreadable response. Please try again."
	case KindEmptyResponse, KindTransportFailure:
		var e *Error
		if errors.As(err, &e) && e.Attempts > 0 {
			return fmt.Sprintf("The analysis service could not be reached after %d attempts. Please try again later.", e.Attempts)
		}
		return "The analysis service could not be reached. Please try again later."
	default:
		return "Analysis failed."
	}
}
