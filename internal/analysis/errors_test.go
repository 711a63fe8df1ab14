package analysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindTransportFailure, Attempts: 3, StatusCode: 503})

	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.NotErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorMessageIncludesAttempts(t *testing.T) {
	err := &Error{Kind: KindTransportFailure, Message: "upstream request failed", Attempts: 3, StatusCode: 500}
	assert.Equal(t, "upstream request failed (status 500, after 3 attempts)", err.Error())

	err = &Error{Kind: KindEmptyResponse, Attempts: 3}
	assert.Equal(t, "empty_response (after 3 attempts)", err.Error())
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(&Error{Kind: KindTransportFailure, Attempts: 3}), "3 attempts")
	assert.Contains(t, UserMessage(ErrSafetyBlocked), "revise")
	assert.Equal(t, "Analysis failed.", UserMessage(errors.New("other")))
}
