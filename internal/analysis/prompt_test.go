package analysis

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsEmptyInput(t *testing.T) {
	cases := map[string]Request{
		"zero value":     {HeadlineCount: 5},
		"blank text":     {Text: "   \n\t", HeadlineCount: 5},
		"empty image":    {Image: &Image{MIMEType: "image/png"}, HeadlineCount: 5},
		"no count given": {},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(req)
			require.ErrorIs(t, err, ErrNoInput)
		})
	}
}

func TestBuildRejectsHeadlineCountOutOfRange(t *testing.T) {
	for _, n := range []int{0, 4, 26, -1} {
		_, err := Build(Request{Text: "text", HeadlineCount: n})
		require.ErrorIs(t, err, ErrInvalidHeadlineCount, "count %d", n)
	}
}

func TestBuildInstructionContainsHeadlineCount(t *testing.T) {
	for n := MinHeadlineCount; n <= MaxHeadlineCount; n++ {
		p, err := Build(Request{Text: "Some article.", HeadlineCount: n})
		require.NoError(t, err)
		assert.Contains(t, p.Instruction, "exactly "+strconv.Itoa(n)+" objects")
	}
}

func TestBuildTextPayload(t *testing.T) {
	p, err := Build(Request{Text: "The cow eat grass.", HeadlineCount: 5})
	require.NoError(t, err)

	assert.Contains(t, p.Instruction, "5")
	assert.Contains(t, p.Instruction, "The cow eat grass.")
	assert.Contains(t, p.Instruction, ErrorMarkerOpen)
	assert.Contains(t, p.Instruction, CorrectionMarkerOpen)
	assert.Nil(t, p.Image)
	assert.Equal(t, "application/json", p.ResponseMIMEType)
	require.NotNil(t, p.Schema)
	assert.Equal(t, []string{"annotatedText", "corrections", "headlines"}, p.Schema.PropertyOrdering)

	annotated := strings.Index(p.Instruction, `"annotatedText"`)
	corrections := strings.Index(p.Instruction, `"corrections"`)
	headlines := strings.Index(p.Instruction, `"headlines"`)
	assert.True(t, annotated < corrections && corrections < headlines, "fields must be requested in order")
}

func TestBuildImageTakesPrecedence(t *testing.T) {
	p, err := Build(Request{
		Text:          "ignored text",
		Image:         &Image{MIMEType: "image/webp", Base64: "AAAA"},
		HeadlineCount: 10,
	})
	require.NoError(t, err)

	require.NotNil(t, p.Image)
	assert.Equal(t, "image/webp", p.Image.MIMEType)
	assert.Equal(t, "AAAA", p.Image.Base64)
	assert.True(t, strings.HasPrefix(p.Instruction, transcriptionDirective))
	assert.NotContains(t, p.Instruction, "ignored text")
	assert.Contains(t, p.Instruction, "10")
}

func TestBuildIsDeterministic(t *testing.T) {
	req := Request{Text: "same", HeadlineCount: 15}
	a, err := Build(req)
	require.NoError(t, err)
	b, err := Build(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
