package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForTransportTruncatesRawText(t *testing.T) {
	doc := EmptyParsedDocument()
	doc.RawText = strings.Repeat("语", 6000)
	doc.Skills = []string{"Go"}

	out := doc.ForTransport(5000)
	assert.Equal(t, 5000, len([]rune(out.RawText)))
	assert.Equal(t, 6000, len([]rune(doc.RawText)), "原对象不应被修改")

	out.Skills[0] = "Rust"
	assert.Equal(t, "Go", doc.Skills[0])
}

func TestForTransportShortText(t *testing.T) {
	doc := EmptyParsedDocument()
	doc.RawText = "short"
	assert.Equal(t, "short", doc.ForTransport(5000).RawText)
	assert.NotNil(t, doc.ForTransport(0).Links)
}

func TestEnumValid(t *testing.T) {
	assert.True(t, CompletenessOffTopic.Valid())
	assert.False(t, Completeness("mostly").Valid())
	assert.True(t, RecommendationNeedsImprovement.Valid())
	assert.False(t, Recommendation("hire").Valid())
}
