package notion

import (
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleProp(t *testing.T) {
	p := TitleProp("Acme Corp / run 42")
	assert.Equal(t, notionapi.PropertyTypeTitle, p.Type)
	require.Len(t, p.Title, 1)
	assert.Equal(t, "Acme Corp / run 42", p.Title[0].Text.Content)
}

func TestRichTextProp_ShortText(t *testing.T) {
	p := RichTextProp("short diagnosis")
	assert.Equal(t, notionapi.PropertyTypeRichText, p.Type)
	require.Len(t, p.RichText, 1)
	assert.Equal(t, "short diagnosis", p.RichText[0].Text.Content)
}

func TestRichTextProp_SplitsLongText(t *testing.T) {
	long := strings.Repeat("x", 4100)
	p := RichTextProp(long)

	require.Len(t, p.RichText, 3)
	assert.Len(t, p.RichText[0].Text.Content, 2000)
	assert.Len(t, p.RichText[1].Text.Content, 2000)
	assert.Len(t, p.RichText[2].Text.Content, 100)

	var joined strings.Builder
	for _, rt := range p.RichText {
		joined.WriteString(rt.Text.Content)
	}
	assert.Equal(t, long, joined.String())
}

func TestRichTextProp_Empty(t *testing.T) {
	p := RichTextProp("")
	require.Len(t, p.RichText, 1)
	assert.Equal(t, "", p.RichText[0].Text.Content)
}

func TestRichTextChunks_MultibyteBoundary(t *testing.T) {
	// 2001 runes of a multibyte character must split on rune boundaries.
	text := strings.Repeat("é", 2001)
	chunks := richTextChunks(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 2000, len([]rune(chunks[0].Text.Content)))
	assert.Equal(t, 1, len([]rune(chunks[1].Text.Content)))
}

func TestNumberProp(t *testing.T) {
	p := NumberProp(0.7375)
	assert.Equal(t, notionapi.PropertyTypeNumber, p.Type)
	assert.InDelta(t, 0.7375, p.Number, 1e-9)
}

func TestSelectProp(t *testing.T) {
	p := SelectProp("exhausted")
	assert.Equal(t, notionapi.PropertyTypeSelect, p.Type)
	assert.Equal(t, "exhausted", p.Select.Name)
}

func TestStatusProp(t *testing.T) {
	p := StatusProp("Needs Review")
	assert.Equal(t, "Needs Review", p.Status.Name)
}

func TestDateProp(t *testing.T) {
	ts := time.Date(2025, 11, 5, 12, 30, 0, 0, time.UTC)
	p := DateProp(ts)
	assert.Equal(t, notionapi.PropertyTypeDate, p.Type)
	require.NotNil(t, p.Date)
	require.NotNil(t, p.Date.Start)
	assert.Equal(t, ts, time.Time(*p.Date.Start))
}

func TestHeading2Block(t *testing.T) {
	b := Heading2Block("Failure Analysis")
	assert.Equal(t, notionapi.BlockTypeHeading2, b.Type)
	require.Len(t, b.Heading2.RichText, 1)
	assert.Equal(t, "Failure Analysis", b.Heading2.RichText[0].Text.Content)
}

func TestParagraphBlock(t *testing.T) {
	b := ParagraphBlock("The generator omitted required timeline phases.")
	assert.Equal(t, notionapi.BlockTypeParagraph, b.Type)
	require.Len(t, b.Paragraph.RichText, 1)
}

func TestBulletedItemBlock(t *testing.T) {
	b := BulletedItemBlock("timeline.phases: expected at least 1 item, found none")
	assert.Equal(t, notionapi.BlockTypeBulletedListItem, b.Type)
	require.Len(t, b.BulletedListItem.RichText, 1)
}
