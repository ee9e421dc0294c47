package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

// richTextMaxLen is Notion's per-element rich text content limit.
const richTextMaxLen = 2000

// richTextChunks splits text into rich text elements that respect Notion's
// per-element length limit.
func richTextChunks(text string) []notionapi.RichText {
	if text == "" {
		return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: ""}}}
	}
	var out []notionapi.RichText
	runes := []rune(text)
	for len(runes) > 0 {
		n := min(len(runes), richTextMaxLen)
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	return out
}

// TitleProp builds a title page property.
func TitleProp(text string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: richTextChunks(text),
	}
}

// RichTextProp builds a rich_text page property, split into chunks if the
// text exceeds Notion's element limit.
func RichTextProp(text string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richTextChunks(text),
	}
}

// NumberProp builds a number page property.
func NumberProp(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: v,
	}
}

// SelectProp builds a select page property.
func SelectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

// StatusProp builds a status page property.
func StatusProp(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{
		Status: notionapi.Status{Name: name},
	}
}

// DateProp builds a date page property from a single timestamp.
func DateProp(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}

// Heading2Block builds a heading_2 content block.
func Heading2Block(text string) notionapi.Heading2Block {
	return notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeHeading2,
		},
		Heading2: notionapi.Heading{
			RichText: richTextChunks(text),
		},
	}
}

// ParagraphBlock builds a paragraph content block.
func ParagraphBlock(text string) notionapi.ParagraphBlock {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: richTextChunks(text),
		},
	}
}

// BulletedItemBlock builds a bulleted_list_item content block.
func BulletedItemBlock(text string) notionapi.BulletedListItemBlock {
	return notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{
			RichText: richTextChunks(text),
		},
	}
}
