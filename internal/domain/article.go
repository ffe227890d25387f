package domain

import (
	"fmt"
	"strings"
)

// Article is a news article as held by the structured store.
type Article struct {
	ArticleID     string
	Title         string
	ReferenceLink string
	Category      string
	Author        string
}

// Canonical column names of a structured row.
const (
	RowKeyArticleID     = "article_id"
	RowKeyTitle         = "title"
	RowKeyReferenceLink = "reference_link"
	RowKeyAuthor        = "author"
	RowKeyCategory      = "category"
)

// StructuredRow is one record returned by the structured store, keyed by column name.
type StructuredRow map[string]any

func (r StructuredRow) text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// ArticleID returns the row's article identifier, or "" if the row has none.
func (r StructuredRow) ArticleID() string { return strings.TrimSpace(r.text(RowKeyArticleID)) }

func (r StructuredRow) Title() string { return r.text(RowKeyTitle) }

// ReferenceLink is returned exactly as stored; callers must not rewrite it.
func (r StructuredRow) ReferenceLink() string { return r.text(RowKeyReferenceLink) }

func (r StructuredRow) Author() string { return r.text(RowKeyAuthor) }

func (r StructuredRow) Category() string { return r.text(RowKeyCategory) }

// Article projects the row onto the Article attributes.
func (r StructuredRow) Article() Article {
	return Article{
		ArticleID:     r.ArticleID(),
		Title:         r.Title(),
		ReferenceLink: r.ReferenceLink(),
		Category:      r.Category(),
		Author:        r.Author(),
	}
}
