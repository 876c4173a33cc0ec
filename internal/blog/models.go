// Package blog holds the persistent model of the multilingual blog: articles
// with per-language versions, the metadata catalog and the author catalog.
package blog

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ArticlePrefix starts every article id, e.g. "article.00042".
	ArticlePrefix = "article."
	MetadataID    = "metadata"
	AuthorsID     = "authors"
)

// ArticleState is persisted by name.
type ArticleState string

const (
	Draft     ArticleState = "Draft"
	Published ArticleState = "Published"
)

// MetadataType is persisted by name.
type MetadataType string

const (
	MetadataNone     MetadataType = "None"
	MetadataTag      MetadataType = "Tag"
	MetadataCategory MetadataType = "Category"
	MetadataLanguage MetadataType = "Language"
)

var metadataTypes = []MetadataType{MetadataNone, MetadataTag, MetadataCategory, MetadataLanguage}

// ParseMetadataType matches s against the known type names ignoring case.
func ParseMetadataType(s string) (MetadataType, error) {
	for _, t := range metadataTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown metadata type %q", s)
}

// Article is the root document of a blog post. Id is assigned on creation
// and never changes afterwards.
type Article struct {
	ID        string           `json:"id" bson:"id"`
	Name      string           `json:"name" bson:"name"`
	State     ArticleState     `json:"state" bson:"state"`
	Versions  []ArticleVersion `json:"versions" bson:"versions"`
	Created   time.Time        `json:"created" bson:"created"`
	Published time.Time        `json:"published" bson:"published"`
}

// ArticleVersion is one translation of an article. ArticleID always equals
// the id of the owning Article.
type ArticleVersion struct {
	ArticleID    string            `json:"articleId" bson:"articleId"`
	LanguageCode string            `json:"languageCode" bson:"languageCode"`
	Slug         string            `json:"slug" bson:"slug"`
	Title        string            `json:"title" bson:"title"`
	Summary      string            `json:"summary" bson:"summary"`
	Body         string            `json:"body" bson:"body"`
	Author       AuthorInfo        `json:"author" bson:"author"`
	Metadata     []MetadataVersion `json:"metadata" bson:"metadata"`
}

type AuthorInfo struct {
	Name         string `json:"name" bson:"name"`
	Slug         string `json:"slug" bson:"slug"`
	Bio          string `json:"bio" bson:"bio"`
	LanguageCode string `json:"languageCode" bson:"languageCode"`
	AvatarURL    string `json:"avatarUrl" bson:"avatarUrl"`
}

type MetadataVersion struct {
	Slug         string       `json:"slug" bson:"slug"`
	Name         string       `json:"name" bson:"name"`
	LanguageCode string       `json:"languageCode" bson:"languageCode"`
	Type         MetadataType `json:"type" bson:"type"`
}

type MetadataItem struct {
	Name     string            `json:"name" bson:"name"`
	Versions []MetadataVersion `json:"versions" bson:"versions"`
}

// Metadata is the singleton catalog of tags, categories and languages.
// ETag is the revision the document was read at; writes are rejected when
// the stored revision moved on.
type Metadata struct {
	ID    string         `json:"id" bson:"id"`
	Items []MetadataItem `json:"items" bson:"items"`
	ETag  string         `json:"_etag,omitempty" bson:"_etag,omitempty"`
}

type Author struct {
	Name  string       `json:"name" bson:"name"`
	Infos []AuthorInfo `json:"infos" bson:"infos"`
}

// Authors is the singleton author catalog, versioned like Metadata.
type Authors struct {
	ID    string   `json:"id" bson:"id"`
	Items []Author `json:"items" bson:"items"`
	ETag  string   `json:"_etag,omitempty" bson:"_etag,omitempty"`
}

// Language names a blog language in the language itself, e.g. "Česky".
type Language struct {
	LanguageCode string `json:"languageCode" bson:"languageCode"`
	Name         string `json:"name" bson:"name"`
}
