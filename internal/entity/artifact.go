package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

const artifactTitlePromptLimit = 50

// DbArtifact is the record of one successful paid generation.
type DbArtifact struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UserID           uint       `gorm:"column:user_id;index;not null" json:"user_id"`
	Kind             Modality   `gorm:"column:kind;type:varchar(16);index;not null" json:"kind"`
	Title            string     `gorm:"column:title;type:varchar(255)" json:"title"`
	Prompt           string     `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Payload          string     `gorm:"column:payload;type:text" json:"payload"`
	StorageKey       string     `gorm:"column:storage_key;type:varchar(512)" json:"storage_key,omitempty"`
	ProviderID       ProviderID `gorm:"column:provider_id;type:varchar(64);index" json:"provider"`
	ModelID          string     `gorm:"column:model_id;type:varchar(255)" json:"model"`
	SourceProviderID ProviderID `gorm:"column:source_provider_id;type:varchar(64)" json:"source_provider,omitempty"`
	Metadata         JSONMap    `gorm:"column:metadata;type:text" json:"metadata,omitempty"`
}

// TableName overrides default name.
func (DbArtifact) TableName() string {
	return "generation_artifacts"
}

// ArtifactTitle builds the display title from the prompt.
func ArtifactTitle(kind Modality, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) > artifactTitlePromptLimit {
		prompt = string([]rune(prompt)[:artifactTitlePromptLimit])
	}
	if kind == ModVideo {
		return "Generated Video: " + prompt
	}
	return "Generated Image: " + prompt
}

// ArtifactQuery filters artifact listings. UserID 0 lists every account.
type ArtifactQuery struct {
	BaseParams
	UserID uint   `json:"-" form:"-"`
	Kind   string `json:"kind" form:"kind" query:"kind"`
}

// ArtifactStats summarises an account's artifacts.
type ArtifactStats struct {
	Total  int64 `json:"total"`
	Images int64 `json:"images"`
	Videos int64 `json:"videos"`
}

// ArtifactView is the client-facing artifact with a resolved URL.
type ArtifactView struct {
	DbArtifact
	URL string `json:"url"`
}

type ArtifactListResponse struct {
	Artifacts []ArtifactView `json:"artifacts"`
	Meta      *Meta          `json:"meta"`
}
