// Package models defines the shared data types exchanged between the
// governance layer's components: parsed design-file identifiers, token
// usage records, cost limits, and the request/response shapes of the
// remote design and generation APIs.
package models

import (
	"encoding/json"
	"time"
)

// LanguageModelProvider identifies an upstream API provider.
type LanguageModelProvider string

const (
	// ProviderFigma is the Figma design-file API.
	ProviderFigma LanguageModelProvider = "figma"
	// ProviderOpenAI is the OpenAI chat-completion API.
	ProviderOpenAI LanguageModelProvider = "openai"
	// ProviderGitHub is the GitHub source-control API.
	ProviderGitHub LanguageModelProvider = "github"
)

// ResourceIdentifier is the normalized form of a user-supplied design-file
// reference. FileKey is the canonical handle used for every downstream
// request; when IsValid is false FileKey is always empty and the value must
// never be used to build a request.
type ResourceIdentifier struct {
	FileKey     string `json:"file_key"`
	NodeID      string `json:"node_id,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	IsValid     bool   `json:"is_valid"`
	OriginalURL string `json:"original_url"`
}

// TokenUsage reports the token counts of a single generation call.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// UsageRecord is one billable generation call. Records are append-only and
// immutable once created; aggregate queries filter by age but the raw log is
// retained for audit and export.
type UsageRecord struct {
	ID               string    `json:"id"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	Timestamp        time.Time `json:"timestamp"`
}

// CostLimits holds the spend ceilings enforced before a generation call is
// dispatched. A ceiling of zero blocks the corresponding capability; it is
// never treated as "unlimited".
type CostLimits struct {
	Daily      float64 `json:"daily" toml:"daily"`
	Monthly    float64 `json:"monthly" toml:"monthly"`
	PerRequest float64 `json:"per_request" toml:"per_request"`
}

// CostLimitsPatch is a partial update to CostLimits. Nil fields leave the
// current value unchanged.
type CostLimitsPatch struct {
	Daily      *float64 `json:"daily,omitempty"`
	Monthly    *float64 `json:"monthly,omitempty"`
	PerRequest *float64 `json:"per_request,omitempty"`
}

// UsageTotals aggregates tokens and cost over a time window.
type UsageTotals struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// UsageReport is a read-only projection of the usage log for display.
type UsageReport struct {
	Daily    UsageTotals   `json:"daily"`
	Monthly  UsageTotals   `json:"monthly"`
	Lifetime UsageTotals   `json:"lifetime"`
	Requests int           `json:"requests"`
	Limits   CostLimits    `json:"limits"`
	Recent   []UsageRecord `json:"recent"`
}

// UsageStats summarizes the lifetime of the usage log.
type UsageStats struct {
	TotalRequests     int       `json:"total_requests"`
	LifetimeTokens    int       `json:"lifetime_tokens"`
	LifetimeCost      float64   `json:"lifetime_cost"`
	AverageCost       float64   `json:"average_cost_per_request"`
	FirstRequestAt    time.Time `json:"first_request_at,omitempty"`
	MostRecentRequest time.Time `json:"most_recent_request,omitempty"`
}

// DesignFile is the metadata and document tree of a remote design file.
// The document tree is kept opaque; interpreting it is a collaborator
// concern, not part of this layer.
type DesignFile struct {
	Name         string          `json:"name"`
	LastModified string          `json:"lastModified"`
	Version      string          `json:"version"`
	ThumbnailURL string          `json:"thumbnailUrl,omitempty"`
	Document     json.RawMessage `json:"document,omitempty"`
}

// TeamComponent is one published component in a team library.
type TeamComponent struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	NodeID       string `json:"node_id,omitempty"`
	FileKey      string `json:"file_key,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// GenerationOptions tune a text-generation call. Zero values fall back to
// the service defaults.
type GenerationOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerationResult is the outcome of a successful text-generation call.
type GenerationResult struct {
	Content string     `json:"content"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
}
