package biz

import "context"

// GuildConfig is the per-community moderation configuration.
type GuildConfig struct {
	GuildID             string
	LogChannel          string
	EmbedTitle          string
	EmbedBody           string
	PremiumSubscription string
	CallsThisMonth      int64
	CallsLimit          int64
}

// ModelFilter bans when the verdict score at Category reaches Threshold.
type ModelFilter struct {
	GuildID   string
	Model     string
	Category  string
	Threshold float64
}

// GuildRepo is a repository interface for community configuration.
type GuildRepo interface {
	// GetConfig returns nil, nil when the community has no configuration row.
	GetConfig(ctx context.Context, guildID string) (*GuildConfig, error)
	// Entitled reports whether the community has a classification
	// subscription and calls left this month.
	Entitled(ctx context.Context, guildID string) (bool, error)
	IncrementCalls(ctx context.Context, guildID string) error
	ResetCalls(ctx context.Context) error
	// ActiveModels returns every configured model, comma-joined.
	ActiveModels(ctx context.Context) (string, error)
	ListFilters(ctx context.Context, guildID string) ([]*ModelFilter, error)
}

// RuleRepo is a repository interface for community text patterns.
type RuleRepo interface {
	ListPatterns(ctx context.Context, guildID string) ([]string, error)
	CountPatterns(ctx context.Context, guildID string) (int64, error)
}
