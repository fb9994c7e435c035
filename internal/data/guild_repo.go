package data

import (
	"context"
	"strconv"

	"imagescan/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

type guildRepo struct {
	store *QueryStore
	log   *log.Helper
}

// NewGuildRepo creates a new GuildRepo.
func NewGuildRepo(store *QueryStore, logger log.Logger) biz.GuildRepo {
	return &guildRepo{
		store: store,
		log:   log.NewHelper(logger),
	}
}

func (r *guildRepo) GetConfig(ctx context.Context, guildID string) (*biz.GuildConfig, error) {
	rows, err := r.store.Execute(ctx,
		"SELECT guild_id, log_channel, embed_title, embed_body, premium_subscription, calls_this_month, calls_limit "+
			"FROM guild_config WHERE guild_id = ?",
		guildID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	calls, _ := strconv.ParseInt(row["calls_this_month"], 10, 64)
	limit, _ := strconv.ParseInt(row["calls_limit"], 10, 64)
	return &biz.GuildConfig{
		GuildID:             row["guild_id"],
		LogChannel:          row["log_channel"],
		EmbedTitle:          row["embed_title"],
		EmbedBody:           row["embed_body"],
		PremiumSubscription: row["premium_subscription"],
		CallsThisMonth:      calls,
		CallsLimit:          limit,
	}, nil
}

func (r *guildRepo) Entitled(ctx context.Context, guildID string) (bool, error) {
	rows, err := r.store.Execute(ctx,
		"SELECT premium_subscription FROM guild_config WHERE guild_id = ? AND calls_this_month < calls_limit",
		guildID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && rows[0]["premium_subscription"] != "", nil
}

func (r *guildRepo) IncrementCalls(ctx context.Context, guildID string) error {
	_, err := r.store.Execute(ctx,
		"UPDATE guild_config SET calls_this_month = calls_this_month + 1 WHERE guild_id = ?",
		guildID)
	return err
}

func (r *guildRepo) ResetCalls(ctx context.Context) error {
	_, err := r.store.Execute(ctx, "UPDATE guild_config SET calls_this_month = 0")
	return err
}

func (r *guildRepo) ActiveModels(ctx context.Context) (string, error) {
	rows, err := r.store.Execute(ctx,
		"SELECT string_agg(DISTINCT model, ',') AS selected FROM premium_filter_model")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0]["selected"], nil
}

func (r *guildRepo) ListFilters(ctx context.Context, guildID string) ([]*biz.ModelFilter, error) {
	rows, err := r.store.Execute(ctx,
		"SELECT guild_id, model, category, threshold FROM premium_filter_model WHERE guild_id = ? ORDER BY model, category",
		guildID)
	if err != nil {
		return nil, err
	}
	filters := make([]*biz.ModelFilter, 0, len(rows))
	for _, row := range rows {
		threshold, err := strconv.ParseFloat(row["threshold"], 64)
		if err != nil {
			r.log.Warnf("filter %s/%s for guild %s has bad threshold %q", row["model"], row["category"], guildID, row["threshold"])
			continue
		}
		filters = append(filters, &biz.ModelFilter{
			GuildID:   row["guild_id"],
			Model:     row["model"],
			Category:  row["category"],
			Threshold: threshold,
		})
	}
	return filters, nil
}
