package data

import (
	"context"
	"strconv"

	"imagescan/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

type ruleRepo struct {
	store *QueryStore
	log   *log.Helper
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(store *QueryStore, logger log.Logger) biz.RuleRepo {
	return &ruleRepo{
		store: store,
		log:   log.NewHelper(logger),
	}
}

func (r *ruleRepo) ListPatterns(ctx context.Context, guildID string) ([]string, error) {
	rows, err := r.store.Execute(ctx, "SELECT pattern FROM guild_patterns WHERE guild_id = ?", guildID)
	if err != nil {
		return nil, err
	}
	patterns := make([]string, 0, len(rows))
	for _, row := range rows {
		patterns = append(patterns, row["pattern"])
	}
	return patterns, nil
}

func (r *ruleRepo) CountPatterns(ctx context.Context, guildID string) (int64, error) {
	rows, err := r.store.Execute(ctx, "SELECT COUNT(*) AS n FROM guild_patterns WHERE guild_id = ?", guildID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(rows[0]["n"], 10, 64)
}
