package data

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"imagescan/internal/biz"
	"imagescan/internal/pkg/bloom"
	pkgredis "imagescan/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyBitmap behaves like a Redis bloom key with no bits set.
type emptyBitmap struct {
	calls int
	args  [][]string
	dels  []string
}

func (e *emptyBitmap) ScriptRun(_ context.Context, _ *goredis.Script, _ []string, args ...any) (any, error) {
	e.calls++
	e.args = append(e.args, args[0].([]string))
	return nil, pkgredis.Nil
}

func (e *emptyBitmap) Del(_ context.Context, keys ...string) (int64, error) {
	e.dels = append(e.dels, keys...)
	return int64(len(keys)), nil
}

func newTestScanCacheRepo(q *fakeQuerier, seen *bloom.Filter) *scanCacheRepo {
	return newScanCacheRepo(newQueryStore(q, time.Second, log.DefaultLogger), seen, log.DefaultLogger)
}

func TestScanCacheRepo_UpsertWithoutAPI(t *testing.T) {
	q := &fakeQuerier{}
	repo := newTestScanCacheRepo(q, nil)

	require.NoError(t, repo.Upsert(context.Background(), &biz.CachedResult{Hash: "h1", OCR: "text"}))

	last := q.last()
	assert.Contains(t, last.sql, "ON CONFLICT (hash) DO UPDATE")
	assert.NotContains(t, last.sql, "api")
	assert.Equal(t, []any{"h1", "text", false, nil}, last.args)
}

func TestScanCacheRepo_UpsertWithAPI(t *testing.T) {
	q := &fakeQuerier{}
	repo := newTestScanCacheRepo(q, nil)
	phash := int64(7)

	require.NoError(t, repo.Upsert(context.Background(), &biz.CachedResult{
		Hash: "h1", OCR: "text", OCRFinal: true, API: []byte(`{"status":"success"}`), PHash: &phash,
	}))

	last := q.last()
	assert.Contains(t, last.sql, "api = EXCLUDED.api")
	assert.Equal(t, []any{"h1", "text", true, `{"status":"success"}`, int64(7)}, last.args)
	assert.Equal(t, 5, strings.Count(last.sql, "$"))
}

func TestScanCacheRepo_UpsertKeepsFinalText(t *testing.T) {
	q := &fakeQuerier{}
	repo := newTestScanCacheRepo(q, nil)

	require.NoError(t, repo.Upsert(context.Background(), &biz.CachedResult{Hash: "h1"}))

	sql := q.last().sql
	assert.Contains(t, sql, "CASE WHEN EXCLUDED.ocr_final OR NOT scan_cache.ocr_final THEN EXCLUDED.ocr ELSE scan_cache.ocr END")
	assert.Contains(t, sql, "ocr_final = scan_cache.ocr_final OR EXCLUDED.ocr_final")
}

func TestScanCacheRepo_Get(t *testing.T) {
	q := &fakeQuerier{respond: func(_ string, args []any) (*fakeRows, error) {
		if args[0] != "h1" {
			return &fakeRows{}, nil
		}
		return &fakeRows{
			columns: []string{"hash", "ocr", "ocr_final", "api", "has_api", "phash", "created_at", "updated_at"},
			values: [][]any{{"h1", "cached text", true, `{"a":1}`, true, int64(99),
				time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}},
		}, nil
	}}
	repo := newTestScanCacheRepo(q, nil)

	got, err := repo.Get(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cached text", got.OCR)
	assert.True(t, got.OCRFinal)
	assert.Equal(t, []byte(`{"a":1}`), got.API)
	require.NotNil(t, got.PHash)
	assert.EqualValues(t, 99, *got.PHash)
	assert.Equal(t, 2024, got.CreatedAt.Year())

	missing, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScanCacheRepo_FindSimilar(t *testing.T) {
	const target = int64(0x0F0F_0000_1234_FFFF)
	q := &fakeQuerier{respond: func(_ string, _ []any) (*fakeRows, error) {
		return &fakeRows{
			columns: []string{"hash", "ocr", "ocr_final", "api", "has_api", "phash"},
			values: [][]any{
				{"far", "", true, `{"far":1}`, true, target ^ 0xFF},
				{"near", "", true, `{"near":1}`, true, target ^ 0x3},
				{"nearer", "", true, `{"nearer":1}`, true, target ^ 0x1},
				{"undecodable", "", true, `{}`, true, nil},
			},
		}, nil
	}}
	repo := newTestScanCacheRepo(q, nil)

	got, err := repo.FindSimilar(context.Background(), target, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "nearer", got.Hash)
	assert.Equal(t, []any{int64(0xFFFF), int64(0x1234), int64(0x0000), int64(0x0F0F), similarCandidates}, q.last().args)

	none, err := repo.FindSimilar(context.Background(), target^0xFFFF_FFFF, 2)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestScanCacheRepo_BloomSkipsUnseenHashOnceRebuilt(t *testing.T) {
	q := &fakeQuerier{}
	bitmap := &emptyBitmap{}
	seen := bloom.NewBloomFilter(bitmap, "test", 1024, 3)
	repo := newTestScanCacheRepo(q, seen)

	_, err := repo.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Len(t, q.queries, 1, "lookups go to the database until the prefilter is rebuilt")
	assert.Equal(t, 0, bitmap.calls)

	repo.ready.Store(true)
	got, err := repo.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, q.queries, 1)
	assert.Equal(t, 1, bitmap.calls)

	require.NoError(t, repo.Upsert(context.Background(), &biz.CachedResult{Hash: "h1"}))
	assert.Len(t, q.queries, 2)
	assert.Equal(t, 2, bitmap.calls)
}

func TestScanCacheRepo_Rebuild(t *testing.T) {
	q := &fakeQuerier{respond: func(_ string, args []any) (*fakeRows, error) {
		if args[0] != "" {
			return &fakeRows{columns: []string{"hash"}}, nil
		}
		return &fakeRows{columns: []string{"hash"}, values: [][]any{{"h1"}, {"h2"}}}, nil
	}}
	bitmap := &emptyBitmap{}
	seen := bloom.NewBloomFilter(bitmap, "test", 1024, 3)
	repo := newTestScanCacheRepo(q, seen)

	require.NoError(t, repo.rebuild(context.Background()))
	assert.True(t, repo.ready.Load())
	assert.Equal(t, []string{"test:1024"}, bitmap.dels)
	require.Len(t, bitmap.args, 1)
	assert.Len(t, bitmap.args[0], 6, "both hashes are added in one call")
	require.Len(t, q.queries, 1)
	assert.Equal(t, []any{"", rebuildPageSize}, q.queries[0].args)
}

func TestScanCacheRepo_RebuildFailureKeepsLookupsUnfiltered(t *testing.T) {
	q := &fakeQuerier{respond: func(string, []any) (*fakeRows, error) {
		return nil, errors.New("connection refused")
	}}
	seen := bloom.NewBloomFilter(&emptyBitmap{}, "test", 1024, 3)
	repo := newTestScanCacheRepo(q, seen)

	assert.Error(t, repo.rebuild(context.Background()))
	assert.False(t, repo.ready.Load())
}

func TestGuildRepo(t *testing.T) {
	q := &fakeQuerier{respond: func(sql string, _ []any) (*fakeRows, error) {
		switch {
		case strings.HasPrefix(sql, "SELECT premium_subscription"):
			return &fakeRows{columns: []string{"premium_subscription"}, values: [][]any{{"gold"}}}, nil
		case strings.HasPrefix(sql, "SELECT string_agg"):
			return &fakeRows{columns: []string{"selected"}, values: [][]any{{"nudity,weapon"}}}, nil
		case strings.HasPrefix(sql, "SELECT guild_id, model"):
			return &fakeRows{
				columns: []string{"guild_id", "model", "category", "threshold"},
				values: [][]any{
					{"g1", "nudity", "nudity.raw", 0.8},
					{"g1", "weapon", "weapon", "bad"},
				},
			}, nil
		case strings.HasPrefix(sql, "SELECT guild_id, log_channel"):
			return &fakeRows{
				columns: []string{"guild_id", "log_channel", "embed_title", "embed_body", "premium_subscription", "calls_this_month", "calls_limit"},
				values:  [][]any{{"g1", "log1", "", "", "gold", int64(3), int64(100)}},
			}, nil
		}
		return &fakeRows{}, nil
	}}
	repo := NewGuildRepo(newQueryStore(q, time.Second, log.DefaultLogger), log.DefaultLogger)
	ctx := context.Background()

	ok, err := repo.Entitled(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, q.last().sql, "calls_this_month < calls_limit")

	models, err := repo.ActiveModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nudity,weapon", models)

	filters, err := repo.ListFilters(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "nudity.raw", filters[0].Category)
	assert.Equal(t, 0.8, filters[0].Threshold)

	cfg, err := repo.GetConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "log1", cfg.LogChannel)
	assert.EqualValues(t, 3, cfg.CallsThisMonth)
	assert.EqualValues(t, 100, cfg.CallsLimit)

	require.NoError(t, repo.IncrementCalls(ctx, "g1"))
	assert.Equal(t, "UPDATE guild_config SET calls_this_month = calls_this_month + 1 WHERE guild_id = $1", q.last().sql)

	require.NoError(t, repo.ResetCalls(ctx))
	assert.Equal(t, "UPDATE guild_config SET calls_this_month = 0", q.last().sql)
}

func TestRuleRepo(t *testing.T) {
	q := &fakeQuerier{respond: func(sql string, _ []any) (*fakeRows, error) {
		if strings.Contains(sql, "COUNT") {
			return &fakeRows{columns: []string{"n"}, values: [][]any{{int64(2)}}}, nil
		}
		return &fakeRows{columns: []string{"pattern"}, values: [][]any{{"nsfw"}, {"free*nitro"}}}, nil
	}}
	repo := NewRuleRepo(newQueryStore(q, time.Second, log.DefaultLogger), log.DefaultLogger)

	patterns, err := repo.ListPatterns(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"nsfw", "free*nitro"}, patterns)

	n, err := repo.CountPatterns(context.Background(), "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
