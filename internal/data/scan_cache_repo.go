package data

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"imagescan/internal/biz"
	"imagescan/internal/metrics"
	"imagescan/internal/pkg/bloom"
	pkghash "imagescan/internal/pkg/hash"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	scanCacheColumns = "hash, ocr, ocr_final, api, api IS NOT NULL AS has_api, phash, created_at, updated_at"
	// similarCandidates caps the rows a near-duplicate lookup compares.
	similarCandidates = 64
	rebuildPageSize   = 1000
)

type scanCacheRepo struct {
	store *QueryStore
	// seen is optional. Once ready, a hash it has never seen skips the lookup.
	seen  *bloom.Filter
	ready atomic.Bool
	log   *log.Helper
}

// NewScanCacheRepo creates a new ScanCacheRepo. With a prefilter, the filter
// is rebuilt from the table in the background and lookups go to the
// database until the rebuild completes.
func NewScanCacheRepo(store *QueryStore, seen *bloom.Filter, logger log.Logger) (biz.ScanCacheRepo, func()) {
	r := newScanCacheRepo(store, seen, logger)
	if seen == nil {
		return r, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.rebuild(ctx); err != nil {
			r.log.Errorf("scan cache prefilter rebuild: %v; lookups stay unfiltered", err)
		}
	}()
	return r, func() {
		cancel()
		<-done
	}
}

func newScanCacheRepo(store *QueryStore, seen *bloom.Filter, logger log.Logger) *scanCacheRepo {
	return &scanCacheRepo{
		store: store,
		seen:  seen,
		log:   log.NewHelper(logger),
	}
}

// rebuild clears the prefilter and refills it with every stored hash.
// Upserts that race with it add their own hash after the reset.
func (r *scanCacheRepo) rebuild(ctx context.Context) error {
	start := time.Now()
	if err := r.seen.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	after, total := "", 0
	for {
		rows, err := r.store.Execute(ctx,
			"SELECT hash FROM scan_cache WHERE hash > ? ORDER BY hash LIMIT ?",
			after, rebuildPageSize)
		if err != nil {
			return err
		}
		members := make([][]byte, len(rows))
		for i, row := range rows {
			members[i] = pkghash.FastHash(row["hash"])
		}
		if err := r.seen.AddMany(ctx, members); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		total += len(rows)
		if len(rows) < rebuildPageSize {
			break
		}
		after = rows[len(rows)-1]["hash"]
	}

	r.ready.Store(true)
	r.log.Infof("scan cache prefilter rebuilt with %d hashes in %s", total, time.Since(start))
	return nil
}

func (r *scanCacheRepo) Get(ctx context.Context, hash string) (*biz.CachedResult, error) {
	if r.seen != nil && r.ready.Load() {
		ok, err := r.seen.Exists(ctx, pkghash.FastHash(hash))
		if err != nil {
			r.log.Warnf("bloom lookup for %s: %v", hash, err)
		} else if !ok {
			metrics.CacheLookupsTotal.WithLabelValues("skipped").Inc()
			return nil, nil
		}
	}

	rows, err := r.store.Execute(ctx,
		"SELECT "+scanCacheColumns+" FROM scan_cache WHERE hash = ?",
		hash)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return toBizCachedResult(rows[0]), nil
}

// FindSimilar fetches rows sharing at least one 16-bit band with phash and
// keeps the closest. Any hash within three bits shares a band.
func (r *scanCacheRepo) FindSimilar(ctx context.Context, phash int64, maxDistance int) (*biz.CachedResult, error) {
	if maxDistance > biz.MaxNearDuplicateDistance {
		maxDistance = biz.MaxNearDuplicateDistance
	}
	b := phashBands(phash)
	rows, err := r.store.Execute(ctx,
		"SELECT "+scanCacheColumns+" FROM scan_cache WHERE api IS NOT NULL AND ("+
			"(phash & 65535) = ? OR ((phash >> 16) & 65535) = ? OR "+
			"((phash >> 32) & 65535) = ? OR ((phash >> 48) & 65535) = ?) LIMIT ?",
		b[0], b[1], b[2], b[3], similarCandidates)
	if err != nil {
		return nil, err
	}

	var (
		best     *biz.CachedResult
		bestDist = maxDistance + 1
	)
	for _, row := range rows {
		res := toBizCachedResult(row)
		if res.PHash == nil {
			continue
		}
		if d := pkghash.HammingDistance(uint64(*res.PHash), uint64(phash)); d < bestDist {
			best, bestDist = res, d
		}
	}
	if best != nil {
		metrics.CacheLookupsTotal.WithLabelValues("similar").Inc()
	}
	return best, nil
}

func phashBands(phash int64) [4]int64 {
	u := uint64(phash)
	return [4]int64{
		int64(u & 0xFFFF),
		int64((u >> 16) & 0xFFFF),
		int64((u >> 32) & 0xFFFF),
		int64((u >> 48) & 0xFFFF),
	}
}

// Final text is kept when the incoming text is not final.
const upsertOCR = "ocr = CASE WHEN EXCLUDED.ocr_final OR NOT scan_cache.ocr_final " +
	"THEN EXCLUDED.ocr ELSE scan_cache.ocr END, " +
	"ocr_final = scan_cache.ocr_final OR EXCLUDED.ocr_final, "

func (r *scanCacheRepo) Upsert(ctx context.Context, result *biz.CachedResult) error {
	var phash any
	if result.PHash != nil {
		phash = *result.PHash
	}

	var err error
	if result.API == nil {
		_, err = r.store.Execute(ctx,
			"INSERT INTO scan_cache (hash, ocr, ocr_final, phash) VALUES (?, ?, ?, ?) "+
				"ON CONFLICT (hash) DO UPDATE SET "+upsertOCR+
				"phash = COALESCE(EXCLUDED.phash, scan_cache.phash), updated_at = now()",
			result.Hash, result.OCR, result.OCRFinal, phash)
	} else {
		_, err = r.store.Execute(ctx,
			"INSERT INTO scan_cache (hash, ocr, ocr_final, api, phash) VALUES (?, ?, ?, ?, ?) "+
				"ON CONFLICT (hash) DO UPDATE SET "+upsertOCR+"api = EXCLUDED.api, "+
				"phash = COALESCE(EXCLUDED.phash, scan_cache.phash), updated_at = now()",
			result.Hash, result.OCR, result.OCRFinal, string(result.API), phash)
	}
	if err != nil {
		return err
	}

	if r.seen != nil {
		if err := r.seen.Add(ctx, pkghash.FastHash(result.Hash)); err != nil {
			r.log.Warnf("bloom add for %s: %v", result.Hash, err)
		}
	}
	return nil
}

func toBizCachedResult(row Row) *biz.CachedResult {
	res := &biz.CachedResult{
		Hash:     row["hash"],
		OCR:      row["ocr"],
		OCRFinal: row["ocr_final"] == "true",
	}
	if row["has_api"] == "true" {
		res.API = []byte(row["api"])
	}
	if v, err := strconv.ParseInt(row["phash"], 10, 64); err == nil {
		res.PHash = &v
	}
	res.CreatedAt, _ = time.Parse(time.RFC3339, row["created_at"])
	res.UpdatedAt, _ = time.Parse(time.RFC3339, row["updated_at"])
	return res
}
