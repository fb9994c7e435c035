package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagescan/internal/conf"
	"imagescan/internal/metrics"
	"imagescan/internal/pkg/animation"
	"imagescan/internal/pkg/hash"
	"imagescan/internal/pkg/moderator"
	"imagescan/internal/pkg/ocr"
	"imagescan/internal/pkg/vision"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxUploadBytes is the classification service's upload limit.
	DefaultMaxUploadBytes = 12 * 1024 * 1024
	// DefaultMinDimension is the smallest width or height the service accepts.
	DefaultMinDimension = 50
)

// TextExtractor runs OCR over raw image bytes.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (*ocr.Result, error)
}

// ImageClassifier uploads an image to the remote classification service.
type ImageClassifier interface {
	Classify(ctx context.Context, data []byte, filename, models string) (*vision.Response, error)
}

// MatchSource says which stage found the match.
type MatchSource string

const (
	MatchSourceNone       MatchSource = ""
	MatchSourceText       MatchSource = "text"
	MatchSourceClassifier MatchSource = "classifier"
)

// ScanOutcome summarises one image's trip through the pipeline.
type ScanOutcome struct {
	ScanID      string
	Rejected    *RejectError
	ContentHash string
	CacheHit    bool
	OCRText     string
	Classified  bool
	MatchSource MatchSource
	MatchedRule string
	Action      ActionState
	ProcessedAt time.Time
}

// ScanUsecase runs the moderation pipeline for a single image.
type ScanUsecase struct {
	guard      *Guard
	downloader Downloader
	engine     TextExtractor
	textMod    *moderator.TextModerator
	classifier ImageClassifier
	cache      ScanCacheRepo
	guilds     GuildRepo
	rules      RuleRepo
	actions    *ActionExecutor
	hasher     *hash.PerceptualHasher

	maxUploadBytes int64
	minDimension   int
	// nearDuplicate is the pHash distance within which a stored verdict is
	// reused. Zero turns the lookup off.
	nearDuplicate int

	// ocrGroup lets concurrent scans of identical bytes share one engine run.
	ocrGroup singleflight.Group
	logger   log.Logger
	log      *log.Helper
}

// NewScanUsecase creates a new ScanUsecase. classifier may be nil when
// remote classification is disabled.
func NewScanUsecase(
	cc *conf.Classifier,
	guard *Guard,
	downloader Downloader,
	engine TextExtractor,
	textMod *moderator.TextModerator,
	classifier ImageClassifier,
	cache ScanCacheRepo,
	guilds GuildRepo,
	rules RuleRepo,
	actions *ActionExecutor,
	logger log.Logger,
) *ScanUsecase {
	uc := &ScanUsecase{
		guard:          guard,
		downloader:     downloader,
		engine:         engine,
		textMod:        textMod,
		classifier:     classifier,
		cache:          cache,
		guilds:         guilds,
		rules:          rules,
		actions:        actions,
		hasher:         hash.NewPerceptualHasher(),
		maxUploadBytes: DefaultMaxUploadBytes,
		minDimension:   DefaultMinDimension,
		logger:         logger,
		log:            log.NewHelper(logger),
	}
	if cc != nil {
		if cc.MaxUploadBytes > 0 {
			uc.maxUploadBytes = cc.MaxUploadBytes
		}
		if cc.MinDimension > 0 {
			uc.minDimension = cc.MinDimension
		}
		uc.nearDuplicate = min(max(cc.NearDuplicateDistance, 0), MaxNearDuplicateDistance)
	}
	return uc
}

// Scan admits, downloads and inspects img, acting on the first match. The
// returned error is set only for failures that stopped the scan early;
// admission rejections are reported through ScanOutcome.Rejected.
func (uc *ScanUsecase) Scan(ctx context.Context, img *IncomingImage) (*ScanOutcome, error) {
	outcome := &ScanOutcome{ScanID: uuid.NewString(), Action: ActionStateDone}
	defer func() { outcome.ProcessedAt = time.Now() }()
	logger := log.NewHelper(log.With(uc.logger, "scan.id", outcome.ScanID))

	ctx, span := otel.Tracer("imagescan/biz").Start(ctx, "ScanUsecase.Scan",
		trace.WithAttributes(
			attribute.String("scan.id", outcome.ScanID),
			attribute.String("guild.id", img.GuildID),
		))
	defer span.End()

	ticket, err := uc.guard.Admit(ctx, img)
	if err != nil {
		var rejected *RejectError
		if errors.As(err, &rejected) {
			outcome.Rejected = rejected
			return outcome, nil
		}
		return outcome, err
	}
	defer ticket.Release()

	data, err := uc.downloader.Download(ctx, img.SourceURL)
	if err != nil {
		logger.Warnf("download %s: %v", img.SourceURL, err)
		return outcome, fmt.Errorf("download: %w", err)
	}
	img.Data = data

	if img.Width == 0 && img.Height == 0 {
		if w, h, err := hash.Dimensions(data); err == nil {
			img.Width, img.Height = w, h
			if rejected := uc.guard.CheckArea(w, h); rejected != nil {
				logger.Info(rejected.Error())
				metrics.AdmissionsTotal.WithLabelValues("rejected", rejected.Reason).Inc()
				outcome.Rejected = rejected
				return outcome, nil
			}
		}
	}

	outcome.ContentHash = hash.ContentHash(data)
	result := &CachedResult{Hash: outcome.ContentHash}

	cached, err := uc.cache.Get(ctx, outcome.ContentHash)
	if err != nil {
		logger.Errorf("scan cache lookup for %s: %v", outcome.ContentHash, err)
	}
	if cached != nil && cached.PHash != nil {
		result.PHash = cached.PHash
	} else if ph, err := uc.hasher.ComputeHashFromBytes(data); err == nil {
		v := int64(ph.Hash)
		result.PHash = &v
	}

	if cached != nil && cached.OCRFinal {
		outcome.CacheHit = true
		result.OCR, result.OCRFinal = cached.OCR, true
		logger.Debugf("scan cache hit for %s", outcome.ContentHash)
	} else {
		if cached != nil {
			logger.Infof("cached text for %s came from a failed engine run, extracting again", outcome.ContentHash)
		}
		text := uc.extractText(ctx, outcome.ContentHash, data, logger)
		result.OCR, result.OCRFinal = text.text, text.final
	}
	outcome.OCRText = result.OCR

	patterns, err := uc.rules.ListPatterns(ctx, img.GuildID)
	if err != nil {
		logger.Errorf("list patterns for guild %s: %v", img.GuildID, err)
	}
	if tm := uc.textMod.Moderate(result.OCR, patterns); !tm.IsClean {
		outcome.MatchSource = MatchSourceText
		outcome.MatchedRule = tm.Match.Pattern
		uc.store(ctx, result, logger)
		outcome.Action = uc.actions.Execute(ctx, img, tm.Match.Pattern)
		return outcome, nil
	}

	if !uc.eligible(ctx, img, logger) {
		uc.store(ctx, result, logger)
		return outcome, nil
	}

	if animation.IsAnimated(data) {
		logger.Debugf("detected animated gif, name: %s; not classifying", img.Filename)
		uc.store(ctx, result, logger)
		return outcome, nil
	}

	var body []byte
	if cached != nil && cached.API != nil {
		body = cached.API
		metrics.ClassifyTotal.WithLabelValues("cached").Inc()
	} else if similar := uc.findSimilar(ctx, result.PHash, logger); similar != nil {
		body = similar.API
		metrics.ClassifyTotal.WithLabelValues("near_duplicate").Inc()
		logger.Debugf("reusing classification of %s for %s", similar.Hash, outcome.ContentHash)
	} else {
		body = uc.classify(ctx, img, logger)
	}
	if body == nil {
		uc.store(ctx, result, logger)
		return outcome, nil
	}
	outcome.Classified = true
	result.API = body

	verdict, err := vision.ParseVerdict(body)
	if err != nil {
		logger.Warnf("parse classification verdict: %v", err)
	}
	filters, err := uc.guilds.ListFilters(ctx, img.GuildID)
	if err != nil {
		logger.Errorf("list filters for guild %s: %v", img.GuildID, err)
	}
	uc.store(ctx, result, logger)

	if rule, banned := DecideBan(verdict, filters); banned {
		outcome.MatchSource = MatchSourceClassifier
		outcome.MatchedRule = rule
		outcome.Action = uc.actions.Execute(ctx, img, rule)
	}
	return outcome, nil
}

type extracted struct {
	text  string
	final bool
}

// extractText never fails: engine problems are logged and yield no text
// that is not final.
func (uc *ScanUsecase) extractText(ctx context.Context, contentHash string, data []byte, logger *log.Helper) extracted {
	v, _, _ := uc.ocrGroup.Do(contentHash, func() (any, error) {
		res, err := uc.engine.Extract(ctx, data)
		if res != nil {
			metrics.OCRDuration.Observe(res.Duration.Seconds())
		}
		if err != nil {
			if errors.Is(err, ocr.ErrSpawn) {
				metrics.OCRStatusTotal.WithLabelValues("spawn_failed").Inc()
			}
			logger.Errorf("ocr: %v", err)
			return extracted{}, nil
		}
		metrics.OCRStatusTotal.WithLabelValues(res.Status.String()).Inc()
		if res.Status.Known() {
			if res.Status == ocr.StatusNoError {
				logger.Infof("ocr engine status %d: %s", res.ExitCode, res.Status)
			} else {
				logger.Errorf("ocr engine status %d: %s", res.ExitCode, res.Status)
			}
		}
		return extracted{text: res.Text, final: res.Status.Final()}, nil
	})
	return v.(extracted)
}

// findSimilar looks up a stored classification for a near-duplicate image.
func (uc *ScanUsecase) findSimilar(ctx context.Context, phash *int64, logger *log.Helper) *CachedResult {
	if uc.nearDuplicate <= 0 || phash == nil {
		return nil
	}
	similar, err := uc.cache.FindSimilar(ctx, *phash, uc.nearDuplicate)
	if err != nil {
		logger.Errorf("near-duplicate lookup: %v", err)
		return nil
	}
	if similar == nil || similar.API == nil {
		return nil
	}
	return similar
}

func (uc *ScanUsecase) eligible(ctx context.Context, img *IncomingImage, logger *log.Helper) bool {
	if uc.classifier == nil {
		return false
	}
	if int64(len(img.Data)) >= uc.maxUploadBytes {
		return false
	}
	if !uc.dimensionOK(img.Width) || !uc.dimensionOK(img.Height) {
		return false
	}
	entitled, err := uc.guilds.Entitled(ctx, img.GuildID)
	if err != nil {
		logger.Errorf("check entitlement for guild %s: %v", img.GuildID, err)
		return false
	}
	return entitled
}

func (uc *ScanUsecase) dimensionOK(d int) bool {
	return d == 0 || d >= uc.minDimension
}

// classify charges the community one call before uploading. It returns the
// raw reply body, or nil when there is no usable verdict.
func (uc *ScanUsecase) classify(ctx context.Context, img *IncomingImage, logger *log.Helper) []byte {
	models, err := uc.guilds.ActiveModels(ctx)
	if err != nil {
		logger.Errorf("list active models: %v", err)
		return nil
	}
	if models == "" {
		logger.Debug("no active classification models")
		return nil
	}

	if err := uc.guilds.IncrementCalls(ctx, img.GuildID); err != nil {
		logger.Errorf("increment calls for guild %s: %v", img.GuildID, err)
	}

	resp, err := uc.classifier.Classify(ctx, img.Data, img.Filename, models)
	if err != nil {
		var httpErr *vision.HTTPError
		if errors.As(err, &httpErr) {
			metrics.ClassifyTotal.WithLabelValues(fmt.Sprint(httpErr.StatusCode)).Inc()
			logger.Warnf("classification error: '%s' status: %d", httpErr.Body, httpErr.StatusCode)
		} else {
			metrics.ClassifyTotal.WithLabelValues("unreachable").Inc()
			logger.Warnf("classification error: %v", err)
		}
		return nil
	}
	metrics.ClassifyTotal.WithLabelValues(fmt.Sprint(resp.StatusCode)).Inc()
	return resp.Body
}

// store upserts the scan result. Failures are logged only.
func (uc *ScanUsecase) store(ctx context.Context, result *CachedResult, logger *log.Helper) {
	if err := uc.cache.Upsert(ctx, result); err != nil {
		logger.Errorf("scan cache upsert for %s: %v", result.Hash, err)
	}
}

// DecideBan checks verdict against filters in order. The first score at or
// above its threshold bans, and the returned rule reads "category (score)".
// A verdict reporting a status other than "success" never bans.
func DecideBan(verdict *vision.Verdict, filters []*ModelFilter) (string, bool) {
	if verdict.Empty() {
		return "", false
	}
	if status, ok := verdict.Status(); ok && status != "success" {
		return "", false
	}
	for _, f := range filters {
		score, ok := verdict.Score(f.Category)
		if ok && score >= f.Threshold {
			return fmt.Sprintf("%s (%.2f)", f.Category, score), true
		}
	}
	return "", false
}
