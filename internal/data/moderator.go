package data

import (
	"imagescan/internal/biz"
	"imagescan/internal/conf"
	"imagescan/internal/pkg/bloom"
	"imagescan/internal/pkg/moderator"
	"imagescan/internal/pkg/ocr"
	pkgredis "imagescan/internal/pkg/redis"
	"imagescan/internal/pkg/vision"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultBloomKey  = "imagescan:bloom:scan_cache"
	defaultBloomBits = 1024 * 1024 * 8 // 8 million bits = 1MB
	bloomHashFuncs   = 5
)

// NewTextModerator creates a new TextModerator.
func NewTextModerator(logger log.Logger) *moderator.TextModerator {
	return moderator.NewTextModerator(logger)
}

// NewOCREngine creates the OCR engine adapter from config.
func NewOCREngine(c *conf.OCR, logger log.Logger) biz.TextExtractor {
	cfg := ocr.DefaultConfig()
	if c != nil {
		if c.Command != "" {
			cfg.Command = c.Command
		}
		cfg.Args = c.Args
		cfg.Timeout = c.Timeout.AsDuration()
		cfg.WaitDelay = c.WaitDelay.AsDuration()
	}
	log.NewHelper(logger).Infof("OCR engine: %s %v", cfg.Command, cfg.Args)
	return ocr.NewEngine(cfg, logger)
}

// NewImageClassifier creates the remote classification client, or nil when
// classification is disabled.
func NewImageClassifier(c *conf.Classifier, logger log.Logger) biz.ImageClassifier {
	helper := log.NewHelper(logger)

	if !c.GetEnabled() {
		helper.Info("remote classification disabled, skipping client")
		return nil
	}

	cfg := vision.DefaultConfig()
	cfg.BaseURL = c.Host
	if c.Path != "" {
		cfg.Path = c.Path
	}
	cfg.Username = c.Username
	cfg.Password = c.Password
	if d := c.Timeout.AsDuration(); d > 0 {
		cfg.Timeout = d
	}
	cfg.InsecureSkipVerify = c.InsecureSkipVerify
	if c.Fields.Models != "" {
		cfg.Fields.Models = c.Fields.Models
	}
	if c.Fields.User != "" {
		cfg.Fields.User = c.Fields.User
	}
	if c.Fields.Password != "" {
		cfg.Fields.Password = c.Fields.Password
	}
	if c.Fields.File != "" {
		cfg.Fields.File = c.Fields.File
	}

	if cfg.InsecureSkipVerify {
		helper.Warnf("certificate verification toward %s is disabled", cfg.BaseURL)
	}
	helper.Infof("remote classification via %s%s", cfg.BaseURL, cfg.Path)
	return vision.NewClient(cfg)
}

// NewScanBloom creates the prefilter of content hashes already cached, or nil
// when no Redis is configured.
func NewScanBloom(cache pkgredis.Cache, c *conf.Data) *bloom.Filter {
	if cache == nil {
		return nil
	}
	key, bits := c.Redis.BloomKey, c.Redis.BloomBits
	if key == "" {
		key = defaultBloomKey
	}
	if bits == 0 {
		bits = defaultBloomBits
	}
	return bloom.NewBloomFilter(cache, key, bits, bloomHashFuncs)
}
