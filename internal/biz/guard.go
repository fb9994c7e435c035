package biz

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"imagescan/internal/conf"
	"imagescan/internal/metrics"
	"imagescan/internal/pkg/glob"

	"github.com/go-kratos/kratos/v2/log"
)

// DefaultMaxPixelArea is the width times height ceiling when none is configured.
const DefaultMaxPixelArea = 33554432

// Reasons an image is not scanned.
const (
	ReasonExtension   = "extension"
	ReasonConcurrency = "concurrency"
	ReasonWhitelist   = "whitelist"
	ReasonPixelArea   = "pixel_area"
	ReasonNoRules     = "no_rules"
)

var imageExtensions = map[string]struct{}{
	".webp": {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// HasImageExtension reports whether the path of rawURL ends in a recognised
// image extension. Query strings and letter case are ignored.
func HasImageExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := imageExtensions[path.Ext(strings.ToLower(u.Path))]
	return ok
}

// RejectError is an expected admission outcome, not a failure.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "image rejected: " + e.Reason
	}
	return fmt.Sprintf("image rejected: %s: %s", e.Reason, e.Detail)
}

// Ticket is held by an admitted scan. Release is safe to call more than once.
type Ticket struct {
	once    sync.Once
	release func()
}

// Release returns the concurrency slot.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.release)
}

// Guard decides whether an image is worth scanning.
type Guard struct {
	maxConcurrency int64
	maxPixelArea   int64
	whitelist      []string
	inFlight       atomic.Int64
	rules          RuleRepo
	log            *log.Helper
}

// NewGuard creates a new Guard.
func NewGuard(c *conf.Scanner, rules RuleRepo, logger log.Logger) *Guard {
	maxArea := c.MaxPixelArea
	if maxArea <= 0 {
		maxArea = DefaultMaxPixelArea
	}
	return &Guard{
		maxConcurrency: c.MaxConcurrency,
		maxPixelArea:   maxArea,
		whitelist:      c.Whitelist,
		rules:          rules,
		log:            log.NewHelper(logger),
	}
}

// InFlight returns the number of admitted scans not yet released.
func (g *Guard) InFlight() int64 {
	return g.inFlight.Load()
}

// Admit applies the admission rules. On success the caller owns the returned
// ticket and must release it when the scan ends. Rejections are returned as
// *RejectError and never hold a slot.
//
// The whitelist and area checks need no I/O and run before a slot is taken,
// so only images that reach the rule lookup compete for the ceiling.
func (g *Guard) Admit(ctx context.Context, img *IncomingImage) (*Ticket, error) {
	if !HasImageExtension(img.SourceURL) {
		return nil, g.reject(&RejectError{Reason: ReasonExtension}, false)
	}

	if p, ok := glob.MatchAny(img.SourceURL, g.whitelist); ok {
		return nil, g.reject(&RejectError{Reason: ReasonWhitelist, Detail: p}, true)
	}

	if err := g.CheckArea(img.Width, img.Height); err != nil {
		return nil, g.reject(err, true)
	}

	if !g.acquire() {
		return nil, g.reject(&RejectError{Reason: ReasonConcurrency, Detail: "too many concurrent images"}, true)
	}
	ticket := &Ticket{release: g.releaseSlot}

	n, err := g.rules.CountPatterns(ctx, img.GuildID)
	if err != nil {
		g.log.Errorf("count patterns for guild %s: %v", img.GuildID, err)
	}
	if err != nil || n == 0 {
		ticket.Release()
		return nil, g.reject(&RejectError{Reason: ReasonNoRules}, true)
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted", "").Inc()
	return ticket, nil
}

// CheckArea rejects images larger than the pixel area ceiling. Unknown
// dimensions are zero and always pass.
func (g *Guard) CheckArea(width, height int) *RejectError {
	if area := int64(width) * int64(height); area > g.maxPixelArea {
		return &RejectError{Reason: ReasonPixelArea, Detail: fmt.Sprintf("%dx%d", width, height)}
	}
	return nil
}

func (g *Guard) acquire() bool {
	for {
		cur := g.inFlight.Load()
		if cur >= g.maxConcurrency {
			return false
		}
		if g.inFlight.CompareAndSwap(cur, cur+1) {
			metrics.ScansInFlight.Inc()
			return true
		}
	}
}

func (g *Guard) releaseSlot() {
	g.inFlight.Add(-1)
	metrics.ScansInFlight.Dec()
}

func (g *Guard) reject(err *RejectError, logIt bool) error {
	metrics.AdmissionsTotal.WithLabelValues("rejected", err.Reason).Inc()
	if logIt {
		g.log.Info(err.Error())
	}
	return err
}
