package biz

import (
	"context"
	"time"
)

// MaxNearDuplicateDistance is the largest pHash distance FindSimilar answers
// for. Four 16-bit bands guarantee a shared band up to three differing bits.
const MaxNearDuplicateDistance = 3

// CachedResult is the memoised scan output for one content hash.
type CachedResult struct {
	Hash string
	OCR  string
	// OCRFinal is set when OCR came from an engine run whose answer would not
	// change on retry. Text from a failed run is stored but never reused.
	OCRFinal bool
	// API is the raw classification reply. Nil means no reply is stored,
	// and an upsert with nil API leaves a stored reply untouched.
	API []byte
	// PHash is nil when the image could not be decoded.
	PHash     *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScanCacheRepo is a repository interface for scan results keyed by content hash.
type ScanCacheRepo interface {
	// Get returns nil, nil when nothing is stored for hash.
	Get(ctx context.Context, hash string) (*CachedResult, error)
	// FindSimilar returns the stored classification whose pHash is closest to
	// phash and at most maxDistance bits away, or nil, nil.
	FindSimilar(ctx context.Context, phash int64, maxDistance int) (*CachedResult, error)
	// Upsert stores result. Final OCR text is never replaced by text that
	// is not final.
	Upsert(ctx context.Context, result *CachedResult) error
}
