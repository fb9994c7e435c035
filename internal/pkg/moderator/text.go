package moderator

import (
	"strings"

	"imagescan/internal/pkg/glob"

	"github.com/go-kratos/kratos/v2/log"
)

// TextMatch is the first line and pattern pair that matched.
type TextMatch struct {
	LineIndex int
	Line      string
	Pattern   string
}

// TextModerationResult represents the result of matching OCR text.
type TextModerationResult struct {
	IsClean bool
	Lines   int
	Match   *TextMatch
}

// TextModerator matches extracted text against community patterns.
type TextModerator struct {
	log *log.Helper
}

// NewTextModerator creates a new TextModerator.
func NewTextModerator(logger log.Logger) *TextModerator {
	return &TextModerator{log: log.NewHelper(logger)}
}

// Moderate checks every line of text against patterns and stops at the first hit.
func (tm *TextModerator) Moderate(text string, patterns []string) *TextModerationResult {
	result := &TextModerationResult{IsClean: true}
	if text == "" {
		tm.log.Debug("no OCR content in image")
		return result
	}

	lines := splitLines(text)
	result.Lines = len(lines)
	tm.log.Debugf("read %d lines of text with total size %d, checking against %d patterns", len(lines), len(text), len(patterns))

	if m, ok := matchLines(lines, patterns); ok {
		result.IsClean = false
		result.Match = m
	}
	return result
}

// MatchLines returns the first line of text containing any pattern as a
// glob. Lines are the outer loop, patterns the inner one. Empty lines and
// empty patterns never match.
func MatchLines(text string, patterns []string) (*TextMatch, bool) {
	if text == "" {
		return nil, false
	}
	return matchLines(splitLines(text), patterns)
}

func matchLines(lines, patterns []string) (*TextMatch, bool) {
	for i, line := range lines {
		if line == "" {
			continue
		}
		for _, p := range patterns {
			if p == "" {
				continue
			}
			if glob.Match(line, "*"+p+"*") {
				return &TextMatch{LineIndex: i, Line: line, Pattern: p}, true
			}
		}
	}
	return nil, false
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
