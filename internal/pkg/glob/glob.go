// Package glob implements shell-style wildcard matching.
//
// Supported syntax is '*' (any run of characters, including none), '?' (exactly
// one character) and literal characters. There are no character classes, no
// escapes and no path separator semantics, so a '*' happily crosses '/' in URLs.
// Matching is case-sensitive; callers lowercase where they need otherwise.
package glob

// Match reports whether text matches pattern in full.
// An empty pattern never matches.
func Match(text, pattern string) bool {
	if pattern == "" {
		return false
	}
	t := []rune(text)
	p := []rune(pattern)

	ti, pi := 0, 0
	// position of the last '*' seen and the text index it was tried against
	star, mark := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == t[ti]):
			ti++
			pi++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = ti
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// Contains reports whether pattern matches anywhere inside text, i.e. whether
// text matches "*pattern*". Empty text or an empty pattern never matches.
func Contains(text, pattern string) bool {
	if text == "" || pattern == "" {
		return false
	}
	return Match(text, "*"+pattern+"*")
}

// MatchAny returns the first pattern that matches text.
func MatchAny(text string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if Match(text, p) {
			return p, true
		}
	}
	return "", false
}
