package vision

import (
	"encoding/json"
	"strings"
)

// Verdict is a parsed classification reply. Its shape belongs to the remote
// service, so only field lookups are offered.
type Verdict struct {
	root map[string]any
}

// ParseVerdict decodes a reply body. A body that does not decode to a JSON
// object yields an empty verdict together with the decode error.
func ParseVerdict(body []byte) (*Verdict, error) {
	v := &Verdict{}
	if len(body) == 0 {
		return v, nil
	}
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return v, err
	}
	v.root = root
	return v, nil
}

// Empty reports whether the verdict carries no fields.
func (v *Verdict) Empty() bool {
	return v == nil || len(v.root) == 0
}

// Status returns the top level "status" field and whether it was present.
func (v *Verdict) Status() (string, bool) {
	if v.Empty() {
		return "", false
	}
	s, ok := v.root["status"].(string)
	return s, ok
}

// Score looks up a numeric field by dotted path, e.g. "nudity.raw".
func (v *Verdict) Score(path string) (float64, bool) {
	if v.Empty() || path == "" {
		return 0, false
	}
	var node any = v.root
	for _, key := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return 0, false
		}
		if node, ok = obj[key]; !ok {
			return 0, false
		}
	}
	f, ok := node.(float64)
	return f, ok
}
