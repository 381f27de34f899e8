package access

import (
	"strings"

	"github.com/org/vaultgate/pkg/models"
)

// EvaluateDirectory decides whether a directory path is permitted under the
// given policy. Rules are scanned in stored order and the first match wins —
// priority comes from order, not path specificity, so a broad rule listed
// before a narrow one suppresses it. Callers wanting most-specific-wins must
// order their rules narrowest first.
func EvaluateDirectory(path string, policy models.DirectoryPolicy) bool {
	path = normalize(path)
	for _, rule := range policy.Rules {
		if matchDirectory(normalize(rule.Path), path) {
			return rule.Allowed
		}
	}
	return policy.RootPermission
}

// matchDirectory reports whether path is rulePath itself or nested under it.
// Matching is segment-aware: rule "foo" covers "foo" and "foo/bar" but never
// the sibling "foobar". A root rule (empty path) covers everything.
func matchDirectory(rulePath, path string) bool {
	if rulePath == "" {
		return true
	}
	return path == rulePath || strings.HasPrefix(path, rulePath+"/")
}

// normalize maps the two spellings of the vault root ("" and "/") to the
// canonical empty string and strips a trailing slash.
func normalize(p string) string {
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}

// ParentDir returns the containing directory of a vault-relative file path
// using /-delimited segmentation, with the root represented as "".
func ParentDir(path string) string {
	path = normalize(path)
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
