package paths

import (
	"path/filepath"
	"strings"
)

// ExcludeMatcher decides which relative paths the packer skips.
// Patterns follow the usual ignore-file conventions: a bare name
// matches that name at any depth, a pattern with a slash is anchored
// to the tree root, "**" spans directories, and a trailing slash is
// equivalent to the bare name.
type ExcludeMatcher struct {
	patterns []string
}

func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	return &ExcludeMatcher{patterns: patterns}
}

// Match reports whether relPath (slash-separated, relative to the pack
// root) is excluded. A matched directory excludes everything below it.
func (m *ExcludeMatcher) Match(relPath string) bool {
	for _, pat := range m.patterns {
		if matchOne(strings.TrimSuffix(pat, "/"), relPath) {
			return true
		}
	}
	return false
}

func matchOne(pattern, relPath string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, relPath)
	}
	if strings.Contains(pattern, "/") {
		ok, _ := filepath.Match(pattern, relPath)
		return ok
	}
	// A bare pattern matches any single component of the path.
	for _, part := range strings.Split(relPath, "/") {
		if ok, _ := filepath.Match(pattern, part); ok {
			return true
		}
	}
	return false
}

func matchDoublestar(pattern, relPath string) bool {
	halves := strings.Split(pattern, "**")
	if len(halves) != 2 {
		return false
	}
	prefix := strings.TrimSuffix(halves[0], "/")
	suffix := strings.TrimPrefix(halves[1], "/")

	switch {
	case prefix == "" && suffix == "":
		return true
	case prefix == "":
		return matchTail(suffix, relPath)
	case suffix == "":
		return relPath == prefix ||
			strings.HasPrefix(relPath, prefix+"/")
	case !strings.HasPrefix(relPath, prefix+"/"):
		return false
	}
	return matchTail(suffix, strings.TrimPrefix(relPath, prefix+"/"))
}

// matchTail tries the pattern against every suffix of relPath that
// starts on a component boundary.
func matchTail(pattern, relPath string) bool {
	parts := strings.Split(relPath, "/")
	for i := range parts {
		if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
			return true
		}
	}
	return false
}
