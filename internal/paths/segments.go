package paths

import "strings"

// bracketReplacer turns bracket notation into dot notation: a[0].b -> a.0.b
var bracketReplacer = strings.NewReplacer("[", ".", "]", "")

// Split normalises dot and bracket notation into a flat segment list.
// Empty segments are dropped, so "", ".", "a..b" and "[0]" are all handled.
func Split(path string) []string {
	if path == "" {
		return []string{}
	}
	raw := strings.Split(bracketReplacer.Replace(path), ".")
	segments := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// Join is the inverse of Split and always produces dot notation.
func Join(segments []string) string {
	return strings.Join(segments, ".")
}

// ParentPath returns path without its last segment. A single-segment path
// has an empty parent.
func ParentPath(path string) string {
	segments := Split(path)
	if len(segments) <= 1 {
		return ""
	}
	return Join(segments[:len(segments)-1])
}

// LeafPath returns the last segment of path, or "" for an empty path.
func LeafPath(path string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
