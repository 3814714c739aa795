package paths

import (
	"strconv"
	"strings"

	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Array placeholder parsing and resolution.
 *
 * Two families of operations with deliberately different detection rules:
 *   - Single placeholder (ParseArrayPath, ResolveArrayPath, ...): looks for the
 *     first literal ".$." substring only. "$.a" and "a.$" are not array paths.
 *   - Multi placeholder (ParseMultiArrayPath, ResolveMultiArrayPath, ...):
 *     counts every segment equal to "$" after Split normalisation.
 *
 * The derivation index keys byArrayPath with the single-placeholder rule.
 */

// placeholderMarker is the substring that identifies a single array placeholder.
const placeholderMarker = "." + types.ArrayPlaceholder + "."

// ParseArrayPath splits path at its first ".$." marker.
// Returns the zero ArrayPathInfo when no marker is present.
func ParseArrayPath(path string) types.ArrayPathInfo {
	idx := strings.Index(path, placeholderMarker)
	if idx < 0 {
		return types.ArrayPathInfo{}
	}
	return types.ArrayPathInfo{
		ArrayPath:    path[:idx],
		RelativePath: path[idx+len(placeholderMarker):],
		IsArrayPath:  true,
	}
}

// ResolveArrayPath substitutes index for the first placeholder.
// Paths without a placeholder are returned unchanged.
func ResolveArrayPath(path string, index int) string {
	info := ParseArrayPath(path)
	if !info.IsArrayPath {
		return path
	}
	return info.ArrayPath + "." + strconv.Itoa(index) + "." + info.RelativePath
}

// IsArrayPlaceholderPath reports whether path contains ".$.".
func IsArrayPlaceholderPath(path string) bool {
	return strings.Contains(path, placeholderMarker)
}

// ExtractArrayPath returns the prefix before the first placeholder, or "".
func ExtractArrayPath(path string) string {
	return ParseArrayPath(path).ArrayPath
}

// ParseMultiArrayPath records every $ segment of path.
func ParseMultiArrayPath(path string) types.MultiArrayPathInfo {
	segments := Split(path)
	positions := make([]int, 0, 2)
	for i, seg := range segments {
		if seg == types.ArrayPlaceholder {
			positions = append(positions, i)
		}
	}
	return types.MultiArrayPathInfo{
		PlaceholderCount:     len(positions),
		Segments:             segments,
		PlaceholderPositions: positions,
	}
}

// CountArrayPlaceholders returns the number of $ segments in path.
func CountArrayPlaceholders(path string) int {
	count := 0
	for _, seg := range Split(path) {
		if seg == types.ArrayPlaceholder {
			count++
		}
	}
	return count
}

// ResolveMultiArrayPath substitutes indices, in order, for the $ segments of
// path. Returns *types.IndexCountMismatchError when len(indices) differs
// from the placeholder count, including a placeholder-free path given a
// non-empty index list.
func ResolveMultiArrayPath(path string, indices []int) (string, error) {
	info := ParseMultiArrayPath(path)
	if len(indices) != info.PlaceholderCount {
		return "", &types.IndexCountMismatchError{
			Path:         path,
			Placeholders: info.PlaceholderCount,
			Indices:      len(indices),
		}
	}
	if info.PlaceholderCount == 0 {
		return Join(info.Segments), nil
	}

	resolved := make([]string, len(info.Segments))
	copy(resolved, info.Segments)
	for i, pos := range info.PlaceholderPositions {
		resolved[pos] = strconv.Itoa(indices[i])
	}
	return Join(resolved), nil
}

// MustResolveMultiArrayPath is like ResolveMultiArrayPath but panics on a
// count mismatch. Intended for paths and indices fixed at compile time.
func MustResolveMultiArrayPath(path string, indices ...int) string {
	resolved, err := ResolveMultiArrayPath(path, indices)
	if err != nil {
		panic(err)
	}
	return resolved
}

// ToPlaceholderPath replaces every numeric segment of a concrete path with
// the placeholder: items.2.qty becomes items.$.qty.
func ToPlaceholderPath(path string) string {
	segments := Split(path)
	for i, seg := range segments {
		if isIndexSegment(seg) {
			segments[i] = types.ArrayPlaceholder
		}
	}
	return Join(segments)
}

// HasIndexSegment reports whether path addresses a concrete array element.
func HasIndexSegment(path string) bool {
	for _, seg := range Split(path) {
		if isIndexSegment(seg) {
			return true
		}
	}
	return false
}

// isIndexSegment reports whether seg is a non-negative decimal integer.
func isIndexSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
