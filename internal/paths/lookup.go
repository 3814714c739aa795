package paths

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Concrete path lookup over decoded form values.
 *
 * Form values are the generic decoding of a JSON document: map[string]any
 * for groups, []any for arrays, scalars at the leaves. Lookup walks a
 * concrete path; ExpandArrayPath enumerates the concrete paths a placeholder
 * path stands for given the current array lengths.
 *
 * Numeric segments index arrays. On an object a numeric segment is an
 * ordinary key, since form groups may use numeric-looking field names.
 */

// LookupResult contains the resolved value.
type LookupResult struct {
	Value any  // resolved value (nil if not found or JSON null)
	Found bool // true if the path exists in the form value
}

// Lookup returns the value at a concrete path.
// Returns types.ErrFieldNotFound when any segment is missing.
func Lookup(value any, path string) (LookupResult, error) {
	current := value
	for _, seg := range Split(path) {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return LookupResult{}, types.ErrFieldNotFound
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return LookupResult{}, types.ErrFieldNotFound
			}
			current = v[idx]
		default:
			// Scalar or null value but path continues
			return LookupResult{}, types.ErrFieldNotFound
		}
	}
	return LookupResult{Value: current, Found: true}, nil
}

// LookupJSON decodes data and looks up path in it.
func LookupJSON(data []byte, path string) (LookupResult, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return LookupResult{}, err
	}
	return Lookup(parsed, path)
}

// ExpandArrayPath returns one concrete path per combination of array
// elements addressed by the $ segments of path, in index order. A path
// without placeholders expands to itself. Returns types.ErrNotArray when a
// placeholder lands on a non-array value, and types.ErrFieldNotFound when the
// prefix leading to a placeholder is missing.
func ExpandArrayPath(value any, path string) ([]string, error) {
	segments := Split(path)
	var out []string
	if err := expand(value, segments, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// expand walks segments depth-first, fanning out at each placeholder.
// Segments after the last placeholder are copied without being checked
// against the value, because derivation targets may not exist yet.
func expand(current any, remaining, resolvedSoFar []string, out *[]string) error {
	next := -1
	for i, seg := range remaining {
		if seg == types.ArrayPlaceholder {
			next = i
			break
		}
	}
	if next < 0 {
		full := make([]string, 0, len(resolvedSoFar)+len(remaining))
		full = append(append(full, resolvedSoFar...), remaining...)
		*out = append(*out, Join(full))
		return nil
	}

	prefix := remaining[:next]
	found, err := Lookup(current, Join(prefix))
	if err != nil {
		return err
	}
	items, ok := found.Value.([]any)
	if !ok {
		return types.ErrNotArray
	}

	base := make([]string, 0, len(resolvedSoFar)+len(prefix)+1)
	base = append(append(base, resolvedSoFar...), prefix...)
	for i, item := range items {
		resolved := append(base[:len(base):len(base)], strconv.Itoa(i))
		if err := expand(item, remaining[next+1:], resolved, out); err != nil {
			return err
		}
	}
	return nil
}
