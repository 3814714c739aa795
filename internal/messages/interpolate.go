package messages

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

/*
 * {{param}} interpolation.
 *
 * Templates are split once into literal and placeholder segments and cached
 * by template text; message catalogs are small and rendered on every error
 * emission, so parsing dominates without the cache.
 *
 * Parameter values are stringified leniently: strings as-is, numbers in
 * shortest form, booleans as true/false, anything else through %v.
 */

// DefaultTemplateCacheSize is the number of parsed templates kept.
const DefaultTemplateCacheSize = 512

// placeholderPattern matches {{name}} with a word-character name.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Well-known error parameters. Any other parameter interpolates the same way.
const (
	ParamMin            = "min"
	ParamMax            = "max"
	ParamRequiredLength = "requiredLength"
	ParamActualLength   = "actualLength"
	ParamPattern        = "pattern"
	ParamActual         = "actual"
	ParamExpected       = "expected"
)

// kindParam is never interpolated; it identifies the error, not a value.
const kindParam = "kind"

// Interpolator renders message templates against error parameters.
// Safe for concurrent use.
type Interpolator struct {
	cache *lru.Cache[string, template]
}

type segment struct {
	literal string
	param   string // non-empty for a placeholder
}

type template []segment

// NewInterpolator creates an interpolator caching up to size parsed
// templates. size <= 0 means DefaultTemplateCacheSize.
func NewInterpolator(size int) (*Interpolator, error) {
	if size <= 0 {
		size = DefaultTemplateCacheSize
	}
	cache, err := lru.New[string, template](size)
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}
	return &Interpolator{cache: cache}, nil
}

// Interpolate substitutes params into text.
func (ip *Interpolator) Interpolate(text string, params map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	tmpl, ok := ip.cache.Get(text)
	if !ok {
		tmpl = parseTemplate(text)
		ip.cache.Add(text, tmpl)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range tmpl {
		if seg.param == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := params[seg.param]
		if !ok || seg.param == kindParam {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(stringify(v))
	}
	return b.String()
}

// parseTemplate splits text into literal and placeholder segments. A
// placeholder segment keeps its original text as literal for the
// unmatched case.
func parseTemplate(text string) template {
	var tmpl template
	last := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			tmpl = append(tmpl, segment{literal: text[last:m[0]]})
		}
		tmpl = append(tmpl, segment{literal: text[m[0]:m[1]], param: text[m[2]:m[3]]})
		last = m[1]
	}
	if last < len(text) {
		tmpl = append(tmpl, segment{literal: text[last:]})
	}
	return tmpl
}

// stringify converts a parameter value to its display form.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
