package catalog

import (
	"strings"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// Filters restricts the subscription universe during a catalog refresh.
// All term lists are matched lowercased; an empty list is a no-op.
type Filters struct {
	Keywords        []string
	ExcludeKeywords []string
	Categories      []string
	Subcategories   []string
	Tags            []string
	Companies       []string
}

// NormalizeTerms lowercases and trims filter terms, dropping blanks.
func NormalizeTerms(terms []string) []string {
	var out []string
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

// Normalized returns a copy of the filter set with every term list
// normalized.
func (f Filters) Normalized() Filters {
	return Filters{
		Keywords:        NormalizeTerms(f.Keywords),
		ExcludeKeywords: NormalizeTerms(f.ExcludeKeywords),
		Categories:      NormalizeTerms(f.Categories),
		Subcategories:   NormalizeTerms(f.Subcategories),
		Tags:            NormalizeTerms(f.Tags),
		Companies:       NormalizeTerms(f.Companies),
	}
}

// Active reports whether any filter list is configured.
func (f Filters) Active() bool {
	return len(f.Keywords) > 0 || len(f.ExcludeKeywords) > 0 ||
		len(f.Categories) > 0 || len(f.Subcategories) > 0 ||
		len(f.Tags) > 0 || len(f.Companies) > 0
}

// Matches applies the filter predicate: exclude keywords veto first, then
// each configured dimension must match.
func (f Filters) Matches(blob string, categories, subcategories, tags []string) bool {
	if len(f.ExcludeKeywords) > 0 && matchAnyKeyword(blob, f.ExcludeKeywords) {
		return false
	}
	if len(f.Categories) > 0 && !matchAnyValue(categories, f.Categories) {
		return false
	}
	if len(f.Subcategories) > 0 && !matchAnyValue(subcategories, f.Subcategories) {
		return false
	}
	if len(f.Tags) > 0 && !matchAnyValue(tags, f.Tags) {
		return false
	}
	if len(f.Keywords) > 0 && !matchAnyKeyword(blob, f.Keywords) {
		return false
	}
	if len(f.Companies) > 0 && !matchAnyKeyword(blob, f.Companies) {
		return false
	}
	return true
}

func matchAnyKeyword(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func matchAnyValue(values, keywords []string) bool {
	for _, value := range values {
		if value == "" {
			continue
		}
		lowered := strings.ToLower(value)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
	}
	return false
}

// BuildTextBlob joins the given values into a lowercased search blob.
func BuildTextBlob(values ...[]string) string {
	var parts []string
	for _, group := range values {
		for _, v := range group {
			if v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// ExtractTagNames pulls tag names out of the venue's tag representations:
// a list of objects with name/tag/label keys, a single object, or plain
// strings.
func ExtractTagNames(tags any) []string {
	switch t := tags.(type) {
	case []any:
		var names []string
		for _, item := range t {
			names = append(names, ExtractTagNames(item)...)
		}
		return names
	case map[string]any:
		if name := trade.Raw(t).First("name", "tag", "label"); name != "" {
			return []string{name}
		}
		return nil
	case nil:
		return nil
	default:
		if s := trade.Stringify(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

// extractList pulls a list of objects out of a decoded payload, either the
// payload itself or the first matching wrapper key.
func extractList(payload any, keys ...string) []trade.Raw {
	switch p := payload.(type) {
	case []any:
		return rawItems(p)
	case map[string]any:
		for _, key := range keys {
			if value, ok := p[key].([]any); ok {
				return rawItems(value)
			}
		}
	}
	return nil
}

func rawItems(items []any) []trade.Raw {
	var out []trade.Raw
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, trade.Raw(m))
		}
	}
	return out
}
