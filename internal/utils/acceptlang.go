package utils

import (
	"strconv"
	"strings"
)

// ResolveLocale picks the language for server messages. An explicit ?lang=
// wins, then the highest weighted Accept-Language range that has
// translations, then DefaultLocale. Ties keep header order.
func ResolveLocale(queryLang, acceptLang string) string {
	if l, ok := matchLocale(queryLang); ok {
		return l
	}
	best, bestQ := "", 0.0
	for _, part := range strings.Split(acceptLang, ",") {
		tag, q := parseLanguageRange(part)
		if q <= bestQ {
			continue
		}
		if l, ok := matchLocale(tag); ok {
			best, bestQ = l, q
		}
	}
	if best != "" {
		return best
	}
	return DefaultLocale
}

// matchLocale maps a language tag onto a translated locale, falling back
// from region tags (zh-CN, en_GB) to their base language.
func matchLocale(tag string) (string, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "", false
	}
	if _, ok := translations[tag]; ok {
		return tag, true
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		if _, ok := translations[tag[:i]]; ok {
			return tag[:i], true
		}
	}
	return "", false
}

// parseLanguageRange splits "zh-CN;q=0.8" into its tag and weight. A
// malformed weight counts as 0, which drops the range.
func parseLanguageRange(part string) (string, float64) {
	tag, params, _ := strings.Cut(part, ";")
	q := 1.0
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return strings.TrimSpace(tag), 0
		}
		q = f
	}
	return strings.TrimSpace(tag), q
}
