package utils

import "sort"

// Minimal server-side i18n for fixed keys.
// UI strings should live in the frontend; server provides only essentials.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":      "ok",
		"poll.not_found": "Poll not found or you don't have permission to view it.",
		"poll.closed":    "This poll is closed.",
		"link.invalid":   "Form link is invalid. It's missing key information.",
		"form.required":  "Please answer the required question: %s",
	},
	"zh": {
		"health.ok":      "好的",
		"poll.not_found": "投票不存在或您无权查看。",
		"poll.closed":    "该投票已关闭。",
		"link.invalid":   "表单链接无效，缺少关键信息。",
		"form.required":  "请回答必填问题：%s",
	},
}

// DefaultLocale is used when a request asks for nothing we translate.
const DefaultLocale = "en"

// SupportedLocales lists the locales server messages are translated into.
func SupportedLocales() []string {
	out := make([]string, 0, len(translations))
	for l := range translations {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations[DefaultLocale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
