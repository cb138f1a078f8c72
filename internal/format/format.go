// Package format renders numbers the way the storefront displays them.
package format

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// Thousands separators by language.
var separators = map[string]string{
	"ru": " ",
	"uk": " ",
	"fr": " ",
	"en": ",",
	"de": ".",
	"es": ".",
	"it": ".",
}

// Supported reports whether locale has a known thousands separator.
func Supported(locale string) bool {
	_, ok := separators[language(locale)]
	return ok
}

// Number renders n with the grouping separators of locale, e.g.
// Number(100000, "ru-RU") == "100 000". Unknown locales group with commas.
// Every int64 is rendered exactly.
func Number(n int64, locale string) string {
	grouped := humanize.Comma(n)
	sep, ok := separators[language(locale)]
	if !ok || sep == "," {
		return grouped
	}
	return strings.ReplaceAll(grouped, ",", sep)
}

func language(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return locale
}
