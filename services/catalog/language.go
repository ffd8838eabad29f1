package catalog

import (
	"strings"

	"golang.org/x/text/language"
)

const defaultLanguage = "en-US"

// normalizeLanguage turns user-supplied locales ("pt", "pt_br", "EN") into the
// language-REGION form TMDB expects. Missing regions are filled with the most
// likely one for the language.
func normalizeLanguage(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", "-"))
	if value == "" {
		return defaultLanguage
	}
	tag, err := language.Parse(value)
	if err != nil {
		return defaultLanguage
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	if base.String() == "und" {
		return defaultLanguage
	}
	if region.String() == "ZZ" {
		return base.String()
	}
	return base.String() + "-" + region.String()
}
