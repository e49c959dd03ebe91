package settings

import "strings"

// LanguageAuto lets the synthesizer detect the language itself.
const LanguageAuto = "auto"

var languageAliases = map[string]string{
	"en":                  "english",
	"english":             "english",
	"en-us":               "english",
	"en_us":               "english",
	"en-gb":               "english",
	"pt":                  "portuguese",
	"pt-br":               "portuguese",
	"pt_br":               "portuguese",
	"ptbr":                "portuguese",
	"portuguese (brazil)": "portuguese",
	"portuguese":          "portuguese",
	"chinese":             "chinese",
	"zh":                  "chinese",
	"zh-cn":               "chinese",
	"japanese":            "japanese",
	"ja":                  "japanese",
	"korean":              "korean",
	"ko":                  "korean",
	"french":              "french",
	"fr":                  "french",
	"german":              "german",
	"de":                  "german",
	"italian":             "italian",
	"it":                  "italian",
	"spanish":             "spanish",
	"es":                  "spanish",
	"russian":             "russian",
	"ru":                  "russian",
	LanguageAuto:          LanguageAuto,
}

// NormalizeLanguage lowercases and trims a free-text language identifier and
// maps it through the alias table. Unknown identifiers are returned
// normalized but unmapped; an empty identifier means auto-detection.
func NormalizeLanguage(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return LanguageAuto
	}

	if canonical, ok := languageAliases[raw]; ok {
		return canonical
	}

	return raw
}
