// Package prompt builds the deterministic stage prompts fed to the
// model service, including corrective re-prompts for the repair loop.
package prompt

// DefaultLanguage is used when a submission carries no language or an
// unrecognized code.
const DefaultLanguage = "zh-CN"

// languageNames maps supported output-language codes to the names the
// model is instructed with.
var languageNames = map[string]string{
	"zh-CN": "Simplified Chinese (简体中文)",
	"zh-TW": "Traditional Chinese (繁體中文)",
	"en":    "English",
	"ja":    "Japanese (日本語)",
	"ko":    "Korean (한국어)",
	"fr":    "French (Français)",
	"de":    "German (Deutsch)",
	"es":    "Spanish (Español)",
	"pt":    "Portuguese (Português)",
	"ar":    "Arabic (العربية)",
	"ru":    "Russian (Русский)",
}

// Languages returns the supported code-to-name table.
func Languages() map[string]string {
	out := make(map[string]string, len(languageNames))
	for code, name := range languageNames {
		out[code] = name
	}
	return out
}

// NormalizeLanguage returns code if supported, otherwise the default.
func NormalizeLanguage(code string) string {
	if _, ok := languageNames[code]; ok {
		return code
	}
	return DefaultLanguage
}

// languageName resolves a normalized code to its instruction name.
func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return languageNames[DefaultLanguage]
}
