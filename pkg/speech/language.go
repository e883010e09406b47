package speech

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the ISO 639-1 code of text, or fallback when the
// detection is unreliable or not a valid language tag.
func DetectLanguage(text, fallback string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return fallback
	}
	code := info.Lang.Iso6391()
	tag, err := language.Parse(code)
	if err != nil {
		return fallback
	}
	base, _ := tag.Base()
	return base.String()
}
