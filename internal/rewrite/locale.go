package rewrite

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless i has no decomposition, so it is mapped before accents are dropped.
var dotlessI = runes.Map(func(r rune) rune {
	if r == 'ı' {
		return 'i'
	}
	return r
})

// Transliterate folds Turkish letters to their ASCII base letters:
// ç→c ğ→g ı→i İ→I ö→o ş→s ü→u, and likewise for the upper-case forms.
func Transliterate(text string) string {
	t := transform.Chain(dotlessI, norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// Lower lower-cases text with Turkish rules (İ→i, I→ı).
func Lower(text string) string {
	return cases.Lower(language.Turkish).String(text)
}

// Title upper-cases the first letter of every word and lower-cases the rest.
// Stored entity names are English, so no locale-specific mapping applies.
func Title(text string) string {
	return cases.Title(language.Und).String(text)
}

// Capitalize upper-cases the first letter only and leaves the rest as is.
func Capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return cases.Upper(language.Und).String(string(r)) + text[size:]
}
