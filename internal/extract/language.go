package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// language is a detected non-English language of the user's text.
type language struct {
	Code string
	Name string
}

var scriptLanguages = []struct {
	table *unicode.RangeTable
	lang  language
}{
	{unicode.Hebrew, language{"he", "Hebrew"}},
	{unicode.Arabic, language{"ar", "Arabic"}},
	{unicode.Cyrillic, language{"ru", "Russian"}},
	{unicode.Greek, language{"el", "Greek"}},
}

var latinLanguages = map[string]language{
	"es": {"es", "Spanish"},
	"fr": {"fr", "French"},
	"de": {"de", "German"},
	"pt": {"pt", "Portuguese"},
	"it": {"it", "Italian"},
}

// Characters that point at one Latin-script language. Characters shared between
// languages are left out.
var latinMarks = map[rune]string{
	'ñ': "es", '¿': "es", '¡': "es", 'á': "es", 'í': "es", 'ó': "es", 'ú': "es",
	'ç': "fr", 'è': "fr", 'ê': "fr", 'ë': "fr", 'î': "fr", 'ï': "fr", 'œ': "fr", 'à': "fr", 'â': "fr", 'ù': "fr",
	'ä': "de", 'ö': "de", 'ü': "de", 'ß': "de",
	'ã': "pt", 'õ': "pt",
	'ì': "it", 'ò': "it",
}

var latinKeywords = map[string][]string{
	"es": {"mañana", "hoy", "reunión", "cumpleaños", "con", "para", "el", "la", "de", "en", "cita", "fiesta"},
	"fr": {"demain", "aujourd'hui", "réunion", "anniversaire", "avec", "pour", "le", "la", "rendez-vous", "fête"},
	"de": {"morgen", "heute", "treffen", "geburtstag", "mit", "für", "der", "die", "das", "uhr", "termin"},
	"pt": {"amanhã", "hoje", "reunião", "aniversário", "com", "para", "o", "a", "festa", "encontro"},
	"it": {"domani", "oggi", "riunione", "compleanno", "con", "per", "il", "la", "festa", "incontro"},
}

var wordPattern = regexp.MustCompile(`[\p{L}']+`)

// detectLanguage reports the language of text when it is clearly not English.
func detectLanguage(text string) (language, bool) {
	counts := make(map[*unicode.RangeTable]int)
	letters, latin := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for _, s := range scriptLanguages {
			if unicode.Is(s.table, r) {
				counts[s.table]++
				break
			}
		}
	}
	if letters == 0 {
		return language{}, false
	}

	for _, s := range scriptLanguages {
		n := counts[s.table]
		if n >= 2 && float64(n)/float64(letters) >= 0.35 {
			return s.lang, true
		}
	}
	if latin == 0 {
		return language{}, false
	}

	lower := strings.ToLower(text)
	marks := make(map[string]int)
	for _, r := range lower {
		if code, ok := latinMarks[r]; ok {
			marks[code]++
		}
	}
	if code, ok := leader(marks); ok {
		return latinLanguages[code], true
	}

	hits := make(map[string]int)
	for _, word := range wordPattern.FindAllString(lower, -1) {
		for code, keywords := range latinKeywords {
			for _, k := range keywords {
				if word == k {
					hits[code]++
					break
				}
			}
		}
	}
	if code, ok := leader(hits); ok {
		return latinLanguages[code], true
	}
	return language{}, false
}

// leader returns the key with the highest score when it has at least two points and
// beats the runner-up.
func leader(scores map[string]int) (string, bool) {
	codes := make([]string, 0, len(scores))
	for code := range scores {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	best, first, second := "", 0, 0
	for _, code := range codes {
		n := scores[code]
		if n > first {
			best, first, second = code, n, first
		} else if n > second {
			second = n
		}
	}
	if first >= 2 && first > second {
		return best, true
	}
	return "", false
}

// languageInstruction asks the model to keep user-facing fields in the language of text.
// It is empty for English or undetermined text.
func languageInstruction(text string) string {
	lang, ok := detectLanguage(text)
	if !ok {
		return ""
	}
	return fmt.Sprintf("\n\nLanguage: write title, description and location in %s (%s), the language of the text. "+
		"Do not translate proper nouns, URLs, email addresses or quoted literals.", lang.Name, lang.Code)
}
