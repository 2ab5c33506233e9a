package tagger

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/amishk599/jobsync/internal/model"
)

// legalSuffixes are stripped from the end of company names, longest first.
// "corp" is kept: it is often part of the brand.
var legalSuffixes = [][]string{
	{"private", "limited"},
	{"pvt", "ltd"},
	{"pvt", "limited"},
	{"private", "ltd"},
	{"limited"},
	{"ltd"},
	{"inc"},
	{"llc"},
	{"llp"},
	{"pvt"},
}

var (
	bracketed      = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	titleSeparator = regexp.MustCompile(`\s+[-|–—]\s+`)
)

// Normalize folds a free-text name into the key used by the entity directory:
// lower case, punctuation to spaces, collapsed whitespace. Company names also
// lose trailing legal suffixes.
func Normalize(kind model.EntityKind, name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	if kind == model.EntityCompany {
		fields = stripLegalSuffix(fields)
	}
	return strings.Join(fields, " ")
}

func stripLegalSuffix(fields []string) []string {
	for {
		stripped := false
		for _, suffix := range legalSuffixes {
			n := len(suffix)
			if len(fields) <= n {
				continue
			}
			if equalTail(fields, suffix) {
				fields = fields[:len(fields)-n]
				stripped = true
				break
			}
		}
		if !stripped {
			return fields
		}
	}
}

func equalTail(fields, suffix []string) bool {
	tail := fields[len(fields)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

// SimplifyTitle drops bracketed qualifiers and anything after a " - " or
// " | " separator: "Sr. Engineer (Go) - Payments" becomes "Sr. Engineer".
func SimplifyTitle(title string) string {
	t := bracketed.ReplaceAllString(title, " ")
	if loc := titleSeparator.FindStringIndex(t); loc != nil {
		t = t[:loc[0]]
	}
	return strings.Join(strings.Fields(t), " ")
}

// CityOf returns the city part of the first location: the text before the
// first comma, trimmed.
func CityOf(locations []string) string {
	for _, loc := range locations {
		city, _, _ := strings.Cut(loc, ",")
		if city = strings.TrimSpace(city); city != "" {
			return city
		}
	}
	return ""
}
