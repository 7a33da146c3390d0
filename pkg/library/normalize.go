package library

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	yearPattern   = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2}|21\d{2})\b`)
	doiPattern    = regexp.MustCompile(`10\.\d{4,9}/\S+`)
	spacePattern  = regexp.MustCompile(`\s+`)
	isbnStripper  = regexp.MustCompile(`[^0-9Xx]`)
	doiPrefixList = []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"}
)

// foldText lowercases, removes diacritics and replaces punctuation with spaces.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.TrimSpace(spacePattern.ReplaceAllString(folded, " "))
}

func NormalizeTitle(title string) string {
	return foldText(title)
}

func NormalizeSurname(name string) string {
	return strings.ReplaceAll(foldText(name), " ", "")
}

// NormalizeDOI strips resolver prefixes and lowercases. Returns "" when the
// input does not contain a DOI.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(strings.ToLower(doi))
	for _, p := range doiPrefixList {
		d = strings.TrimPrefix(d, p)
	}
	m := doiPattern.FindString(d)
	return strings.TrimRight(m, ".,;")
}

// NormalizeISBN returns the ISBN-13 digits of an ISBN-10 or ISBN-13 input,
// or "" when the input is not a plausible ISBN.
func NormalizeISBN(isbn string) string {
	s := strings.ToUpper(isbnStripper.ReplaceAllString(isbn, ""))
	switch len(s) {
	case 13:
		if strings.ContainsRune(s, 'X') {
			return ""
		}
		return s
	case 10:
		if strings.ContainsRune(s[:9], 'X') {
			return ""
		}
		core := "978" + s[:9]
		sum := 0
		for i, r := range core {
			d := int(r - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		check := (10 - sum%10) % 10
		return core + string(rune('0'+check))
	}
	return ""
}

// ExtractYear returns the first four-digit year found in a free-form date.
func ExtractYear(date string) string {
	return yearPattern.FindString(date)
}

// BuildQuery turns a reference into a normalized structured search query.
func BuildQuery(ref Reference) SearchQuery {
	q := SearchQuery{
		Title: NormalizeTitle(ref.Title),
		Year:  ExtractYear(ref.Date),
		DOI:   NormalizeDOI(ref.DOI),
		ISBN:  NormalizeISBN(ref.ISBN),
	}
	for _, c := range ref.Creators {
		if s := NormalizeSurname(c.Surname()); s != "" {
			q.Creators = append(q.Creators, s)
		}
	}
	return q
}
