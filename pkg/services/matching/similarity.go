package matching

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Similarity scores two account names in [0,1].
//
// Names are lowercased, "&" is read as "and" and punctuation splits tokens.
// The score is the better of a character ratio over the joined tokens and a
// token ratio weighted by token length, so "A/R Other" and "AR-Other" match.
func Similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	char := ratio(strings.Join(ta, ""), strings.Join(tb, ""))
	if char == 1 {
		return 1
	}
	token := (tokenRatio(ta, tb) + tokenRatio(tb, ta)) / 2
	if token > char {
		return token
	}
	return char
}

func tokenize(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "&", " and "))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ratio uses insert/delete cost 1 and substitution cost 2, which keeps
// (len(a)+len(b)-distance)/(len(a)+len(b)) within [0,1].
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	d := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return float64(total-d) / float64(total)
}

func tokenRatio(from, to []string) float64 {
	var weighted, weights float64
	for _, t := range from {
		best := 0.0
		for _, u := range to {
			if r := ratio(t, u); r > best {
				best = r
			}
		}
		w := float64(len([]rune(t)))
		weighted += w * best
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return weighted / weights
}
