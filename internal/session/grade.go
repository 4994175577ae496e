package session

import "strings"

// articles that may be dropped on either side of a comparison. German nouns
// are stored with their article but learners often type the bare noun.
var articles = []string{"der ", "die ", "das "}

// Matches grades a learner's answer against the expected translation.
// Comparison is case-insensitive after whitespace collapsing and trailing
// punctuation stripping. The expected translation may list alternate
// accepted forms separated by commas, slashes or semicolons; each alternate
// is accepted alone, and so is the full stored string, which answer buttons
// carry verbatim. A leading article on either side is optional.
func Matches(expected, given string) bool {
	g := normalize(given)
	if g == "" {
		return false
	}
	for _, alt := range append(splitAlternates(expected), expected) {
		e := normalize(alt)
		if e == "" {
			continue
		}
		if g == e || stripArticle(g) == stripArticle(e) {
			return true
		}
	}
	return false
}

func splitAlternates(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '/' || r == ';'
	})
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!?")
	return strings.Join(strings.Fields(s), " ")
}

func stripArticle(s string) string {
	for _, a := range articles {
		if strings.HasPrefix(s, a) {
			return s[len(a):]
		}
	}
	return s
}
