package retrieval

import (
	"strings"
	"unicode"
)

// DefaultStopWords are generic domain words removed from a query before the semantic retry.
var DefaultStopWords = []string{
	"technology", "technologies", "tech", "industry", "industries", "sector", "sectors",
	"market", "markets", "business", "company", "companies", "news", "article", "articles",
	"latest", "recent", "trend", "trends", "update", "updates",
}

// SimplifyQuery drops stop words and punctuation from query.
// It reports false when nothing changed or nothing would remain.
func SimplifyQuery(query string, stopWords []string) (string, bool) {
	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := stop[strings.ToLower(f)]; ok {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return query, false
	}

	simplified := strings.Join(kept, " ")
	if simplified == strings.Join(strings.Fields(query), " ") {
		return query, false
	}
	return simplified, true
}
