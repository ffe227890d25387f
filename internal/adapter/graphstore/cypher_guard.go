package graphstore

import (
	"errors"
	"regexp"
	"strings"
)

var (
	fencePattern       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	returnPattern      = regexp.MustCompile(`(?i)\bRETURN\b`)
	matchPattern       = regexp.MustCompile(`(?i)^\s*(OPTIONAL\s+)?MATCH\b`)
	writeClausePattern = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|CALL|LOAD\s+CSV)\b`)
	quotedPattern      = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
)

// SanitizeCypher strips code fences from a generated query and rejects anything that is
// not a single read-only MATCH ... RETURN statement returning the reference link.
func SanitizeCypher(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(q); m != nil {
		q = strings.TrimSpace(m[1])
	}
	q = strings.TrimSuffix(q, ";")
	q = strings.TrimSpace(q)
	if q == "" {
		return "", errors.New("empty query")
	}

	// Keywords inside string literals do not count.
	code := quotedPattern.ReplaceAllString(q, `""`)

	if strings.Contains(code, ";") {
		return "", errors.New("multiple statements are not allowed")
	}
	if !matchPattern.MatchString(code) {
		return "", errors.New("query must start with MATCH")
	}
	if writeClausePattern.MatchString(code) {
		return "", errors.New("query must be read-only")
	}
	if n := len(returnPattern.FindAllStringIndex(code, -1)); n != 1 {
		return "", errors.New("query must have exactly one RETURN")
	}
	if !strings.Contains(code, "refLink") {
		return "", errors.New("query must return b.refLink")
	}
	return q, nil
}
