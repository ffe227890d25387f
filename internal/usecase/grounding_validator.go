package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"news-orchestrator/internal/domain"
)

// InsufficientInformationMessage is returned verbatim when the evidence cannot support an answer.
const InsufficientInformationMessage = "I currently do not have enough information to answer your question."

// ValidationOutcome says which grounding branch produced the final text.
type ValidationOutcome string

const (
	OutcomeGrounded    ValidationOutcome = "grounded"
	OutcomeBypassed    ValidationOutcome = "bypassed"
	OutcomeNoResults   ValidationOutcome = "no_results"
	OutcomeRejected    ValidationOutcome = "rejected"
	OutcomeUnavailable ValidationOutcome = "validator_unavailable"
	OutcomeSkipped     ValidationOutcome = "skipped"
)

// Reference is a link to a source article. URL is copied unchanged from the structured row.
type Reference struct {
	ArticleID string
	Title     string
	URL       string
}

// ValidationResult is the final user-visible answer.
type ValidationResult struct {
	Text       string
	References []Reference
	Outcome    ValidationOutcome
}

// GroundingValidator constrains a draft to the evidence it was composed from.
type GroundingValidator interface {
	Validate(ctx context.Context, query, draft string, evidence *domain.EvidenceBundle) *ValidationResult
}

type groundingValidator struct {
	llm    domain.LLMClient
	parser OutputValidator
	cfg    GroundingConfig
	logger *slog.Logger
}

// NewGroundingValidator builds a validator. With cfg.Enabled false or a nil llm the rewrite is skipped.
func NewGroundingValidator(llm domain.LLMClient, cfg GroundingConfig, logger *slog.Logger) GroundingValidator {
	return &groundingValidator{llm: llm, parser: NewOutputValidator(), cfg: cfg, logger: logger}
}

func (v *groundingValidator) Validate(ctx context.Context, query, draft string, evidence *domain.EvidenceBundle) *ValidationResult {
	if IsConversational(query) {
		return &ValidationResult{Text: StripForeignLinks(draft, evidence.ReferenceLinks()), Outcome: OutcomeBypassed}
	}
	if !evidence.HasEvidence() {
		return &ValidationResult{Text: NoResultsMessage, Outcome: OutcomeNoResults}
	}
	if !isTopicallyRelevant(query, evidence) {
		v.logger.Info("grounding_rejected",
			slog.String("reason", "no_topical_overlap"),
			slog.String("query", query))
		return &ValidationResult{Text: InsufficientInformationMessage, Outcome: OutcomeRejected}
	}

	allowed := evidence.ReferenceLinks()
	if !v.cfg.Enabled || v.llm == nil {
		return &ValidationResult{
			Text:       StripForeignLinks(draft, allowed),
			References: BuildReferences(evidence, nil),
			Outcome:    OutcomeSkipped,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()
	resp, err := v.llm.Chat(callCtx, buildGroundingMessages(query, draft, evidence), v.cfg.MaxTokens)
	if err == nil {
		var reply *GroundingReply
		reply, err = v.parser.Validate(resp.Text, evidence)
		if err == nil {
			return v.fromReply(reply, evidence, allowed)
		}
	}

	v.logger.Warn("grounding_unavailable",
		slog.String("error", fmt.Errorf("%w: %v", domain.ErrValidatorUnavailable, err).Error()))
	return &ValidationResult{
		Text:       StripForeignLinks(draft, allowed),
		References: BuildReferences(evidence, nil),
		Outcome:    OutcomeUnavailable,
	}
}

func (v *groundingValidator) fromReply(reply *GroundingReply, evidence *domain.EvidenceBundle, allowed map[string]struct{}) *ValidationResult {
	if reply.Fallback || strings.Contains(reply.Answer, InsufficientInformationMessage) {
		v.logger.Info("grounding_rejected",
			slog.String("reason", "validator_fallback"),
			slog.String("detail", reply.Reason))
		return &ValidationResult{Text: InsufficientInformationMessage, Outcome: OutcomeRejected}
	}
	return &ValidationResult{
		Text:       StripForeignLinks(reply.Answer, allowed),
		References: BuildReferences(evidence, reply.ArticleIDs),
		Outcome:    OutcomeGrounded,
	}
}

func buildGroundingMessages(query, draft string, evidence *domain.EvidenceBundle) []domain.Message {
	var sys strings.Builder
	sys.WriteString("<instructions>\n")
	for _, line := range []string{
		"You check a draft answer against news article evidence.",
		"Summaries and the article rows below are the ONLY admissible facts.",
		"Reword, reorganize or trim the draft so every claim is supported by the evidence. Add nothing else.",
		"Never write or change a URL. Links are attached separately from the article rows.",
		"List in article_ids the ids of the articles the answer relies on.",
		"If no part of the evidence is relevant to the query, set fallback to true.",
	} {
		sys.WriteString("  <line>")
		sys.WriteString(escape(line))
		sys.WriteString("</line>\n")
	}
	sys.WriteString("</instructions>\n\n<format>\n")
	sys.WriteString("JSON: {\"answer\": \"...\", \"article_ids\": [\"...\"], \"fallback\": false, \"reason\": \"\"}\n")
	sys.WriteString("</format>\n")

	var user strings.Builder
	user.WriteString("<evidence>\n")
	for _, row := range evidence.StructuredRows {
		id := row.ArticleID()
		user.WriteString("  <article>\n")
		writeTag(&user, "article_id", id)
		writeTag(&user, "title", row.Title())
		writeTag(&user, "author", row.Author())
		writeTag(&user, "category", row.Category())
		writeTag(&user, "summary", evidence.Summaries[id])
		user.WriteString("  </article>\n")
	}
	user.WriteString("</evidence>\n\n<query>\n")
	user.WriteString(escape(query))
	user.WriteString("\n</query>\n\n<draft>\n")
	user.WriteString(escape(draft))
	user.WriteString("\n</draft>\n")

	return []domain.Message{
		{Role: domain.RoleSystem, Content: sys.String()},
		{Role: domain.RoleUser, Content: user.String()},
	}
}

// BuildReferences returns one reference per bundle row that carries a link, limited to ids
// when ids is non-empty. Rows without a link are left out.
func BuildReferences(evidence *domain.EvidenceBundle, ids []string) []Reference {
	if evidence == nil {
		return nil
	}
	var want map[string]struct{}
	if len(ids) > 0 {
		want = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var refs []Reference
	for _, row := range evidence.StructuredRows {
		link := row.ReferenceLink()
		if link == "" {
			continue
		}
		id := row.ArticleID()
		if want != nil {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		title := row.Title()
		if title == "" {
			title = link
		}
		refs = append(refs, Reference{ArticleID: id, Title: title, URL: link})
	}
	if len(refs) == 0 && want != nil {
		return BuildReferences(evidence, nil)
	}
	return refs
}

var (
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	bareURLPattern      = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	placeholderPattern  = regexp.MustCompile("^\x00[0-9]+\x00$")
	innerSpacePattern   = regexp.MustCompile(`(\S)[ \t]{2,}`)
)

// StripForeignLinks removes every URL from text that is not in allowed.
// Markdown links to foreign URLs keep their label. Allowed links survive byte for byte,
// including characters such as parentheses that end a URL match.
func StripForeignLinks(text string, allowed map[string]struct{}) string {
	protected, restore := protectLinks(text, allowed)
	isAllowed := func(u string) bool {
		if placeholderPattern.MatchString(u) {
			return true
		}
		_, ok := allowed[u]
		return ok
	}

	out := markdownLinkPattern.ReplaceAllStringFunc(protected, func(m string) string {
		sub := markdownLinkPattern.FindStringSubmatch(m)
		if isAllowed(sub[2]) {
			return m
		}
		return sub[1]
	})

	out = bareURLPattern.ReplaceAllStringFunc(out, func(m string) string {
		trimmed := strings.TrimRight(m, ".,;:!?")
		if isAllowed(trimmed) {
			return m
		}
		return m[len(trimmed):]
	})

	out = strings.TrimSpace(innerSpacePattern.ReplaceAllString(out, "$1 "))
	return restore.Replace(out)
}

// protectLinks swaps whole occurrences of allowed links for NUL-delimited placeholders.
// Longer links are protected first so a link never shadows one it prefixes.
func protectLinks(text string, allowed map[string]struct{}) (string, *strings.Replacer) {
	links := make([]string, 0, len(allowed))
	for link := range allowed {
		if link != "" && strings.Contains(text, link) {
			links = append(links, link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if len(links[i]) != len(links[j]) {
			return len(links[i]) > len(links[j])
		}
		return links[i] < links[j]
	})

	var pairs []string
	for i, link := range links {
		placeholder := "\x00" + strconv.Itoa(i) + "\x00"
		var sb strings.Builder
		rest := text
		replaced := false
		for {
			idx := strings.Index(rest, link)
			if idx < 0 {
				sb.WriteString(rest)
				break
			}
			end := idx + len(link)
			sb.WriteString(rest[:idx])
			if linkEndsAt(rest, end) {
				sb.WriteString(placeholder)
				replaced = true
			} else {
				sb.WriteString(rest[idx:end])
			}
			rest = rest[end:]
		}
		if replaced {
			text = sb.String()
			pairs = append(pairs, placeholder, link)
		}
	}
	return text, strings.NewReplacer(pairs...)
}

// linkEndsAt reports whether a URL ending at i in s is not continued by more URL characters.
// Trailing sentence punctuation counts as an end when followed by a boundary.
func linkEndsAt(s string, i int) bool {
	for i < len(s) && strings.IndexByte(".,;:!?", s[i]) >= 0 {
		i++
	}
	if i >= len(s) {
		return true
	}
	return strings.IndexByte(" \t\r\n<>()[]\"'\x00", s[i]) >= 0
}

// conversationalPhrases are the utterances that bypass grounding.
var conversationalPhrases = [][]string{
	{"hi"}, {"hello"}, {"hey"}, {"thanks"}, {"thank", "you"}, {"good", "morning"}, {"good", "evening"},
	{"how", "are", "you"}, {"who", "are", "you"}, {"what", "are", "you"}, {"what", "is", "your", "name"},
	{"your", "name"}, {"which", "model"}, {"what", "model"}, {"are", "you", "real"}, {"are", "you", "human"},
	{"what", "version"}, {"who", "made", "you"}, {"identity"},
}

// conversationalFillers may pad a conversational utterance without adding a topic.
var conversationalFillers = map[string]struct{}{
	"are": {}, "you": {}, "using": {}, "there": {}, "please": {}, "again": {}, "very": {},
	"much": {}, "today": {}, "so": {}, "and": {}, "ok": {}, "okay": {},
}

// IsConversational reports whether query is a greeting or a question about the assistant itself.
// The query must start with an utterance and consist only of utterances and fillers, so a
// greeting in front of a real question does not qualify.
func IsConversational(query string) bool {
	words := tokenize(query)
	if len(words) == 0 {
		return false
	}
	n, ok := matchPhrase(words)
	if !ok {
		return false
	}
	for i := n; i < len(words); {
		if n, ok := matchPhrase(words[i:]); ok {
			i += n
			continue
		}
		if _, filler := conversationalFillers[words[i]]; filler {
			i++
			continue
		}
		return false
	}
	return true
}

// matchPhrase returns the length of the longest conversational phrase words starts with.
func matchPhrase(words []string) (int, bool) {
	best := 0
	for _, p := range conversationalPhrases {
		if len(p) <= best || len(p) > len(words) {
			continue
		}
		if slices.Equal(words[:len(p)], p) {
			best = len(p)
		}
	}
	return best, best > 0
}

// relevanceStopWords never count as topical overlap.
var relevanceStopWords = map[string]struct{}{
	"a": {}, "about": {}, "all": {}, "an": {}, "and": {}, "any": {}, "are": {}, "article": {},
	"articles": {}, "as": {}, "at": {}, "be": {}, "by": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "give": {}, "has": {}, "have": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "me": {}, "more": {}, "news": {}, "of": {}, "on": {}, "or": {},
	"please": {}, "show": {}, "some": {}, "tell": {}, "that": {}, "the": {}, "there": {},
	"this": {}, "to": {}, "was": {}, "what": {}, "which": {}, "who": {}, "with": {},
	"you": {}, "latest": {}, "recent": {}, "find": {}, "list": {},
}

// isTopicallyRelevant is a lexical check between the query and the evidence text.
// Structured and follow-up bundles were matched on the query itself and always pass,
// as do queries without content words.
func isTopicallyRelevant(query string, evidence *domain.EvidenceBundle) bool {
	if evidence.Pipeline != domain.PipelineSemantic {
		return true
	}
	var terms []string
	for _, tok := range tokenize(query) {
		if _, stop := relevanceStopWords[tok]; stop || len([]rune(tok)) < 3 {
			continue
		}
		terms = append(terms, tok)
	}
	if len(terms) == 0 {
		return true
	}

	var corpus []string
	for _, row := range evidence.StructuredRows {
		corpus = append(corpus, tokenize(row.Title()+" "+row.Category()+" "+row.Author())...)
		corpus = append(corpus, tokenize(evidence.Summaries[row.ArticleID()])...)
	}
	for _, term := range terms {
		for _, word := range corpus {
			if termsMatch(term, word) {
				return true
			}
		}
	}
	return false
}

// termsMatch treats words sharing a stem of at least four runes as equal.
func termsMatch(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < 4 {
		return false
	}
	prefix := 0
	for prefix < n && ra[prefix] == rb[prefix] {
		prefix++
	}
	return prefix >= 4 && prefix >= n-2
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
