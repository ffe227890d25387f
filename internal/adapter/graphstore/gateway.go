package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"news-orchestrator/internal/domain"
)

// CypherRunner executes a read query and returns each record as a column map.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// idLookupCypher resolves a fixed set of article ids. It takes no other predicate.
const idLookupCypher = `MATCH (a:Author)-[:WROTE]->(b:Articles)-[:BELONGSTO]->(c:Category)
WHERE b.article_id IN $ids
RETURN b.article_id AS article_id, b.title AS title, b.refLink AS reference_link, a.author AS author, c.category AS category`

// Gateway is the structured store gateway over the article graph.
type Gateway struct {
	runner    CypherRunner
	llm       domain.LLMClient
	maxTokens int
	logger    *slog.Logger
}

// NewGateway creates a gateway. llm turns free-form asks into Cypher.
func NewGateway(runner CypherRunner, llm domain.LLMClient, logger *slog.Logger) *Gateway {
	return &Gateway{runner: runner, llm: llm, maxTokens: 512, logger: logger}
}

func (g *Gateway) Query(ctx context.Context, ask string, filter *domain.IDFilter) ([]domain.StructuredRow, error) {
	if filter != nil {
		return g.lookupIDs(ctx, filter.IDs)
	}

	cypher, err := g.generate(ctx, ask)
	if err != nil {
		return nil, err
	}
	g.logger.Info("cypher_generated", slog.String("cypher", cypher))

	records, err := g.runner.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecution, err)
	}
	return normalizeRecords(records), nil
}

func (g *Gateway) lookupIDs(ctx context.Context, ids []string) ([]domain.StructuredRow, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return []domain.StructuredRow{}, nil
	}
	records, err := g.runner.Run(ctx, idLookupCypher, map[string]any{"ids": clean})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecution, err)
	}
	return normalizeRecords(records), nil
}

func (g *Gateway) generate(ctx context.Context, ask string) (string, error) {
	if strings.TrimSpace(ask) == "" {
		return "", fmt.Errorf("%w: empty ask", domain.ErrQueryGeneration)
	}
	if g.llm == nil {
		return "", fmt.Errorf("%w: no query generator configured", domain.ErrQueryGeneration)
	}
	resp, err := g.llm.Generate(ctx, buildCypherPrompt(ask), g.maxTokens)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrQueryGeneration, err)
	}
	cypher, err := SanitizeCypher(resp.Text)
	if err != nil {
		g.logger.Warn("cypher_rejected",
			slog.String("cypher", resp.Text),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", domain.ErrQueryGeneration, err)
	}
	return cypher, nil
}

func buildCypherPrompt(ask string) string {
	return fmt.Sprintf(`You write one Neo4j Cypher query for a news article graph.

Schema:
(a:Author {author})-[:WROTE]->(b:Articles {article_id, title, refLink})-[:BELONGSTO]->(c:Category {category})

Rules:
- Always start from MATCH (a:Author)-[:WROTE]->(b:Articles)-[:BELONGSTO]->(c:Category).
- Use exactly one RETURN clause.
- Always return b.article_id AS article_id, b.title AS title, b.refLink AS reference_link, a.author AS author, c.category AS category.
- Category values are lower-case; compare them with toLower().
- Compare article ids as strings, for example WHERE b.article_id = "13".
- The query must only read. Never use CREATE, MERGE, SET, DELETE, REMOVE, CALL or LOAD CSV.
- Output only the query, without explanation or code fences.

Question: %s`, ask)
}

// columnAliases maps the column names a generated query may use onto canonical row keys.
var columnAliases = map[string]string{
	"article_id":     domain.RowKeyArticleID,
	"b.article_id":   domain.RowKeyArticleID,
	"id":             domain.RowKeyArticleID,
	"title":          domain.RowKeyTitle,
	"b.title":        domain.RowKeyTitle,
	"reference_link": domain.RowKeyReferenceLink,
	"reflink":        domain.RowKeyReferenceLink,
	"b.reflink":      domain.RowKeyReferenceLink,
	"link":           domain.RowKeyReferenceLink,
	"url":            domain.RowKeyReferenceLink,
	"author":         domain.RowKeyAuthor,
	"a.author":       domain.RowKeyAuthor,
	"category":       domain.RowKeyCategory,
	"c.category":     domain.RowKeyCategory,
}

// normalizeRecords renames known columns, flattens node property maps and lower-cases categories.
// Unknown columns are kept as returned.
func normalizeRecords(records []map[string]any) []domain.StructuredRow {
	rows := make([]domain.StructuredRow, 0, len(records))
	for _, rec := range records {
		row := domain.StructuredRow{}
		for key, value := range rec {
			if props, ok := value.(map[string]any); ok {
				for pk, pv := range props {
					setColumn(row, pk, pv)
				}
				continue
			}
			setColumn(row, key, value)
		}
		if c, ok := row[domain.RowKeyCategory].(string); ok {
			row[domain.RowKeyCategory] = strings.ToLower(c)
		}
		rows = append(rows, row)
	}
	return rows
}

func setColumn(row domain.StructuredRow, key string, value any) {
	canonical, ok := columnAliases[strings.ToLower(key)]
	if !ok {
		if _, taken := row[key]; !taken {
			row[key] = value
		}
		return
	}
	if _, taken := row[canonical]; taken && value == nil {
		return
	}
	row[canonical] = value
}

var _ domain.StructuredStore = (*Gateway)(nil)
