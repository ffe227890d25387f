package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRunner runs Cypher through the Neo4j driver against a single database, routed to readers.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jRunner(driver neo4j.DriverWithContext, database string) *Neo4jRunner {
	return &Neo4jRunner{driver: driver, database: database}
}

func (r *Neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		row := record.AsMap()
		for key, value := range row {
			switch v := value.(type) {
			case neo4j.Node:
				row[key] = v.Props
			case neo4j.Relationship:
				row[key] = v.Props
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var _ CypherRunner = (*Neo4jRunner)(nil)
