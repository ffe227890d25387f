package retrieval

import (
	"sort"

	"news-orchestrator/internal/domain"
)

// RankedIDs orders hits by decreasing score, removes duplicate and empty ids, and keeps at most k.
func RankedIDs(hits []domain.ScoredID, k int) []string {
	sorted := make([]domain.ScoredID, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	seen := make(map[string]struct{}, len(sorted))
	ids := make([]string, 0, len(sorted))
	for _, h := range sorted {
		if h.ID == "" {
			continue
		}
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		ids = append(ids, h.ID)
		if k > 0 && len(ids) == k {
			break
		}
	}
	return ids
}

// MergeSemantic joins index ids with their structured rows and summaries.
//
// Rows come out in rank order. Rows for ids the index did not return are discarded,
// as are ids that have no row. Summaries are kept only for surviving ids.
func MergeSemantic(rankedIDs []string, rows []domain.StructuredRow, summaries map[string]string) *domain.EvidenceBundle {
	byID := make(map[string]domain.StructuredRow, len(rows))
	for _, row := range rows {
		id := row.ArticleID()
		if id == "" {
			continue
		}
		if _, dup := byID[id]; !dup {
			byID[id] = row
		}
	}

	bundle := &domain.EvidenceBundle{
		Summaries: map[string]string{},
		Pipeline:  domain.PipelineSemantic,
	}
	for _, id := range rankedIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		bundle.StructuredRows = append(bundle.StructuredRows, row)
		bundle.SemanticArticleIDs = append(bundle.SemanticArticleIDs, id)
		if s, ok := summaries[id]; ok {
			bundle.Summaries[id] = s
		}
	}
	bundle.Empty = len(bundle.StructuredRows) == 0
	return bundle
}

// MergeStructured keeps rows in store order and attaches summaries for their ids.
func MergeStructured(rows []domain.StructuredRow, summaries map[string]string) *domain.EvidenceBundle {
	bundle := &domain.EvidenceBundle{
		StructuredRows: rows,
		Summaries:      map[string]string{},
		Pipeline:       domain.PipelineStructured,
	}
	for _, row := range rows {
		id := row.ArticleID()
		if s, ok := summaries[id]; ok && id != "" {
			bundle.Summaries[id] = s
		}
	}
	bundle.Empty = len(rows) == 0
	return bundle
}

// RowIDs returns the distinct non-empty article ids of rows, in order.
func RowIDs(rows []domain.StructuredRow) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id := row.ArticleID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
