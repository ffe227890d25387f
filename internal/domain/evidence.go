package domain

// Pipeline names the retrieval path that produced an evidence bundle.
type Pipeline string

const (
	PipelineNone       Pipeline = "none"
	PipelineStructured Pipeline = "structured"
	PipelineSemantic   Pipeline = "semantic"
	PipelineFollowUp   Pipeline = "follow_up"
)

// EvidenceBundle is the per-query aggregate an answer must be grounded in.
//
// Every article id in SemanticArticleIDs has a matching row in StructuredRows;
// ids the structured store could not resolve are dropped before a bundle is built.
type EvidenceBundle struct {
	StructuredRows     []StructuredRow
	SemanticArticleIDs []string
	Summaries          map[string]string
	Empty              bool
	Pipeline           Pipeline
	// Fallbacks lists the fallback steps taken while building the bundle, in order.
	Fallbacks []string
}

// NewEmptyBundle returns a bundle flagged empty for the given pipeline.
func NewEmptyBundle(pipeline Pipeline, fallbacks ...string) *EvidenceBundle {
	return &EvidenceBundle{
		Summaries: map[string]string{},
		Empty:     true,
		Pipeline:  pipeline,
		Fallbacks: fallbacks,
	}
}

// HasEvidence reports whether the bundle carries at least one structured row.
func (b *EvidenceBundle) HasEvidence() bool {
	return b != nil && !b.Empty && len(b.StructuredRows) > 0
}

// ArticleIDs returns the ids of the structured rows in bundle order.
func (b *EvidenceBundle) ArticleIDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.StructuredRows))
	for _, row := range b.StructuredRows {
		if id := row.ArticleID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReferenceLinks returns the set of non-empty reference links present in the bundle.
func (b *EvidenceBundle) ReferenceLinks() map[string]struct{} {
	links := make(map[string]struct{})
	if b == nil {
		return links
	}
	for _, row := range b.StructuredRows {
		if link := row.ReferenceLink(); link != "" {
			links[link] = struct{}{}
		}
	}
	return links
}

// Clone returns a copy whose slices and maps can be modified independently.
func (b *EvidenceBundle) Clone() *EvidenceBundle {
	if b == nil {
		return nil
	}
	out := &EvidenceBundle{
		StructuredRows:     make([]StructuredRow, len(b.StructuredRows)),
		SemanticArticleIDs: append([]string(nil), b.SemanticArticleIDs...),
		Summaries:          make(map[string]string, len(b.Summaries)),
		Empty:              b.Empty,
		Pipeline:           b.Pipeline,
		Fallbacks:          append([]string(nil), b.Fallbacks...),
	}
	for i, row := range b.StructuredRows {
		cp := make(StructuredRow, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.StructuredRows[i] = cp
	}
	for k, v := range b.Summaries {
		out.Summaries[k] = v
	}
	return out
}
