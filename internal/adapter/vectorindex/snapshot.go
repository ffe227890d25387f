package vectorindex

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// SnapshotFormatVersion is the only artifact version this build reads.
const SnapshotFormatVersion = 1

// Snapshot is the on-disk embedding artifact: one vector and metadata per article.
type Snapshot struct {
	FormatVersion  int              `json:"format_version"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimension      int              `json:"dimension"`
	Records        []SnapshotRecord `json:"records"`
}

// SnapshotRecord is keyed by ArticleID.
type SnapshotRecord struct {
	ArticleID string            `json:"article_id"`
	Text      string            `json:"text"`
	Vector    []float32         `json:"vector"`
	Metadata  map[string]string `json:"metadata"`
}

// LoadSnapshot reads and validates the artifact at path.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot decodes and validates an artifact. Any inconsistency is an error.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) Validate() error {
	if s.FormatVersion != SnapshotFormatVersion {
		return fmt.Errorf("snapshot format_version %d is not supported (want %d)", s.FormatVersion, SnapshotFormatVersion)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("snapshot dimension must be positive, got %d", s.Dimension)
	}
	seen := make(map[string]struct{}, len(s.Records))
	for i, rec := range s.Records {
		id := strings.TrimSpace(rec.ArticleID)
		if id == "" {
			return fmt.Errorf("snapshot record %d has no article_id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("snapshot has duplicate article_id %q", id)
		}
		seen[id] = struct{}{}
		if len(rec.Vector) != s.Dimension {
			return fmt.Errorf("snapshot record %q has %d dimensions, want %d", id, len(rec.Vector), s.Dimension)
		}
		if metaID, ok := rec.Metadata["article_id"]; ok && metaID != id {
			return fmt.Errorf("snapshot record %q has metadata article_id %q", id, metaID)
		}
	}
	return nil
}

// Store loads the snapshot into a fresh article-namespace store.
func (s *Snapshot) Store() (*Store, error) {
	store := NewStore(NamespaceArticles)
	for _, rec := range s.Records {
		if err := store.Upsert(Record{
			ID:        strings.TrimSpace(rec.ArticleID),
			Namespace: NamespaceArticles,
			Vector:    rec.Vector,
			Text:      rec.Text,
			Metadata:  rec.Metadata,
		}); err != nil {
			return nil, fmt.Errorf("failed to load snapshot record %q: %w", rec.ArticleID, err)
		}
	}
	return store, nil
}

// Stats summarizes the artifact for inspection.
type Stats struct {
	FormatVersion  int
	EmbeddingModel string
	Dimension      int
	Records        int
	Categories     map[string]int
}

func (s *Snapshot) Stats() Stats {
	st := Stats{
		FormatVersion:  s.FormatVersion,
		EmbeddingModel: s.EmbeddingModel,
		Dimension:      s.Dimension,
		Records:        len(s.Records),
		Categories:     map[string]int{},
	}
	for _, rec := range s.Records {
		if c := strings.ToLower(rec.Metadata["category"]); c != "" {
			st.Categories[c]++
		}
	}
	return st
}
