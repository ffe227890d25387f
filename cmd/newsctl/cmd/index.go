package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"news-orchestrator/internal/adapter/repository"
	"news-orchestrator/internal/adapter/vectorindex"
	"news-orchestrator/internal/domain"
	"news-orchestrator/internal/infra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the article embedding index",
}

var indexInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate the embedding snapshot and print its summary",
	Long: `Validate the embedding snapshot and print its summary.

Exits non-zero when the artifact is corrupt or its format_version is not supported.`,
	Args: cobra.NoArgs,
	RunE: runIndexInspect,
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the pgvector index with the snapshot's vectors",
	Long: `Replace the pgvector index with the snapshot's vectors.

Creates the article_embeddings table when missing, then swaps the rows for the
snapshot's embedding model in a single transaction.`,
	Args: cobra.NoArgs,
	RunE:  runIndexSync,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexInspectCmd, indexSyncCmd)

	indexCmd.PersistentFlags().String("path", "", "snapshot path (default: INDEX_SNAPSHOT_PATH)")
}

func snapshotPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("path"); p != "" {
		return p
	}
	return cfg.Index.SnapshotPath
}

func runIndexInspect(cmd *cobra.Command, args []string) error {
	snap, err := vectorindex.LoadSnapshot(snapshotPath(cmd))
	if err != nil {
		return err
	}
	writeStats(cmd.OutOrStdout(), snap.Stats())
	return nil
}

func writeStats(out io.Writer, st vectorindex.Stats) {
	fmt.Fprintf(out, "format_version: %d\n", st.FormatVersion)
	fmt.Fprintf(out, "embedding_model: %s\n", st.EmbeddingModel)
	fmt.Fprintf(out, "dimension: %d\n", st.Dimension)
	fmt.Fprintf(out, "records: %d\n", st.Records)
	if len(st.Categories) == 0 {
		return
	}
	fmt.Fprintln(out, "categories:")
	for _, c := range slices.Sorted(maps.Keys(st.Categories)) {
		fmt.Fprintf(out, "  %s: %d\n", c, st.Categories[c])
	}
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	snap, err := vectorindex.LoadSnapshot(snapshotPath(cmd))
	if err != nil {
		return err
	}

	pool, err := infra.NewPostgresDB(ctx, cfg.DB.DSN(), infra.PoolConfig{MaxConns: cfg.DB.MaxConns, MinConns: cfg.DB.MinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewArticleEmbeddingRepository(pool, nil, snap.EmbeddingModel, log)
	txManager := repository.NewPostgresTransactionManager(pool)

	var copied int64
	err = txManager.RunInTx(ctx, func(ctx context.Context) error {
		if err := repository.EnsureSchema(ctx, pool, snap.Dimension); err != nil {
			return err
		}
		var err error
		copied, err = repo.ReplaceAll(ctx, snapshotEmbeddings(snap))
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %d vectors for model %s\n", copied, snap.EmbeddingModel)
	return nil
}

func snapshotEmbeddings(snap *vectorindex.Snapshot) []domain.ArticleEmbedding {
	out := make([]domain.ArticleEmbedding, 0, len(snap.Records))
	for _, rec := range snap.Records {
		out = append(out, domain.ArticleEmbedding{
			ArticleID: rec.ArticleID,
			Model:     snap.EmbeddingModel,
			Vector:    rec.Vector,
		})
	}
	return out
}
