package cmd

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	ragx "github.com/tanpawarit/query-router/agent/rag"
)

func ingestCMD() *cobra.Command {
	var indexDir string
	ingest := &cobra.Command{
		Use:   "ingest [docs-dir]",
		Short: "Chunk .txt, .md and .html documents into the local search index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			docs := cfg.RAG.DocsDir
			if len(args) == 1 {
				docs = args[0]
			}
			if indexDir == "" {
				indexDir = cfg.RAG.IndexDir
			}

			idx, err := ragx.CreateIndex(indexDir)
			if err != nil {
				return err
			}
			defer idx.Close()

			stats, err := ragx.NewIngester(idx, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap).IngestDir(cmd.Context(), docs)
			if err != nil {
				return err
			}
			total, err := idx.Count()
			if err != nil {
				return err
			}
			log.Info().
				Str("docs", docs).
				Str("index", indexDir).
				Int("files", stats.Files).
				Int("chunks", stats.Chunks).
				Uint64("indexed", total).
				Msg("ingest finished")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	ingest.Flags().StringVar(&indexDir, "index", "", "index directory (default RAG_INDEX_DIR)")
	return ingest
}
