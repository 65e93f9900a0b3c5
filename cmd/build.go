package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursematch/src/core/chunker"
	"coursematch/src/core/ingest"
	"coursematch/src/core/vectorindex"
	"coursematch/src/document"
	"coursematch/src/fsutil"
	"coursematch/src/log"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the vector index from the documents directory",
	Long: `The build command loads every PDF, text and markdown file of the documents directory,
splits them into overlapping chunks, embeds the chunks and writes the index directory.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().String("documents", "", "documents directory (default documents.dir)")
	buildCmd.Flags().String("out", "", "index directory (default index.dir)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docsDir := flagOrConfig(cmd, "documents", "documents.dir")
	indexDir := flagOrConfig(cmd, "out", "index.dir")

	splitter, err := chunker.New(chunkSettings())
	if err != nil {
		return err
	}
	emb, err := newEmbedder(false)
	if err != nil {
		return err
	}
	ids, err := ingest.NewBuildIDs(viper.GetInt64("build.node"))
	if err != nil {
		return err
	}

	docs, err := document.NewLoader(fsutil.NewLocalFileStore()).LoadDir(ctx, docsDir)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	log.Info("documents loaded", "dir", docsDir, "documents", len(docs))

	total := 0
	probe := ingest.NewPipeline(splitter, emb, vectorindex.BuildOptions{})
	for _, b := range probe.Split(docs) {
		total += len(b)
	}
	bar := progressbar.Default(int64(total), "embedding")
	pipeline := ingest.NewPipeline(splitter, emb, buildOptions(func(n int) { _ = bar.Add(n) }))

	idx, stats, err := pipeline.Run(ctx, docs)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	meta := ids.NewMeta(viper.GetString("embedding.model"))
	if err := vectorindex.Persist(indexDir, idx, meta); err != nil {
		return err
	}
	log.Info("index built",
		"dir", indexDir,
		"build_id", meta.BuildID,
		"documents", stats.Documents,
		"empty_documents", stats.EmptyDocuments,
		"chunks", stats.Chunks,
		"entries", stats.Entries,
		"elapsed", stats.Elapsed.String(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "index %s: %d entries from %d documents in %s\n", meta.BuildID, stats.Entries, stats.Documents, indexDir)
	return nil
}
