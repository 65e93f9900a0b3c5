package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursematch/src/core/vectorindex"
	"coursematch/src/fsutil"
	"coursematch/src/infrastructure/events"
	"coursematch/src/log"
	"coursematch/src/storage/minioctrl"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Distribute and inspect built indexes",
}

var indexPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the index directory to object storage and announce it",
	RunE:  runIndexPush,
}

var indexPullCmd = &cobra.Command{
	Use:   "pull <prefix>",
	Short: "Download a published index into the index directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexPull,
}

var indexInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the manifest of the index directory",
	RunE:  runIndexInspect,
}

func init() {
	indexCmd.PersistentFlags().String("dir", "", "index directory (default index.dir)")
	indexCmd.PersistentFlags().String("bucket", "", "bucket (default minio.index_bucket)")
	indexPushCmd.Flags().String("prefix", "", "object prefix (default the build id)")
	indexPushCmd.Flags().Bool("publish", true, "publish index.published when events.enabled")

	indexCmd.AddCommand(indexPushCmd, indexPullCmd, indexInspectCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := flagOrConfig(cmd, "dir", "index.dir")
	bucket := flagOrConfig(cmd, "bucket", "minio.index_bucket")

	idx, meta, err := vectorindex.Load(dir)
	if err != nil {
		return err
	}
	prefix, _ := cmd.Flags().GetString("prefix")
	if prefix == "" {
		prefix = meta.BuildID
	}

	store, err := newMinio()
	if err != nil {
		return err
	}
	if err := store.PushIndex(ctx, bucket, prefix, dir); err != nil {
		return err
	}
	log.Info("index pushed", "bucket", bucket, "prefix", prefix, "build_id", meta.BuildID)

	publish, _ := cmd.Flags().GetBool("publish")
	if publish && viper.GetBool("events.enabled") {
		logger := eventsLogger()
		pub, err := events.NewAMQPPublisher(viper.GetString("amqp.url"), logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		err = events.NewPublisher(pub, viper.GetString("events.topic"), logger).PublishIndex(ctx, events.IndexPublished{
			BuildID:   meta.BuildID,
			Bucket:    bucket,
			Prefix:    prefix,
			Entries:   idx.Len(),
			Dimension: idx.Dimension(),
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s/%s\n", meta.BuildID, bucket, prefix)
	return nil
}

func runIndexPull(cmd *cobra.Command, args []string) error {
	dir := flagOrConfig(cmd, "dir", "index.dir")
	bucket, prefix := minioctrl.SplitLocation(args[0])
	if prefix == "" {
		// a bare argument is a prefix in the configured bucket
		bucket, prefix = flagOrConfig(cmd, "bucket", "minio.index_bucket"), args[0]
	}

	store, err := newMinio()
	if err != nil {
		return err
	}
	if err := store.PullIndex(cmd.Context(), bucket, prefix, dir); err != nil {
		return err
	}
	idx, meta, err := vectorindex.Load(dir)
	if err != nil {
		return fmt.Errorf("pulled index is unusable: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pulled %s (%d entries) into %s\n", meta.BuildID, idx.Len(), dir)
	return nil
}

type indexSummary struct {
	Dir            string         `json:"dir"`
	BuildID        string         `json:"build_id"`
	EmbeddingModel string         `json:"embedding_model"`
	CreatedAt      time.Time      `json:"created_at"`
	Entries        int            `json:"entries"`
	Dimension      int            `json:"dimension"`
	Files          int            `json:"files"`
	Bytes          int64          `json:"bytes"`
	Sources        map[string]int `json:"sources"`
}

func runIndexInspect(cmd *cobra.Command, args []string) error {
	dir := flagOrConfig(cmd, "dir", "index.dir")
	idx, meta, err := vectorindex.Load(dir)
	if err != nil {
		return err
	}
	files, size, err := fsutil.NewLocalFileStore().GetFileStats(dir)
	if err != nil {
		return err
	}

	summary := indexSummary{
		Dir:            dir,
		BuildID:        meta.BuildID,
		EmbeddingModel: meta.EmbeddingModel,
		CreatedAt:      meta.CreatedAt,
		Entries:        idx.Len(),
		Dimension:      idx.Dimension(),
		Files:          files,
		Bytes:          size,
		Sources:        map[string]int{},
	}
	for _, e := range idx.Entries() {
		summary.Sources[e.Chunk.SourceID]++
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
