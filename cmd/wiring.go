package cmd

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"coursematch/src/core/chunker"
	"coursematch/src/core/composer"
	"coursematch/src/core/rag"
	"coursematch/src/core/retriever"
	"coursematch/src/core/session"
	"coursematch/src/core/vectorindex"
	"coursematch/src/infrastructure/llm"
	"coursematch/src/log"
	"coursematch/src/storage/minioctrl"
)

func chunkSettings() chunker.Settings {
	return chunker.Settings{
		Size:     viper.GetInt("chunk.size"),
		Overlap:  viper.GetInt("chunk.overlap"),
		Lookback: viper.GetInt("chunk.lookback"),
	}
}

func buildOptions(progress func(int)) vectorindex.BuildOptions {
	return vectorindex.BuildOptions{
		BatchSize:   viper.GetInt("embedding.batch_size"),
		Concurrency: viper.GetInt("embedding.concurrency"),
		Progress:    progress,
	}
}

func retryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxRetries: uint64(max(viper.GetInt("retry.max_retries"), 0)),
		BaseDelay:  viper.GetDuration("retry.base_delay"),
	}
}

// newEmbedder returns the configured embedder with retries. Serving embedders also cache
// query vectors.
func newEmbedder(serving bool) (embeddings.Embedder, error) {
	base, err := llm.NewEmbedder(llm.Config{
		Provider:  llm.Provider(viper.GetString("embedding.provider")),
		Model:     viper.GetString("embedding.model"),
		APIKey:    viper.GetString("openai.api_key"),
		BaseURL:   viper.GetString("openai.base_url"),
		OllamaURL: viper.GetString("ollama.url"),
		BatchSize: viper.GetInt("embedding.batch_size"),
	})
	if err != nil {
		return nil, err
	}
	var emb embeddings.Embedder = llm.NewRetryingEmbedder(base, retryPolicy())
	if size := viper.GetInt("embedding.cache_size"); serving && size > 0 {
		return llm.NewCachedEmbedder(emb, size)
	}
	return emb, nil
}

func newModel() (llms.Model, error) {
	model, err := llm.NewModel(llm.Config{
		Provider:  llm.Provider(viper.GetString("llm.provider")),
		Model:     viper.GetString("llm.model"),
		APIKey:    viper.GetString("openai.api_key"),
		BaseURL:   viper.GetString("openai.base_url"),
		OllamaURL: viper.GetString("ollama.url"),
	})
	if err != nil {
		return nil, err
	}
	return llm.NewRetryingModel(model, retryPolicy()), nil
}

func newTemplates() (program, course composer.Template, err error) {
	programText := viper.GetString("prompts.program")
	if programText == "" {
		programText = composer.DefaultProgramTemplate
	}
	courseText := viper.GetString("prompts.course")
	if courseText == "" {
		courseText = composer.DefaultCourseTemplate
	}
	if program, err = composer.NewTemplate(composer.TemplateProgram, programText); err != nil {
		return
	}
	course, err = composer.NewTemplate(composer.TemplateCourse, courseText)
	return
}

// newController wires retrieval and composition over holder.
func newController(holder *vectorindex.Holder) (*session.Controller, error) {
	emb, err := newEmbedder(true)
	if err != nil {
		return nil, err
	}
	model, err := newModel()
	if err != nil {
		return nil, err
	}
	program, course, err := newTemplates()
	if err != nil {
		return nil, err
	}
	k := viper.GetInt("retriever.k")
	comp := composer.New(model,
		composer.WithSentinel(viper.GetString("prompts.sentinel")),
		composer.WithSeparator(viper.GetString("prompts.separator")),
		composer.WithTemperature(viper.GetFloat64("llm.temperature")),
	)
	return session.NewController(retriever.NewService(holder, emb, retriever.WithK(k)), comp, program, course, k), nil
}

// loadIndex loads the index directory. allowMissing starts from an empty index instead of
// failing when nothing has been built yet.
func loadIndex(dir string, allowMissing bool) (*vectorindex.Holder, error) {
	idx, meta, err := vectorindex.Load(dir)
	if err != nil {
		if allowMissing && errors.Is(err, rag.ErrIndexNotFound) {
			log.Info("no index yet, serving empty until one is published", "dir", dir)
			return vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{}), nil
		}
		return nil, err
	}
	if configured := viper.GetString("embedding.model"); meta.EmbeddingModel != configured {
		log.Info("index was built with a different embedding model",
			"index_model", meta.EmbeddingModel, "configured_model", configured)
	}
	log.Info("index loaded", "dir", dir, "build_id", meta.BuildID, "entries", idx.Len(), "dimension", idx.Dimension())
	return vectorindex.NewHolder(idx, meta), nil
}

func newMinio() (*minioctrl.MinioService, error) {
	svc, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}
	return svc, nil
}

func eventsLogger() watermill.LoggerAdapter {
	return log.NewWatermillAdapter(log.WithName("events"))
}

// flagOrConfig prefers an explicitly set string flag over the config key.
func flagOrConfig(cmd *cobra.Command, flag, key string) string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString(key)
}
