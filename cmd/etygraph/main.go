package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"etygraph/internal/app"
	"etygraph/internal/config"
	"etygraph/internal/embed"
	"etygraph/internal/pipeline"
)

// Exit codes: 0 success, 1 input/serialization error, 2 embedding
// inference failure, 3 missing reference data (pipeline.ErrReference is
// the only error mapped to 3).
const (
	exitOK        = 0
	exitInput     = 1
	exitEmbed     = 2
	exitInvariant = 3
)

var (
	configPath        string
	serializationPath string
	turtlePath        string
	languageData      string
	embeddingsModel   string
	embeddingsBatch   int
	embeddingsCache   string
	logLevel          string
	logFormat         string
)

var rootCmd = &cobra.Command{
	Use:   "etygraph INPUT",
	Short: "Build an etymological graph from a wiktextract JSONL dump",
	Long: `etygraph ingests a wiktextract (Kaikki) line-delimited JSON dump,
resolves etymology and descendants citations into a labeled directed
graph of lexical items, and serializes the result to compressed JSON
and optional RDF/Turtle.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	flags.StringVarP(&serializationPath, "serialization-path", "j", "data/etygraph.json.gz", "output path; .gz suffix selects compression")
	flags.StringVarP(&turtlePath, "turtle-path", "l", "", "optional RDF/Turtle output path")
	flags.StringVar(&languageData, "language-data", "", "language reference table (JSONL)")
	flags.StringVarP(&embeddingsModel, "embeddings-model", "m", "", "sentence-embedding model identifier")
	flags.IntVarP(&embeddingsBatch, "embeddings-batch-size", "z", 0, "texts per inference batch")
	flags.StringVarP(&embeddingsCache, "embeddings-cache-dir", "c", "", "embedding cache directory")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flags.StringVar(&logFormat, "log-format", "", "text or json")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrInput, err)
	}
	if embeddingsModel != "" {
		cfg.Embeddings.Model = embeddingsModel
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = embed.DefaultModel
	}
	if embeddingsBatch > 0 {
		cfg.Embeddings.BatchSize = embeddingsBatch
	}
	if embeddingsCache != "" {
		cfg.Embeddings.CacheDir = embeddingsCache
	}
	if languageData != "" {
		cfg.LanguageData = languageData
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	log := app.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(log, pipeline.Config{
		InputPath:         args[0],
		SerializationPath: serializationPath,
		TurtlePath:        turtlePath,
		LanguageDataPath:  cfg.LanguageData,
		CacheDir:          cfg.Embeddings.CacheDir,
		BatchSize:         cfg.Embeddings.BatchSize,
		Embeddings: embed.Options{
			Provider:  cfg.Embeddings.Provider,
			APIKey:    cfg.Embeddings.APIKey,
			Model:     cfg.Embeddings.Model,
			Dimension: cfg.Embeddings.Dimension,
			BaseURL:   cfg.Embeddings.BaseURL,
		},
	}, nil)
	return p.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, embed.ErrEmbedFailed):
		return exitEmbed
	case errors.Is(err, pipeline.ErrReference):
		return exitInvariant
	default:
		return exitInput
	}
}
